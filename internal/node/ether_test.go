package node

import (
	"errors"
	"sync"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// fakeEther is an in-memory shared medium connecting fakeRadios: Transmit
// to frame.BroadcastID fans out to every other registered radio; Transmit
// to a specific target delivers only to that radio's inbox.
type fakeEther struct {
	mu     sync.Mutex
	radios map[frame.NodeID]*fakeRadio
}

func newFakeEther() *fakeEther {
	return &fakeEther{radios: make(map[frame.NodeID]*fakeRadio)}
}

func (e *fakeEther) register(id frame.NodeID) *fakeRadio {
	r := &fakeRadio{id: id, ether: e, inbox: make(chan []byte, 32)}
	e.mu.Lock()
	e.radios[id] = r
	e.mu.Unlock()
	return r
}

var errEtherClosed = errors.New("node: fake ether closed")

type fakeRadio struct {
	id    frame.NodeID
	ether *fakeEther
	inbox chan []byte

	mu     sync.Mutex
	closed bool
}

func (r *fakeRadio) Transmit(frameBytes []byte, target frame.NodeID) error {
	r.ether.mu.Lock()
	defer r.ether.mu.Unlock()

	if target == frame.BroadcastID {
		for id, peer := range r.ether.radios {
			if id == r.id {
				continue
			}
			peer.deliver(frameBytes)
		}
		return nil
	}

	peer, ok := r.ether.radios[target]
	if !ok {
		return nil
	}
	peer.deliver(frameBytes)
	return nil
}

func (r *fakeRadio) deliver(frameBytes []byte) {
	select {
	case r.inbox <- frameBytes:
	default:
	}
}

func (r *fakeRadio) Receive() ([]byte, int32, float32, error) {
	b, ok := <-r.inbox
	if !ok {
		return nil, 0, 0, errEtherClosed
	}
	return b, -60, 10, nil
}

func (r *fakeRadio) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.inbox)
}

var _ RadioAdapter = (*fakeRadio)(nil)
