package routing

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/ratelimit"
)

// testNetwork simulates a set of engines connected by a fixed adjacency
// list, delivering broadcast/unicast frames synchronously by dispatching
// straight into the recipient engine's Handle* methods.
type testNetwork struct {
	t         *testing.T
	nodes     map[frame.NodeID]*Engine
	adjacency map[frame.NodeID]map[frame.NodeID]bool
}

func newTestNetwork(t *testing.T) *testNetwork {
	return &testNetwork{
		t:         t,
		nodes:     make(map[frame.NodeID]*Engine),
		adjacency: make(map[frame.NodeID]map[frame.NodeID]bool),
	}
}

func (n *testNetwork) link(a, b frame.NodeID) {
	if n.adjacency[a] == nil {
		n.adjacency[a] = make(map[frame.NodeID]bool)
	}
	if n.adjacency[b] == nil {
		n.adjacency[b] = make(map[frame.NodeID]bool)
	}
	n.adjacency[a][b] = true
	n.adjacency[b][a] = true
}

func (n *testNetwork) addNode(id frame.NodeID, clock clockwork.Clock) *Engine {
	logger := log.New(nil, log.DebugLevel, true)
	limiter := ratelimit.NewLimiter(clock, ratelimit.Limit{Max: 1000, Window: 1000 * 1000 * 1000 * 1000})
	e := NewEngine(id, 0, 0, clock, &networkTransport{self: id, net: n}, limiter, nil, logger, Config{})
	n.nodes[id] = e
	return e
}

// networkTransport is the per-node Transport implementation handed to each
// Engine; it routes through the shared testNetwork's adjacency list.
type networkTransport struct {
	self frame.NodeID
	net  *testNetwork
}

func (tr *networkTransport) Broadcast(f *frame.Frame) error {
	f.Src = tr.self
	for neighbor := range tr.net.adjacency[tr.self] {
		tr.net.deliver(tr.self, neighbor, f)
	}
	return nil
}

func (tr *networkTransport) Unicast(f *frame.Frame, nextHop frame.NodeID) error {
	f.Src = tr.self
	if !tr.net.adjacency[tr.self][nextHop] {
		return ErrNoRoute
	}
	tr.net.deliver(tr.self, nextHop, f)
	return nil
}

func (n *testNetwork) deliver(sender, dst frame.NodeID, f *frame.Frame) {
	recipient, ok := n.nodes[dst]
	if !ok {
		return
	}

	switch f.Kind {
	case frame.KindRouteRequest:
		recipient.HandleRouteRequest(sender, f)
	case frame.KindRouteReply:
		recipient.HandleRouteReply(sender, f)
	case frame.KindRouteError:
		recipient.HandleRouteError(sender, f)
	case frame.KindBeacon:
		recipient.HandleBeacon(sender, f)
	case frame.KindContentAnnounce:
		recipient.HandleContentAnnounce(sender, f)
	default:
		n.t.Fatalf("unhandled frame kind in test network: %v", f.Kind)
	}
}
