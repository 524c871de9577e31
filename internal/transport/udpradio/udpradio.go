// Package udpradio is a concrete RadioAdapter for running a node without
// real narrowband hardware: frames travel over UDP datagrams to a static
// table of known peer addresses, standing in for the radio's broadcast
// domain. It exists only to give cmd/dcmx-node something to wire against;
// production deployments replace it with a modem-backed adapter.
package udpradio

import (
	"fmt"
	"net"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
)

// maxDatagram is the largest datagram Transmit accepts and Receive reads:
// the codec's frame.MaxFrameBytes ceiling plus 64 bytes of headroom.
const maxDatagram = frame.MaxFrameBytes + 64

// Peer is one entry in the static address table: the node ID a frame may
// be addressed to, and the UDP address it's reachable at.
type Peer struct {
	NodeID frame.NodeID
	Addr   string
}

// Radio implements node.RadioAdapter over a UDP socket. Broadcast fans a
// frame out to every known peer; Unicast looks up the target's address in
// the static table.
type Radio struct {
	conn *net.UDPConn
	log  log.Logger

	mu    sync.RWMutex
	peers map[frame.NodeID]*net.UDPAddr
}

// Listen opens a UDP socket at listenAddr (e.g. "0.0.0.0:7700") and
// returns a Radio with an empty peer table; use AddPeer to populate it.
func Listen(listenAddr string, logger log.Logger) (*Radio, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("udpradio: resolving %s: %w", listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpradio: listening on %s: %w", listenAddr, err)
	}
	return &Radio{
		conn:  conn,
		log:   logger.Named("udpradio"),
		peers: make(map[frame.NodeID]*net.UDPAddr),
	}, nil
}

// AddPeer registers a reachable peer by node ID and UDP address.
func (r *Radio) AddPeer(peer Peer) error {
	addr, err := net.ResolveUDPAddr("udp", peer.Addr)
	if err != nil {
		return fmt.Errorf("udpradio: resolving peer %s: %w", peer.Addr, err)
	}
	r.mu.Lock()
	r.peers[peer.NodeID] = addr
	r.mu.Unlock()
	return nil
}

// Transmit sends frameBytes to target, or to every known peer when target
// is frame.BroadcastID.
func (r *Radio) Transmit(frameBytes []byte, target frame.NodeID) error {
	if len(frameBytes) > maxDatagram {
		return fmt.Errorf("udpradio: frame of %d bytes exceeds %d byte ceiling", len(frameBytes), maxDatagram)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if target == frame.BroadcastID {
		var lastErr error
		for id, addr := range r.peers {
			if _, err := r.conn.WriteToUDP(frameBytes, addr); err != nil {
				r.log.Warnw("broadcast write failed", "peer", id, "err", err)
				lastErr = err
			}
		}
		return lastErr
	}

	addr, ok := r.peers[target]
	if !ok {
		return fmt.Errorf("udpradio: no known address for %s", target)
	}
	_, err := r.conn.WriteToUDP(frameBytes, addr)
	return err
}

// Receive blocks for the next datagram. rssi/snr are synthetic constants
// since UDP carries no link-quality telemetry.
func (r *Radio) Receive() ([]byte, int32, float32, error) {
	buf := make([]byte, maxDatagram)
	n, _, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, 0, 0, err
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, 0, 0, nil
}

// Close releases the underlying socket, unblocking any in-flight Receive.
func (r *Radio) Close() error {
	return r.conn.Close()
}

// peersFile is the on-disk TOML shape for a static peer table.
type peersFile struct {
	Peer []struct {
		NodeID string `toml:"node_id"`
		Addr   string `toml:"addr"`
	} `toml:"peer"`
}

// LoadPeers reads a TOML peer table from path and registers every entry
// with r.
func LoadPeers(r *Radio, path string) error {
	var pf peersFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return fmt.Errorf("udpradio: decoding peer table %s: %w", path, err)
	}
	for _, p := range pf.Peer {
		if err := r.AddPeer(Peer{NodeID: frame.NodeID(p.NodeID), Addr: p.Addr}); err != nil {
			return err
		}
	}
	return nil
}
