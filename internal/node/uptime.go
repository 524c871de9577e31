package node

import (
	"sync"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// uptimeTracker records the most recently accepted uptime claim per peer,
// learned from verified UptimeProof announcement frames; uptime proofs
// attached to secure messages are not recorded here. It backs the quorum coordinator's eligible-
// verifier-set selection ("peers whose last-seen uptime claim is >= 90%").
type uptimeTracker struct {
	mu     sync.Mutex
	lastPercent map[frame.NodeID]float64
}

func newUptimeTracker() *uptimeTracker {
	return &uptimeTracker{lastPercent: make(map[frame.NodeID]float64)}
}

// Record stores peer's most recently verified uptime percentage,
// overwriting any prior claim.
func (t *uptimeTracker) Record(peer frame.NodeID, percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPercent[peer] = percent
}

// LastKnownUptime implements quorum.UptimeSource.
func (t *uptimeTracker) LastKnownUptime(peerID string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pct, ok := t.lastPercent[frame.NodeID(peerID)]
	return pct, ok
}
