package routing

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// seenCapacity bounds the discovery-dedup set independently of its age
// based expiry, so a burst of distinct discoveries cannot grow it
// unboundedly in the window before entries age out.
const seenCapacity = 4096

// SeenDiscoverySet deduplicates (orig, rreq_id) pairs for the lifetime of a
// discovery timeout. It is bounded by an LRU cache so that an adversarial
// flood of distinct RREQs cannot exhaust memory; the logical expiry that
// Testable Property #3 depends on is enforced on top of the LRU by
// checking entry age at lookup time.
type SeenDiscoverySet struct {
	mu  sync.Mutex
	ttl time.Duration
	lru *lru.Cache
}

// NewSeenDiscoverySet constructs a set that remembers pairs for ttl
// (normally the discovery timeout), unless the seenCapacity LRU bound
// evicts them sooner.
func NewSeenDiscoverySet(ttl time.Duration) *SeenDiscoverySet {
	cache, err := lru.New(seenCapacity)
	if err != nil {
		// lru.New only fails for a non-positive size, which seenCapacity
		// never is.
		panic(err)
	}
	return &SeenDiscoverySet{ttl: ttl, lru: cache}
}

func seenKey(orig frame.NodeID, rreqID uint32) string {
	return fmt.Sprintf("%s/%d", orig, rreqID)
}

// SeenAt reports whether (orig, rreqID) was already observed within ttl of
// now, and if not, records it as seen at now.
func (s *SeenDiscoverySet) SeenAt(orig frame.NodeID, rreqID uint32, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seenKey(orig, rreqID)
	if v, ok := s.lru.Get(key); ok {
		if insertedAt, ok := v.(time.Time); ok && now.Sub(insertedAt) < s.ttl {
			return true
		}
	}

	s.lru.Add(key, now)
	return false
}
