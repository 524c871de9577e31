package routing

import (
	"sync"
	"time"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// neighborTable tracks directly-reachable peers, refreshed by beacons and
// by the immediate sender of route requests and route replies. It is guarded by its own mutex,
// separate from the route table, since liveness checks and route
// invalidation run on independent schedules.
type neighborTable struct {
	mu    sync.Mutex
	byID  map[frame.NodeID]*neighborRecord
}

func newNeighborTable() *neighborTable {
	return &neighborTable{byID: make(map[frame.NodeID]*neighborRecord)}
}

// Touch refreshes (or creates) the neighbor record for id at now.
func (t *neighborTable) Touch(id frame.NodeID, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byID[id]
	if !ok {
		rec = &neighborRecord{}
		t.byID[id] = rec
	}
	rec.lastSeen = now
}

// TouchWithPosition refreshes the neighbor record and its declared
// position, as beacons carry lat/lon but plain frame forwarding does not.
func (t *neighborTable) TouchWithPosition(id frame.NodeID, lat, lon float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byID[id]
	if !ok {
		rec = &neighborRecord{}
		t.byID[id] = rec
	}
	rec.lat, rec.lon = lat, lon
	rec.lastSeen = now
}

// Known reports whether id has been seen within maxAge of now.
func (t *neighborTable) Known(id frame.NodeID, now time.Time, maxAge time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byID[id]
	if !ok {
		return false
	}
	return now.Sub(rec.lastSeen) < maxAge
}

// Stale returns every neighbor whose last beacon/frame is older than
// maxAge as of now — candidates for route invalidation.
func (t *neighborTable) Stale(now time.Time, maxAge time.Duration) []frame.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []frame.NodeID
	for id, rec := range t.byID {
		if now.Sub(rec.lastSeen) >= maxAge {
			out = append(out, id)
		}
	}
	return out
}
