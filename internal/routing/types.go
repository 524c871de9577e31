// Package routing implements the on-demand distance-vector mesh routing
// engine: broadcast route request, unicast reply, forward route install,
// destination sequence numbers for freshness, precursor tracking for error
// propagation, periodic beacons, and content announcements.
package routing

import (
	"time"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// Default timing constants per the routing engine's discovery/liveness
// schedule.
const (
	DefaultRouteLifetime    = 300 * time.Second
	DefaultBeaconInterval   = 60 * time.Second
	DefaultMaxTTL           = 10
	DefaultDiscoveryTimeout = DefaultRouteLifetime

	// maxBeaconContentHashes bounds the opportunistic content advertisement
	// carried on each beacon.
	maxBeaconContentHashes = 10
)

// RouteEntry is one row of the routing table: a known path to Dest via
// NextHop, with the AODV freshness/hop-count fields and the precursor set
// used for error propagation.
type RouteEntry struct {
	Dest       frame.NodeID
	NextHop    frame.NodeID
	HopCount   uint8
	DestSeq    uint32
	ExpiresAt  time.Time
	Precursors map[frame.NodeID]struct{}
}

// valid reports whether the entry has not yet expired as of now.
func (r *RouteEntry) valid(now time.Time) bool {
	return r != nil && now.Before(r.ExpiresAt)
}

// addPrecursor records src as a node depending on this route, so it can be
// notified of a future RouteError.
func (r *RouteEntry) addPrecursor(src frame.NodeID) {
	if r.Precursors == nil {
		r.Precursors = make(map[frame.NodeID]struct{})
	}
	r.Precursors[src] = struct{}{}
}

// betterThan implements the RouteReply install tie-break: a strictly
// greater destination sequence wins outright; on equal sequence, the
// smaller hop count wins.
func betterThan(candidateSeq uint32, candidateHops uint8, existing *RouteEntry) bool {
	if existing == nil {
		return true
	}
	if candidateSeq > existing.DestSeq {
		return true
	}
	if candidateSeq == existing.DestSeq && candidateHops < existing.HopCount {
		return true
	}
	return false
}

// PendingDiscovery tracks an in-flight discover() call awaiting a
// RouteReply, plus any continuations registered to be notified on
// resolution.
type PendingDiscovery struct {
	Dest      frame.NodeID
	RreqID    uint32
	StartedAt time.Time
	Waiters   []chan DiscoveryResult
}

// DiscoveryResult is delivered to every waiter of a PendingDiscovery once
// it resolves, either with a route or with a timeout.
type DiscoveryResult struct {
	Route   *RouteEntry
	TimedOut bool
}

// RouteRequestPayload is the JSON body of a KindRouteRequest frame.
type RouteRequestPayload struct {
	RreqID      uint32       `json:"rreq_id"`
	Dest        frame.NodeID `json:"dest"`
	DestSeqSeen uint32       `json:"dest_seq_seen"`
	Orig        frame.NodeID `json:"orig"`
	OrigSeq     uint32       `json:"orig_seq"`
	OrigLat     float64      `json:"orig_lat"`
	OrigLon     float64      `json:"orig_lon"`
}

// RouteReplyPayload is the JSON body of a KindRouteReply frame.
type RouteReplyPayload struct {
	Dest            frame.NodeID `json:"dest"`
	DestSeq         uint32       `json:"dest_seq"`
	Orig            frame.NodeID `json:"orig"`
	HopCount        uint8        `json:"hop_count"`
	LifetimeSeconds float64      `json:"lifetime"`
	DestLat         float64      `json:"dest_lat"`
	DestLon         float64      `json:"dest_lon"`
}

// RouteErrorPayload is the JSON body of a KindRouteError frame.
type RouteErrorPayload struct {
	UnreachableDest frame.NodeID `json:"unreachable_dest"`
	DestSeq         uint32       `json:"dest_seq"`
}

// BeaconPayload is the JSON body of a KindBeacon frame.
type BeaconPayload struct {
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	DeclaredBandwidth float64  `json:"declared_bw"`
	DeclaredUptime    float64  `json:"declared_uptime"`
	ContentHashes     []string `json:"content"`
}

// ContentAnnouncePayload is the JSON body of a KindContentAnnounce frame.
// FreshnessProof is decoded into the narrow FreshnessClaim shape; the engine
// defers its verification to an injected FreshnessVerifier so this package
// does not need to import the proof package's concrete types.
type ContentAnnouncePayload struct {
	ContentHash    string          `json:"content_hash"`
	ProviderID     frame.NodeID    `json:"provider_id"`
	FreshnessProof FreshnessClaim  `json:"freshness_proof"`
}

// FreshnessClaim is the wire shape of a freshness proof, kept narrow so
// internal/routing has no compile-time dependency on internal/proof.
type FreshnessClaim struct {
	MessageHash    string   `json:"message_hash"`
	Chain          []string `json:"chain"`
	TimestampProof string   `json:"timestamp_proof"`
	IssuedAt       int64    `json:"issued_at"`
}

// FreshnessVerifier checks a FreshnessClaim bound to the given message.
// internal/proof implements this.
type FreshnessVerifier interface {
	VerifyFreshness(claim FreshnessClaim, message string) bool
}

// neighborRecord is one row of the neighbor table, refreshed by beacons.
type neighborRecord struct {
	lat, lon float64
	lastSeen time.Time
}
