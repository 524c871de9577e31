package routing

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/ratelimit"
)

// Transport is the narrow send-side surface the engine needs: broadcast to
// all neighbors, or unicast to a specific next hop. The node wires this to
// the radio adapter, applying FEC and framing underneath.
type Transport interface {
	Broadcast(f *frame.Frame) error
	Unicast(f *frame.Frame, nextHop frame.NodeID) error
}

// Config bundles the engine's tunables. Zero-value fields fall back to
// package defaults in NewEngine.
type Config struct {
	RouteLifetime    time.Duration
	BeaconInterval   time.Duration
	MaxTTL           uint8
	DiscoveryTimeout time.Duration
}

// Engine is one node's routing state: the route table, pending discoveries,
// the seen-discovery dedup set, and the neighbor table, each guarded
// independently per the "fine-grained locks per table" concurrency model.
type Engine struct {
	self      frame.NodeID
	selfLat   float64
	selfLon   float64
	clock     clockwork.Clock
	transport Transport
	limiter   *ratelimit.Limiter
	freshness FreshnessVerifier
	log       log.Logger

	cfg Config

	routesMu sync.Mutex
	routes   map[frame.NodeID]*RouteEntry

	pendingMu sync.Mutex
	pending   map[frame.NodeID]*PendingDiscovery

	seen      *SeenDiscoverySet
	neighbors *neighborTable

	contentMu    sync.Mutex
	contentIndex map[string]map[frame.NodeID]struct{}

	localSeq uint32
	rreqSeq  uint32
	frameSeq uint32
}

// NewEngine constructs a routing engine for self, with cfg tunables
// (zero fields defaulted) and the given collaborators.
func NewEngine(self frame.NodeID, lat, lon float64, clock clockwork.Clock, transport Transport, limiter *ratelimit.Limiter, freshness FreshnessVerifier, logger log.Logger, cfg Config) *Engine {
	if cfg.RouteLifetime == 0 {
		cfg.RouteLifetime = DefaultRouteLifetime
	}
	if cfg.BeaconInterval == 0 {
		cfg.BeaconInterval = DefaultBeaconInterval
	}
	if cfg.MaxTTL == 0 {
		cfg.MaxTTL = DefaultMaxTTL
	}
	if cfg.DiscoveryTimeout == 0 {
		cfg.DiscoveryTimeout = cfg.RouteLifetime
	}

	return &Engine{
		self:         self,
		selfLat:      lat,
		selfLon:      lon,
		clock:        clock,
		transport:    transport,
		limiter:      limiter,
		freshness:    freshness,
		log:          logger.Named("routing"),
		cfg:          cfg,
		routes:       make(map[frame.NodeID]*RouteEntry),
		pending:      make(map[frame.NodeID]*PendingDiscovery),
		seen:         NewSeenDiscoverySet(cfg.DiscoveryTimeout),
		neighbors:    newNeighborTable(),
		contentIndex: make(map[string]map[frame.NodeID]struct{}),
	}
}

func (e *Engine) nextFrameSeq() uint16 {
	return uint16(atomic.AddUint32(&e.frameSeq, 1))
}

// Route returns the currently installed, still-valid entry for dest, if
// any.
func (e *Engine) Route(dest frame.NodeID) *RouteEntry {
	e.routesMu.Lock()
	defer e.routesMu.Unlock()

	entry := e.routes[dest]
	if !entry.valid(e.clock.Now()) {
		return nil
	}
	return entry
}

// Discover resolves dest to a route, broadcasting a RouteRequest if no
// valid entry exists and no discovery is already in flight. The returned
// channel, when non-nil, receives exactly one DiscoveryResult once the
// discovery resolves or times out.
func (e *Engine) Discover(dest frame.NodeID) (*RouteEntry, <-chan DiscoveryResult) {
	now := e.clock.Now()

	if entry := e.Route(dest); entry != nil {
		return entry, nil
	}

	e.pendingMu.Lock()
	if p, ok := e.pending[dest]; ok {
		ch := make(chan DiscoveryResult, 1)
		p.Waiters = append(p.Waiters, ch)
		e.pendingMu.Unlock()
		return nil, ch
	}

	rreqID := atomic.AddUint32(&e.rreqSeq, 1)
	seq := atomic.AddUint32(&e.localSeq, 1)

	ch := make(chan DiscoveryResult, 1)
	e.pending[dest] = &PendingDiscovery{
		Dest:      dest,
		RreqID:    rreqID,
		StartedAt: now,
		Waiters:   []chan DiscoveryResult{ch},
	}
	e.pendingMu.Unlock()

	payload := RouteRequestPayload{
		RreqID:      rreqID,
		Dest:        dest,
		DestSeqSeen: 0,
		Orig:        e.self,
		OrigSeq:     seq,
		OrigLat:     e.selfLat,
		OrigLon:     e.selfLon,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Errorw("marshal route request", "err", err)
		return nil, ch
	}

	f := &frame.Frame{
		Kind:    frame.KindRouteRequest,
		Src:     e.self,
		Dst:     frame.BroadcastID,
		Seq:     uint16(rreqID),
		Hops:    0,
		TTL:     e.cfg.MaxTTL,
		Payload: body,
	}
	if err := e.transport.Broadcast(f); err != nil {
		e.log.Warnw("broadcast route request failed", "dest", dest, "err", err)
	}

	return nil, ch
}

// ExpirePending resolves, with a timeout outcome, any pending discovery
// started before now-timeout, per the discovery-timeout suspension point.
func (e *Engine) ExpirePending(now time.Time) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	for dest, p := range e.pending {
		if now.Sub(p.StartedAt) < e.cfg.DiscoveryTimeout {
			continue
		}
		for _, w := range p.Waiters {
			w <- DiscoveryResult{TimedOut: true}
		}
		delete(e.pending, dest)
	}
}

func (e *Engine) resolvePending(dest frame.NodeID, route *RouteEntry) {
	e.pendingMu.Lock()
	p, ok := e.pending[dest]
	if !ok {
		e.pendingMu.Unlock()
		return
	}
	delete(e.pending, dest)
	e.pendingMu.Unlock()

	for _, w := range p.Waiters {
		w <- DiscoveryResult{Route: route}
	}
}

// installReverseRoute unconditionally installs or refreshes the route to
// dest via nextHop — the handling of a RouteRequest always trusts the
// advertised sequence and hop count from a fresh request.
func (e *Engine) installReverseRoute(dest, nextHop frame.NodeID, hopCount uint8, destSeq uint32, now time.Time) {
	e.routesMu.Lock()
	defer e.routesMu.Unlock()

	e.routes[dest] = &RouteEntry{
		Dest:      dest,
		NextHop:   nextHop,
		HopCount:  hopCount,
		DestSeq:   destSeq,
		ExpiresAt: now.Add(e.cfg.RouteLifetime),
	}
}

// HandleRouteRequest processes a RouteRequest frame received from sender.
func (e *Engine) HandleRouteRequest(sender frame.NodeID, f *frame.Frame) {
	var payload RouteRequestPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		e.log.Debugw("malformed route request", "err", err)
		return
	}

	now := e.clock.Now()
	e.neighbors.Touch(sender, now)

	if e.seen.SeenAt(payload.Orig, payload.RreqID, now) {
		return
	}

	e.installReverseRoute(payload.Orig, sender, f.Hops+1, payload.OrigSeq, now)

	if payload.Dest == e.self {
		e.replyAsDestination(payload, sender)
		return
	}

	if route := e.Route(payload.Dest); route != nil {
		e.replyAsIntermediate(payload, route, sender)
		return
	}

	if f.TTL > 1 {
		fwd := *f
		fwd.Hops = f.Hops + 1
		fwd.TTL = f.TTL - 1
		if err := e.transport.Broadcast(&fwd); err != nil {
			e.log.Warnw("rebroadcast route request failed", "err", err)
		}
	}
}

func (e *Engine) replyAsDestination(payload RouteRequestPayload, sender frame.NodeID) {
	seq := atomic.AddUint32(&e.localSeq, 1)
	reply := RouteReplyPayload{
		Dest:            e.self,
		DestSeq:         seq,
		Orig:            payload.Orig,
		HopCount:        1,
		LifetimeSeconds: e.cfg.RouteLifetime.Seconds(),
		DestLat:         e.selfLat,
		DestLon:         e.selfLon,
	}
	e.sendReply(reply, sender)
}

func (e *Engine) replyAsIntermediate(payload RouteRequestPayload, route *RouteEntry, sender frame.NodeID) {
	reply := RouteReplyPayload{
		Dest:            payload.Dest,
		DestSeq:         route.DestSeq,
		Orig:            payload.Orig,
		HopCount:        route.HopCount + 1,
		LifetimeSeconds: e.cfg.RouteLifetime.Seconds(),
	}
	e.sendReply(reply, sender)
}

func (e *Engine) sendReply(reply RouteReplyPayload, nextHop frame.NodeID) {
	body, err := json.Marshal(reply)
	if err != nil {
		e.log.Errorw("marshal route reply", "err", err)
		return
	}

	f := &frame.Frame{
		Kind:    frame.KindRouteReply,
		Src:     e.self,
		Dst:     nextHop,
		Seq:     e.nextFrameSeq(),
		Hops:    reply.HopCount,
		TTL:     e.cfg.MaxTTL,
		Payload: body,
	}
	if err := e.transport.Unicast(f, nextHop); err != nil {
		e.log.Warnw("unicast route reply failed", "nextHop", nextHop, "err", err)
	}
}

// HandleRouteReply processes a RouteReply frame received from sender,
// installing the forward route if it beats the existing entry, then either
// resolving local pending discoveries or forwarding toward the originator.
func (e *Engine) HandleRouteReply(sender frame.NodeID, f *frame.Frame) {
	var payload RouteReplyPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		e.log.Debugw("malformed route reply", "err", err)
		return
	}

	now := e.clock.Now()
	e.neighbors.Touch(sender, now)

	e.routesMu.Lock()
	existing := e.routes[payload.Dest]
	if betterThan(payload.DestSeq, payload.HopCount, existing) {
		e.routes[payload.Dest] = &RouteEntry{
			Dest:      payload.Dest,
			NextHop:   sender,
			HopCount:  payload.HopCount,
			DestSeq:   payload.DestSeq,
			ExpiresAt: now.Add(e.cfg.RouteLifetime),
		}
	}
	current := e.routes[payload.Dest]
	e.routesMu.Unlock()

	if payload.Orig == e.self {
		e.resolvePending(payload.Dest, current)
		return
	}

	e.routesMu.Lock()
	reverse := e.routes[payload.Orig]
	validReverse := reverse.valid(now)
	var nextHop frame.NodeID
	if validReverse {
		nextHop = reverse.NextHop
		if dstEntry := e.routes[payload.Dest]; dstEntry != nil {
			dstEntry.addPrecursor(nextHop)
		}
	}
	e.routesMu.Unlock()

	if !validReverse {
		e.log.Debugw("no reverse route to forward reply", "orig", payload.Orig)
		return
	}

	forwardPayload := payload
	forwardPayload.HopCount = payload.HopCount + 1
	e.sendReply(forwardPayload, nextHop)
}

// ReportUnreachable invalidates the route to dest (e.g. after repeated
// retransmit failure) and notifies every precursor with a RouteError.
func (e *Engine) ReportUnreachable(dest frame.NodeID) {
	e.routesMu.Lock()
	entry, ok := e.routes[dest]
	if !ok {
		e.routesMu.Unlock()
		return
	}
	delete(e.routes, dest)
	precursors := entry.Precursors
	destSeq := entry.DestSeq + 1
	e.routesMu.Unlock()

	e.propagateRouteError(dest, destSeq, precursors)
}

// HandleRouteError processes a RouteError received from sender, invalidating
// the local entry for unreachable_dest only if its next hop is the sender,
// then propagating to its own precursors.
func (e *Engine) HandleRouteError(sender frame.NodeID, f *frame.Frame) {
	var payload RouteErrorPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		e.log.Debugw("malformed route error", "err", err)
		return
	}

	e.routesMu.Lock()
	entry, ok := e.routes[payload.UnreachableDest]
	if !ok || entry.NextHop != sender {
		e.routesMu.Unlock()
		return
	}
	delete(e.routes, payload.UnreachableDest)
	precursors := entry.Precursors
	e.routesMu.Unlock()

	e.propagateRouteError(payload.UnreachableDest, payload.DestSeq, precursors)
}

func (e *Engine) propagateRouteError(dest frame.NodeID, destSeq uint32, precursors map[frame.NodeID]struct{}) {
	if len(precursors) == 0 {
		return
	}

	payload := RouteErrorPayload{UnreachableDest: dest, DestSeq: destSeq}
	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Errorw("marshal route error", "err", err)
		return
	}

	for p := range precursors {
		f := &frame.Frame{
			Kind:    frame.KindRouteError,
			Src:     e.self,
			Dst:     p,
			Seq:     e.nextFrameSeq(),
			TTL:     1,
			Payload: body,
		}
		if err := e.transport.Unicast(f, p); err != nil {
			e.log.Warnw("unicast route error failed", "precursor", p, "err", err)
		}
	}
}

// InvalidateStaleNeighbors scans the neighbor table for peers silent
// beyond maxAge and reports every route routed through one as unreachable.
func (e *Engine) InvalidateStaleNeighbors(maxAge time.Duration) {
	now := e.clock.Now()
	stale := e.neighbors.Stale(now, maxAge)
	if len(stale) == 0 {
		return
	}
	staleSet := make(map[frame.NodeID]struct{}, len(stale))
	for _, n := range stale {
		staleSet[n] = struct{}{}
	}

	e.routesMu.Lock()
	var affected []frame.NodeID
	for dest, entry := range e.routes {
		if _, ok := staleSet[entry.NextHop]; ok {
			affected = append(affected, dest)
		}
	}
	e.routesMu.Unlock()

	for _, dest := range affected {
		e.ReportUnreachable(dest)
	}
}

// Beacon broadcasts a one-hop liveness/discovery beacon advertising up to
// ten content hashes.
func (e *Engine) Beacon(declaredBandwidth, declaredUptime float64, contentHashes []string) error {
	if len(contentHashes) > maxBeaconContentHashes {
		contentHashes = contentHashes[:maxBeaconContentHashes]
	}

	payload := BeaconPayload{
		Lat:               e.selfLat,
		Lon:               e.selfLon,
		DeclaredBandwidth: declaredBandwidth,
		DeclaredUptime:    declaredUptime,
		ContentHashes:      contentHashes,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	f := &frame.Frame{
		Kind:    frame.KindBeacon,
		Src:     e.self,
		Dst:     frame.BroadcastID,
		Seq:     e.nextFrameSeq(),
		TTL:     2,
		Payload: body,
	}
	return e.transport.Broadcast(f)
}

// HandleBeacon refreshes the neighbor record for sender and indexes any
// advertised content hashes. Beacons are never rebroadcast.
func (e *Engine) HandleBeacon(sender frame.NodeID, f *frame.Frame) {
	var payload BeaconPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		e.log.Debugw("malformed beacon", "err", err)
		return
	}

	now := e.clock.Now()
	e.neighbors.TouchWithPosition(sender, payload.Lat, payload.Lon, now)

	for _, h := range payload.ContentHashes {
		e.indexContent(h, sender)
	}
}

func (e *Engine) indexContent(hash string, provider frame.NodeID) {
	e.contentMu.Lock()
	defer e.contentMu.Unlock()

	providers, ok := e.contentIndex[hash]
	if !ok {
		providers = make(map[frame.NodeID]struct{})
		e.contentIndex[hash] = providers
	}
	providers[provider] = struct{}{}
}

// Providers returns the known providers of a content hash, as learned from
// beacons and content announcements.
func (e *Engine) Providers(hash string) []frame.NodeID {
	e.contentMu.Lock()
	defer e.contentMu.Unlock()

	out := make([]frame.NodeID, 0, len(e.contentIndex[hash]))
	for id := range e.contentIndex[hash] {
		out = append(out, id)
	}
	return out
}
