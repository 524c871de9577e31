package routing

import (
	"encoding/json"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// Announce rate-limits on "content:<hash>", wraps the JSON payload in FEC,
// and broadcasts a ContentAnnounce at half the maximum TTL. buildProof
// produces a fresh FreshnessClaim bound to "broadcast:<hash>".
func (e *Engine) Announce(hash string, buildProof func(message string) FreshnessClaim) error {
	key := "content:" + hash
	if !e.limiter.Check(key) {
		return ErrLimitedAnnounce
	}

	message := "broadcast:" + hash
	payload := ContentAnnouncePayload{
		ContentHash:    hash,
		ProviderID:     e.self,
		FreshnessProof: buildProof(message),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	data, fec := frame.FECEncode(body)
	f := &frame.Frame{
		Kind:    frame.KindContentAnnounce,
		Src:     e.self,
		Dst:     frame.BroadcastID,
		Seq:     e.nextFrameSeq(),
		Hops:    0,
		TTL:     e.cfg.MaxTTL / 2,
		Payload: data,
		FEC:     fec,
	}
	return e.transport.Broadcast(f)
}

// HandleContentAnnounce verifies the freshness proof attached to an
// incoming ContentAnnounce, indexes the provider on success, and
// re-broadcasts once (hops+1, ttl-1) while TTL and hop budget allow.
func (e *Engine) HandleContentAnnounce(sender frame.NodeID, f *frame.Frame) {
	repaired := frame.FECDecode(f.Payload, f.FEC)

	var payload ContentAnnouncePayload
	if err := json.Unmarshal(repaired, &payload); err != nil {
		e.log.Debugw("malformed content announce", "err", err)
		return
	}

	message := "broadcast:" + payload.ContentHash
	if e.freshness == nil || !e.freshness.VerifyFreshness(payload.FreshnessProof, message) {
		e.log.Debugw("content announce failed freshness check", "hash", payload.ContentHash, "provider", payload.ProviderID)
		return
	}

	e.indexContent(payload.ContentHash, payload.ProviderID)

	if f.TTL <= 1 || f.Hops >= e.cfg.MaxTTL {
		return
	}

	fwd := *f
	fwd.Payload = repaired
	fwd.Hops = f.Hops + 1
	fwd.TTL = f.TTL - 1
	if err := e.transport.Broadcast(&fwd); err != nil {
		e.log.Warnw("rebroadcast content announce failed", "err", err)
	}
}
