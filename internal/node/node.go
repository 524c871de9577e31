// Package node wires the frame codec, rate limiter, routing engine, proof
// generator/verifier, secure messenger, and quorum coordinator into a
// single per-process handle, matching the "one logical node instance per
// process, multiple concurrent tasks" scheduling model.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/config"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/identity"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/messaging"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/metrics"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/proof"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/quorum"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/ratelimit"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/routing"
)

// staleNeighborMultiple is the number of beacon intervals a neighbor may
// go silent before its routes are invalidated.
const staleNeighborMultiple = 3

// InboundMessage is an application-layer secure message this node has
// decrypted and does not itself interpret (anything whose KindTag isn't
// "reward_claim" or "verifier_approval"). The application layer that
// consumes these is an external collaborator.
type InboundMessage struct {
	Sender  frame.NodeID
	KindTag string
	Payload []byte
}

// Node is one mesh participant: its identity, its routing and reward
// state, and the radio it speaks through. It owns its counters, routing
// table, pending-discovery table, rate windows, retransmit entries, and
// session contexts, per the single-owner model.
type Node struct {
	id    *identity.NodeIdentity
	cfg   *config.Config
	radio RadioAdapter

	transport  *radioTransport
	limiter    *ratelimit.Limiter
	retransmit *ratelimit.RetransmitManager
	routing    *routing.Engine
	proofGen   *proof.Generator
	verifier   *proof.Verifier
	messenger  *messaging.Messenger
	quorum     *quorum.Coordinator
	bandwidth  *BandwidthCounters
	uptime     *uptimeTracker

	log   log.Logger
	clock clockwork.Clock

	inbox chan InboundMessage

	frameSeq uint32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Node for id, configured by cfg, speaking through
// radio. The node does not start any background work until Start is
// called.
func New(id *identity.NodeIdentity, cfg *config.Config, radio RadioAdapter) *Node {
	logger := cfg.Logger().Named("node").With("node_id", string(id.ID))
	clock := cfg.Clock()

	transport := newRadioTransport(radio)
	limiter := ratelimit.NewLimiter(clock, cfg.DefaultRateLimit)
	retransmit := ratelimit.NewRetransmitManager(clock, cfg.RetryTimeout, cfg.BackoffFactor, cfg.MaxRetries)
	verifier := proof.NewVerifier(clock)
	uptime := newUptimeTracker()

	routingEngine := routing.NewEngine(id.ID, id.Lat, id.Lon, clock, transport, limiter, verifier, logger, cfg.RoutingConfig())

	n := &Node{
		id:         id,
		cfg:        cfg,
		radio:      radio,
		transport:  transport,
		limiter:    limiter,
		retransmit: retransmit,
		routing:    routingEngine,
		proofGen:   proof.NewGenerator(string(id.ID), id.SecretKey, clock),
		verifier:   verifier,
		messenger:  messaging.NewMessenger(string(id.ID), clock, verifier, logger),
		quorum:     quorum.NewCoordinator(cfg.QuorumConfig(), uptime, clock, logger),
		bandwidth:  NewBandwidthCounters(clock.Now()),
		uptime:     uptime,
		log:        logger,
		clock:      clock,
		inbox:      make(chan InboundMessage, 64),
	}
	return n
}

// ID returns the node's identifier.
func (n *Node) ID() frame.NodeID { return n.id.ID }

func (n *Node) nextSeq() uint16 {
	return uint16(atomic.AddUint32(&n.frameSeq, 1))
}

// Routing exposes the routing engine for callers that need to discover
// routes or announce content directly.
func (n *Node) Routing() *routing.Engine { return n.routing }

// Quorum exposes the reward-claim quorum coordinator.
func (n *Node) Quorum() *quorum.Coordinator { return n.quorum }

// Bandwidth exposes this node's own contribution counters.
func (n *Node) Bandwidth() *BandwidthCounters { return n.bandwidth }

// Inbox delivers application-layer secure messages this node decrypted
// but does not itself interpret.
func (n *Node) Inbox() <-chan InboundMessage { return n.inbox }

// Start launches the receive loop and the periodic beacon and
// retransmit tasks. It returns once the tasks are running; Stop cancels
// them.
func (n *Node) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	worker := ratelimit.NewWorker(n.retransmit, n.clock, n.cfg.RetryTimeout, n.resend, n.log)

	n.wg.Add(2)
	go n.receiveLoop(ctx)
	go n.beaconLoop(ctx)
	go func() {
		defer n.wg.Done()
		worker.Run(ctx)
	}()
}

// Stop cancels the receive loop and the beacon and retransmit tasks, waits
// for the beacon and retransmit tasks to return, and then resolves every
// route discovery still pending with a timeout outcome. It does not wait
// for the receive loop, which returns once its current RadioAdapter.Receive
// call returns (on the next frame, or when the radio is closed). In-flight
// encrypt/decrypt/proof computations complete.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	// Evaluating expiry one full discovery timeout ahead of now times out
	// every pending discovery; the fallbacks mirror routing.NewEngine.
	timeout := n.cfg.DiscoveryTimeout
	if timeout == 0 {
		timeout = n.cfg.RouteLifetime
	}
	if timeout == 0 {
		timeout = routing.DefaultRouteLifetime
	}
	n.routing.ExpirePending(n.clock.Now().Add(timeout))
}

func (n *Node) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, rssi, snr, err := n.radio.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.log.Warnw("radio receive failed", "err", err)
			continue
		}
		n.handleRawFrame(raw, rssi, snr)
	}
}

func (n *Node) beaconLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := n.clock.NewTicker(n.cfg.BeaconInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n.bandwidth.Tick(n.cfg.BeaconInterval)
			n.routing.InvalidateStaleNeighbors(staleNeighborMultiple * n.cfg.BeaconInterval)
			n.routing.ExpirePending(n.clock.Now())

			if err := n.routing.Beacon(n.bandwidth.RewardScore(), 0, nil); err != nil {
				n.log.Warnw("beacon broadcast failed", "err", err)
			}
		}
	}
}

func (n *Node) resend(f *frame.Frame) {
	route := n.routing.Route(f.Dst)
	if route == nil {
		n.log.Debugw("dropping due retransmit with no route", "dest", f.Dst)
		n.routing.ReportUnreachable(f.Dst)
		return
	}
	if err := n.transport.Unicast(f, route.NextHop); err != nil {
		n.log.Warnw("retransmit failed", "dest", f.Dst, "err", err)
	}
}

// handleRawFrame decodes, checksum-verifies (attempting FEC repair on
// failure), rate-limits by source, then dispatches by kind.
func (n *Node) handleRawFrame(raw []byte, rssi int32, snr float32) {
	f, err := frame.Decode(raw)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		return
	}

	if !frame.Verify(f) {
		f.Payload = frame.FECDecode(f.Payload, f.FEC)
		if !frame.Verify(f) {
			metrics.FramesDropped.WithLabelValues("checksum").Inc()
			return
		}
	}

	if !n.limiter.Check(string(f.Src)) {
		metrics.FramesDropped.WithLabelValues("limited").Inc()
		return
	}

	n.dispatch(f)
}

func (n *Node) dispatch(f *frame.Frame) {
	switch f.Kind {
	case frame.KindRouteRequest:
		n.routing.HandleRouteRequest(f.Src, f)
		metrics.RoutesInstalled.WithLabelValues("reverse").Inc()
	case frame.KindRouteReply:
		n.routing.HandleRouteReply(f.Src, f)
		metrics.RoutesInstalled.WithLabelValues("forward").Inc()
	case frame.KindRouteError:
		n.routing.HandleRouteError(f.Src, f)
	case frame.KindBeacon:
		n.routing.HandleBeacon(f.Src, f)
	case frame.KindContentAnnounce:
		n.routing.HandleContentAnnounce(f.Src, f)
	case frame.KindAck:
		n.retransmit.Ack(f.Seq)
	case frame.KindData:
		if f.Dst == n.id.ID {
			n.handleSecureMessage(f)
		} else {
			n.forwardData(f)
		}
	case frame.KindBandwidthProof:
		n.handleBandwidthProofFrame(f.Src, f.Payload)
	case frame.KindUptimeProof:
		n.handleUptimeProofFrame(f.Src, f.Payload)
	default:
		n.log.Debugw("dropping unknown frame kind", "kind", f.Kind)
	}
}

// forwardData relays a Data frame not addressed to this node one hop
// closer to its destination, mirroring the TTL/hop bookkeeping used for
// route-request forwarding.
func (n *Node) forwardData(f *frame.Frame) {
	if f.TTL <= 1 {
		return
	}
	route := n.routing.Route(f.Dst)
	if route == nil {
		n.log.Debugw("no route to forward data frame", "dest", f.Dst)
		return
	}
	fwd := *f
	fwd.Hops = f.Hops + 1
	fwd.TTL = f.TTL - 1
	if err := n.transport.Unicast(&fwd, route.NextHop); err != nil {
		n.log.Warnw("forwarding data frame failed", "dest", f.Dst, "err", err)
	}
}

func (n *Node) sendAck(to frame.NodeID, seq uint16) {
	route := n.routing.Route(to)
	if route == nil {
		n.log.Debugw("no route to ack sender", "to", to)
		return
	}
	f := &frame.Frame{Kind: frame.KindAck, Src: n.id.ID, Dst: to, Seq: seq, TTL: 1}
	if err := n.transport.Unicast(f, route.NextHop); err != nil {
		n.log.Warnw("sending ack failed", "to", to, "err", err)
	}
}

func (n *Node) handleBandwidthProofFrame(sender frame.NodeID, payload []byte) {
	var p proof.BandwidthProof
	if err := json.Unmarshal(payload, &p); err != nil {
		n.log.Debugw("malformed bandwidth proof frame", "err", err)
		return
	}
	ok := n.verifier.VerifyBandwidthProof(&p, 0)
	metrics.ProofsVerified.WithLabelValues("bandwidth", outcomeLabel(ok)).Inc()
	if !ok {
		n.log.Debugw("rejected bandwidth proof", "sender", sender)
	}
}

func (n *Node) handleUptimeProofFrame(sender frame.NodeID, payload []byte) {
	var p proof.UptimeProof
	if err := json.Unmarshal(payload, &p); err != nil {
		n.log.Debugw("malformed uptime proof frame", "err", err)
		return
	}
	ok := n.verifier.VerifyUptimeProof(&p)
	metrics.ProofsVerified.WithLabelValues("uptime", outcomeLabel(ok)).Inc()
	if ok {
		n.uptime.Record(sender, p.UptimePercentage)
	}
}

func outcomeLabel(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

// rewardClaimRequest is the JSON body of a "reward_claim" secure message.
type rewardClaimRequest struct {
	ClaimID       string          `json:"claim_id"`
	Kind          string          `json:"kind"`
	SubjectHash   string          `json:"subject_hash"`
	TokensClaimed float64         `json:"tokens_claimed"`
	ProofPayload  json.RawMessage `json:"proof_payload"`
}

func (n *Node) handleSecureMessage(f *frame.Frame) {
	var msg messaging.SecureMessage
	if err := json.Unmarshal(f.Payload, &msg); err != nil {
		n.log.Debugw("malformed secure message frame", "err", err)
		return
	}

	plaintext, err := n.messenger.Decrypt(&msg, true)
	if err != nil {
		n.log.Debugw("secure message rejected", "sender", msg.Sender, "err", err)
		return
	}
	n.sendAck(frame.NodeID(msg.Sender), f.Seq)

	switch msg.KindTag {
	case "reward_claim":
		var req rewardClaimRequest
		if err := json.Unmarshal(plaintext, &req); err != nil {
			n.log.Debugw("malformed reward claim", "err", err)
			return
		}
		if _, err := n.quorum.SubmitClaim(req.ClaimID, msg.Sender, req.Kind, req.SubjectHash, req.TokensClaimed, req.ProofPayload); err != nil {
			n.log.Warnw("reward claim submission failed", "claimant", msg.Sender, "err", err)
		}
	case "verifier_approval":
		var approval quorum.VerifierApproval
		if err := json.Unmarshal(plaintext, &approval); err != nil {
			n.log.Debugw("malformed verifier approval", "err", err)
			return
		}
		claim, err := n.quorum.RecordApproval(approval)
		if err != nil {
			n.log.Warnw("verifier approval rejected", "claim_id", approval.ClaimID, "err", err)
			return
		}
		metrics.QuorumOutcomes.WithLabelValues(string(claim.State)).Inc()
	default:
		select {
		case n.inbox <- InboundMessage{Sender: frame.NodeID(msg.Sender), KindTag: msg.KindTag, Payload: plaintext}:
		default:
			n.log.Warnw("inbox full, dropping inbound message", "sender", msg.Sender, "kind_tag", msg.KindTag)
		}
	}
}

// SubmitBandwidthRewardClaim generates a bandwidth proof over bytesServed
// and contentHashes, encrypts it as a reward claim addressed to
// verifier, and sends it as a secure message. The returned claim ID lets
// the caller correlate the eventual VerifiedClaim.
func (n *Node) SubmitBandwidthRewardClaim(verifier frame.NodeID, subjectHash string, bytesServed uint64, contentHashes []string, tokensClaimed float64) (string, error) {
	p, err := n.proofGen.GenerateBandwidthProof(bytesServed, contentHashes, 0)
	if err != nil {
		return "", fmt.Errorf("node: generating bandwidth proof: %w", err)
	}
	proofBody, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("node: marshaling bandwidth proof: %w", err)
	}

	claimID := fmt.Sprintf("%s-%s-%d", n.id.ID, subjectHash, n.clock.Now().UnixNano())
	req := rewardClaimRequest{
		ClaimID:       claimID,
		Kind:          "bandwidth",
		SubjectHash:   subjectHash,
		TokensClaimed: tokensClaimed,
		ProofPayload:  proofBody,
	}

	attachment := &messaging.ProofAttachment{Kind: string(proof.KindBandwidth), Body: proofBody}
	if err := n.SendSecureMessage(verifier, "reward_claim", req, attachment); err != nil {
		return "", err
	}
	return claimID, nil
}

// EstablishSession creates this node's session with peer, deriving the
// session key locally; no key exchange with peer takes place, so peer
// needs the same key installed (messaging.Messenger.InstallSession) before
// it can decrypt. SendSecureMessage requires an established session.
func (n *Node) EstablishSession(peer frame.NodeID) (*messaging.SessionContext, error) {
	ctx, err := n.messenger.Establish(string(peer))
	if err != nil {
		return nil, err
	}
	metrics.SessionsEstablished.Inc()
	return ctx, nil
}

// SendSecureMessage encrypts payload under the session established with
// peer, frames it as Data, tracks it for retransmission, and sends it
// toward peer via the routing engine's current (or freshly discovered)
// route.
func (n *Node) SendSecureMessage(peer frame.NodeID, kindTag string, payload interface{}, attachedProof *messaging.ProofAttachment) error {
	msg, err := n.messenger.Encrypt(string(peer), kindTag, payload, attachedProof)
	if err != nil {
		return fmt.Errorf("node: encrypting message to %s: %w", peer, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("node: marshaling secure message: %w", err)
	}

	start := n.clock.Now()
	route, waiter := n.routing.Discover(peer)
	if route == nil {
		if waiter == nil {
			return fmt.Errorf("node: no route and no discovery in flight for %s", peer)
		}
		result := <-waiter
		metrics.DiscoveryDuration.Observe(n.clock.Since(start).Seconds())
		if result.TimedOut || result.Route == nil {
			return fmt.Errorf("node: route discovery to %s timed out", peer)
		}
		route = result.Route
	}

	f := &frame.Frame{
		Kind:    frame.KindData,
		Src:     n.id.ID,
		Dst:     peer,
		Seq:     n.nextSeq(),
		TTL:     n.cfg.MaxTTL,
		Payload: body,
	}
	n.retransmit.Track(f)
	return n.transport.Unicast(f, route.NextHop)
}
