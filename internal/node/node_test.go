package node

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/config"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/identity"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/proof"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/quorum"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/testlog"
)

type chatPayload struct {
	Text string `json:"text"`
}

func newTestNode(t *testing.T, ether *fakeEther, lat, lon float64, clock clockwork.Clock) *Node {
	t.Helper()
	id, err := identity.New(lat, lon)
	require.NoError(t, err)

	cfg := config.NewConfig(
		config.WithLogger(testlog.New(t)),
		config.WithClock(clock),
		config.WithMaxTTL(4),
		config.WithBeaconInterval(time.Hour),
		config.WithRetransmitSchedule(time.Hour, 1.5, 3),
		config.WithQuorum(2, 2),
	)
	radio := ether.register(id.ID)
	n := New(id, cfg, radio)
	t.Cleanup(radio.Close)
	return n
}

func TestNodeRouteDiscoveryAndSecureMessageRoundTrip(t *testing.T) {
	ether := newFakeEther()
	clock := clockwork.NewFakeClock()
	a := newTestNode(t, ether, 1, 1, clock)
	b := newTestNode(t, ether, 2, 2, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	b.Start(ctx)
	defer a.Stop()
	defer b.Stop()

	sessionA, err := a.EstablishSession(b.ID())
	require.NoError(t, err)
	b.messenger.InstallSession(string(a.ID()), sessionA.SessionKey)

	err = a.SendSecureMessage(b.ID(), "chat", chatPayload{Text: "hello mesh"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case msg := <-b.Inbox():
			var payload chatPayload
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			return msg.KindTag == "chat" && payload.Text == "hello mesh" && msg.Sender == a.ID()
		default:
			return false
		}
	}, time.Second, time.Millisecond, "expected chat message to arrive at b's inbox")

	require.Eventually(t, func() bool {
		return a.retransmit.Len() == 0
	}, time.Second, time.Millisecond, "expected a's retransmit entry to be acked")
}

func TestNodeBandwidthRewardClaimFlowReachesQuorum(t *testing.T) {
	ether := newFakeEther()
	clock := clockwork.NewFakeClock()
	claimant := newTestNode(t, ether, 0, 0, clock)
	verifier := newTestNode(t, ether, 0, 1, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	claimant.Start(ctx)
	verifier.Start(ctx)
	defer claimant.Stop()
	defer verifier.Stop()

	sessionC, err := claimant.EstablishSession(verifier.ID())
	require.NoError(t, err)
	verifier.messenger.InstallSession(string(claimant.ID()), sessionC.SessionKey)

	claimID, err := claimant.SubmitBandwidthRewardClaim(verifier.ID(), "content-hash-abc", 4096, []string{"h1", "h2"}, 12.5)
	require.NoError(t, err)
	require.NotEmpty(t, claimID)

	require.Eventually(t, func() bool {
		claim, err := verifier.Quorum().Claim(claimID)
		return err == nil && claim.State == quorum.StatePending
	}, time.Second, time.Millisecond, "expected verifier to record the pending claim")

	_, err = verifier.Quorum().RecordApproval(quorum.VerifierApproval{
		ClaimID: claimID, VerifierID: "v1", Approve: true, ProofValid: true, Signature: "sig1",
	})
	require.NoError(t, err)
	claim, err := verifier.Quorum().RecordApproval(quorum.VerifierApproval{
		ClaimID: claimID, VerifierID: "v2", Approve: true, ProofValid: true, Signature: "sig2",
	})
	require.NoError(t, err)
	require.Equal(t, quorum.StateApproved, claim.State)

	select {
	case verified := <-verifier.Quorum().Verified():
		require.Equal(t, claimID, verified.ClaimID)
		require.Equal(t, string(claimant.ID()), verified.Claimant)
	default:
		t.Fatal("expected a VerifiedClaim on the quorum channel")
	}
}

func TestNodeDispatchRecordsVerifiedUptimeProof(t *testing.T) {
	ether := newFakeEther()
	clock := clockwork.NewFakeClock()
	a := newTestNode(t, ether, 0, 0, clock)
	t.Cleanup(a.Stop)

	gen := proof.NewGenerator("peer-x", []byte("peer-x-secret-key-32-bytes-long!"), clock)
	p, err := gen.GenerateUptimeProof(95.0, 3600, []string{"b1", "b2", "b3", "b4"})
	require.NoError(t, err)
	body, err := json.Marshal(p)
	require.NoError(t, err)

	f := &frame.Frame{
		Kind:    frame.KindUptimeProof,
		Src:     frame.NodeID("peer-x"),
		Dst:     frame.BroadcastID,
		Payload: body,
	}
	a.dispatch(f)

	pct, ok := a.uptime.LastKnownUptime("peer-x")
	require.True(t, ok)
	require.InDelta(t, 95.0, pct, 0.001)
}
