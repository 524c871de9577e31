package proof

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newGenVerifier(clock clockwork.Clock) (*Generator, *Verifier) {
	return NewGenerator("node-A", []byte("01234567890123456789012345678901"), clock), NewVerifier(clock)
}

func TestMerkleRootEmptyIsFixed(t *testing.T) {
	require.Equal(t, hexSHA256([]byte("empty")), MerkleRoot(nil))
}

func TestMerkleRootDuplicatesOddLevel(t *testing.T) {
	root := MerkleRoot([]string{"a", "b", "c"})
	require.Len(t, root, 64)

	// Changing the odd one out should change the root.
	other := MerkleRoot([]string{"a", "b", "d"})
	require.NotEqual(t, root, other)
}

func TestBandwidthProofRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	p, err := gen.GenerateBandwidthProof(1024, []string{"hash1", "hash2"}, 5)
	require.NoError(t, err)
	require.Len(t, p.Challenges, 5)
	require.Len(t, p.Responses, 5)
	require.True(t, verifier.VerifyBandwidthProof(p, 0))
}

func TestBandwidthProofRejectsBelowMinimum(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	p, err := gen.GenerateBandwidthProof(100, []string{"x"}, 3)
	require.NoError(t, err)
	require.False(t, verifier.VerifyBandwidthProof(p, 1000))
}

func TestBandwidthProofRejectsExpiredCommitment(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	p, err := gen.GenerateBandwidthProof(1024, []string{"hash1"}, 2)
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	require.False(t, verifier.VerifyBandwidthProof(p, 0))
}

// TestUptimeProofBoundary is scenario S3: participation=45, total=50,
// claimed uptime 90.0 must accept; changing the claim to 82.0 must reject.
func TestUptimeProofBoundary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, verifier := newGenVerifier(clock)

	accept := &UptimeProof{
		Commitment:         Commitment{IssuedAt: clock.Now().Unix()},
		UptimePercentage:   90.0,
		ParticipationCount: 45,
		TotalBeacons:       50,
	}
	require.True(t, verifier.VerifyUptimeProof(accept))

	reject := &UptimeProof{
		Commitment:         Commitment{IssuedAt: clock.Now().Unix()},
		UptimePercentage:   82.0,
		ParticipationCount: 45,
		TotalBeacons:       50,
	}
	require.False(t, verifier.VerifyUptimeProof(reject))
}

func TestUptimeProofGeneratedClaimVerifies(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	beacons := make([]string, 45)
	for i := range beacons {
		beacons[i] = "b"
	}
	p, err := gen.GenerateUptimeProof(90.0, 3600, beacons)
	require.NoError(t, err)
	require.True(t, verifier.VerifyUptimeProof(p))
}

func TestProximityProofRejectsOutOfRangeBound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	p, err := gen.GenerateProximityProof(37.0, -122.0, 50)
	require.NoError(t, err)
	require.True(t, verifier.VerifyProximityProof(p))

	p.DistanceUpperBoundKm = 10001
	require.False(t, verifier.VerifyProximityProof(p))

	p.DistanceUpperBoundKm = 0
	require.False(t, verifier.VerifyProximityProof(p))
}

// TestFreshnessProofChainIntegrity covers Testable Property #6: the
// nonce chain satisfies chain[i+1] == sha256(chain[i]) for all i, and any
// break rejects.
func TestFreshnessProofChainIntegrity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	p, err := gen.GenerateFreshnessProof("broadcast:abc123", 5)
	require.NoError(t, err)
	require.Len(t, p.Chain, 5)

	for i := 0; i < len(p.Chain)-1; i++ {
		require.Equal(t, hexSHA256([]byte(p.Chain[i])), p.Chain[i+1])
	}
	require.True(t, verifier.VerifyFreshnessProof(p))

	broken := *p
	broken.Chain = append([]string(nil), p.Chain...)
	broken.Chain[2] = "tampered"
	require.False(t, verifier.VerifyFreshnessProof(&broken))
}

func TestFreshnessClaimRoundTripThroughRoutingShape(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	message := "broadcast:deadbeef"
	p, err := gen.GenerateFreshnessProof(message, 5)
	require.NoError(t, err)

	claim := p.ToClaim()
	require.True(t, verifier.VerifyFreshness(claim, message))
	require.False(t, verifier.VerifyFreshness(claim, "broadcast:wrong"))
}

func TestUniquenessProofPoWAndRingBounds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen, verifier := newGenVerifier(clock)

	p, err := gen.GenerateUniquenessProof(8, 10)
	require.NoError(t, err)
	require.True(t, verifier.VerifyUniquenessProof(p, 8))

	p.RingMembers = 3
	require.False(t, verifier.VerifyUniquenessProof(p, 8))
}
