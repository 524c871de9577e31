package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleFrame() *Frame {
	return &Frame{
		Kind:    KindData,
		Src:     NodeID("node-A"),
		Dst:     NodeID("node-B"),
		Seq:     42,
		Hops:    1,
		TTL:     9,
		Payload: []byte("hello mesh"),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFrame()
	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)

	require.Equal(t, f.Kind, got.Kind)
	require.Equal(t, f.Src, got.Src)
	require.Equal(t, f.Dst, got.Dst)
	require.Equal(t, f.Seq, got.Seq)
	require.Equal(t, f.Hops, got.Hops)
	require.Equal(t, f.TTL, got.TTL)
	require.Equal(t, f.Payload, got.Payload)
	require.True(t, Verify(got))
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	_, err := Decode(make([]byte, minFrameLen-1))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsTruncatedFEC(t *testing.T) {
	f := sampleFrame()
	b, err := Encode(f)
	require.NoError(t, err)

	// Claim a huge FEC length field to force an out-of-range slice.
	b[45] = 0xFF
	b[46] = 0xFF
	_, err = Decode(b)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	f := sampleFrame()
	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)

	got.Payload[0] ^= 0xFF
	require.False(t, Verify(got))
}

func TestEncodeRejectsOversizedFrame(t *testing.T) {
	f := sampleFrame()
	f.Payload = make([]byte, MaxFrameBytes)
	_, err := Encode(f)
	require.ErrorIs(t, err, ErrOversized)
}

func TestIDTruncationAndPadding(t *testing.T) {
	f := sampleFrame()
	f.Src = NodeID("this-identifier-is-far-too-long-for-the-wire")
	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, NodeID("this-identifier-is-far-too-long-for-the-wire"[:16]), got.Src)
}

// TestFECSingleByteRepair is scenario S1 from the spec.
func TestFECSingleByteRepair(t *testing.T) {
	p := []byte("hello world")
	_, fec := FECEncode(p)
	require.Len(t, fec, 4+4)

	corrupted := append([]byte(nil), p...)
	corrupted[3] ^= 0xFF

	recovered := FECDecode(corrupted, fec)
	require.Equal(t, p, recovered)
}

func TestFECRoundTripNoCorruption(t *testing.T) {
	p := []byte("the mesh carries the song")
	_, fec := FECEncode(p)
	require.Equal(t, p, FECDecode(p, fec))
}

// TestFECSingleByteSubstitutionInvariant is invariant 2 from the spec:
// for every single-byte substitution, decode returns either the original
// or the substituted value, never anything else.
func TestFECSingleByteSubstitutionInvariant(t *testing.T) {
	p := []byte("narrowband radio link")
	_, fec := FECEncode(p)

	for i := range p {
		for delta := 1; delta < 256; delta *= 2 {
			mutated := append([]byte(nil), p...)
			mutated[i] ^= byte(delta)

			got := FECDecode(mutated, fec)
			if !bytesEqual(got, p) && !bytesEqual(got, mutated) {
				t.Fatalf("fec_decode at pos %d delta %d returned unrelated value", i, delta)
			}
		}
	}
}
