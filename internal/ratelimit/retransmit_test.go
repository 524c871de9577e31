package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

func testFrame(seq uint16) *frame.Frame {
	return &frame.Frame{
		Kind:    frame.KindData,
		Src:     frame.NodeID("A"),
		Dst:     frame.NodeID("B"),
		Seq:     seq,
		Payload: []byte("x"),
	}
}

func TestRetransmitAckRemovesEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewRetransmitManager(clock, time.Second, 1.5, 3)

	m.Track(testFrame(1))
	require.Equal(t, 1, m.Len())
	require.True(t, m.Ack(1))
	require.Equal(t, 0, m.Len())
	require.False(t, m.Ack(1))
}

func TestRetransmitDueRespectsBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewRetransmitManager(clock, time.Second, 2.0, 3)

	m.Track(testFrame(7))

	require.Empty(t, m.Due())

	clock.Advance(999 * time.Millisecond)
	require.Empty(t, m.Due())

	clock.Advance(2 * time.Millisecond)
	due := m.Due()
	require.Len(t, due, 1)
	require.Equal(t, uint16(7), due[0].Seq)

	// Next timeout should now be base*2^1 = 2s away, not 1s.
	clock.Advance(1500 * time.Millisecond)
	require.Empty(t, m.Due())

	clock.Advance(600 * time.Millisecond)
	require.Len(t, m.Due(), 1)
}

func TestRetransmitEvictsAfterMaxRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewRetransmitManager(clock, time.Second, 1.0, 2)

	m.Track(testFrame(3))

	clock.Advance(2 * time.Second)
	require.Len(t, m.Due(), 1) // retries 0 -> 1

	clock.Advance(2 * time.Second)
	require.Len(t, m.Due(), 1) // retries 1 -> 2

	clock.Advance(2 * time.Second)
	require.Empty(t, m.Due()) // retries == maxRetries, evicted
	require.Equal(t, 0, m.Len())
}
