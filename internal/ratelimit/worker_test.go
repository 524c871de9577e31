package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/testlog"
)

func TestWorkerResendsDueFrames(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr := NewRetransmitManager(clock, time.Second, 2.0, 3)
	mgr.Track(testFrame(42))

	var mu sync.Mutex
	var resent []uint16
	w := NewWorker(mgr, clock, time.Second, func(f *frame.Frame) {
		mu.Lock()
		resent = append(resent, f.Seq)
		mu.Unlock()
	}, testlog.New(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(resent) == 1 && resent[0] == 42
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr := NewRetransmitManager(clock, time.Second, 2.0, 3)
	w := NewWorker(mgr, clock, time.Second, func(*frame.Frame) {}, testlog.New(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
