package ratelimit

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
)

// Worker periodically polls a RetransmitManager for due frames and hands
// them to resend. Stopping the worker only cancels the polling loop — it
// never drops entries still pending in the manager.
type Worker struct {
	mgr    *RetransmitManager
	clock  clockwork.Clock
	period time.Duration
	resend func(*frame.Frame)
	log    log.Logger
}

// NewWorker constructs a retransmit worker polling mgr every period and
// handing each due frame to resend.
func NewWorker(mgr *RetransmitManager, clock clockwork.Clock, period time.Duration, resend func(*frame.Frame), logger log.Logger) *Worker {
	return &Worker{
		mgr:    mgr,
		clock:  clock,
		period: period,
		resend: resend,
		log:    logger.Named("retransmit"),
	}
}

// Run blocks, polling on each tick until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debugw("retransmit worker stopping", "pending", w.mgr.Len())
			return
		case <-ticker.Chan():
			due := w.mgr.Due()
			for _, f := range due {
				w.log.Debugw("resending frame", "seq", f.Seq, "kind", f.Kind.String())
				w.resend(f)
			}
		}
	}
}
