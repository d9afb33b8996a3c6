package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Reconciler resubmits transfers the treasury has not confirmed.
type Reconciler interface {
	ReconcileTransfers(ctx context.Context) (int, error)
}

// ReconcileWorker periodically drives a Reconciler until its context ends.
type ReconcileWorker struct {
	reconciler Reconciler
	clock      clockwork.Clock
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconcileWorker creates a worker ticking every interval on clock.
func NewReconcileWorker(reconciler Reconciler, clock clockwork.Clock, interval time.Duration, logger *zap.Logger) *ReconcileWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		clock:      clock,
		interval:   interval,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables the worker.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.logger.Info("transfer reconciler disabled")
		<-ctx.Done()
		return nil
	}
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("transfer reconciler started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("transfer reconciler stopped")
			return nil
		case <-ticker.Chan():
			w.tick(ctx)
		}
	}
}

func (w *ReconcileWorker) tick(ctx context.Context) {
	completed, err := w.reconciler.ReconcileTransfers(ctx)
	if err != nil {
		w.logger.Warn("reconcile transfers", zap.Error(err))
		return
	}
	if completed > 0 {
		w.logger.Info("transfers reconciled", zap.Int("completed", completed))
	}
}
