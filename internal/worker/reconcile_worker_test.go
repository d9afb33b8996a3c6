package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingReconciler struct {
	calls atomic.Int32
	done  chan struct{}
}

func (r *countingReconciler) ReconcileTransfers(context.Context) (int, error) {
	r.calls.Add(1)
	r.done <- struct{}{}
	return 1, nil
}

func TestReconcileWorkerTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &countingReconciler{done: make(chan struct{}, 4)}
	w := NewReconcileWorker(rec, clock, time.Minute, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	<-rec.done
	clock.Advance(time.Minute)
	<-rec.done
	require.EqualValues(t, 2, rec.calls.Load())

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestReconcileWorkerDisabled(t *testing.T) {
	rec := &countingReconciler{done: make(chan struct{}, 1)}
	w := NewReconcileWorker(rec, clockwork.NewFakeClock(), 0, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	require.Zero(t, rec.calls.Load())
}
