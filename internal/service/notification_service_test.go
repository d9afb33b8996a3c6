package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vestlabs/vesting-service/internal/config"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/events"
)

type hookRecorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (h *hookRecorder) add(body map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bodies = append(h.bodies, body)
}

func (h *hookRecorder) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var types []string
	for _, b := range h.bodies {
		typ, _ := b["type"].(string)
		types = append(types, typ)
	}
	return types
}

// newHook starts a webhook receiver; slow lists event types it answers only after delay.
func newHook(t *testing.T, status int, delay time.Duration, slow ...events.EventType) (*httptest.Server, *hookRecorder) {
	t.Helper()
	rec := &hookRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		rec.add(body)
		for _, typ := range slow {
			if body["type"] == string(typ) {
				select {
				case <-time.After(delay):
				case <-r.Context().Done():
					return
				}
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNotificationServiceDeliversEveryEvent(t *testing.T) {
	srv, rec := newHook(t, http.StatusNoContent, 0)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zaptest.NewLogger(t), config.NotificationConfig{WebhookURL: srv.URL}).RegisterHandlers()

	ctx := context.Background()
	all := []events.EventType{
		events.EventPoolCreated, events.EventPoolFunded, events.EventGrantCreated,
		events.EventTokensClaimed, events.EventTransferCompleted, events.EventTransferFailed,
	}
	for _, typ := range all {
		require.NoError(t, dispatcher.Publish(ctx, events.Event{
			ID:      "evt-" + string(typ),
			Type:    typ,
			PoolID:  "pool-1",
			GrantID: "grant-1",
			Payload: events.TransferPayload{TransferID: "t-1", Amount: "750", Attempts: 1},
		}))
	}

	var want []string
	for _, typ := range all {
		want = append(want, string(typ))
	}
	require.Equal(t, want, rec.types())

	first := rec.bodies[0]
	require.Equal(t, "evt-pool_created", first["id"])
	require.Equal(t, "pool-1", first["pool_id"])
	payload, ok := first["payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "750", payload["amount"])
}

func TestNotificationServiceRejectedDelivery(t *testing.T) {
	srv, rec := newHook(t, http.StatusBadRequest, 0)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zaptest.NewLogger(t), config.NotificationConfig{WebhookURL: srv.URL}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{ID: "e-1", Type: events.EventPoolFunded, PoolID: "p"})
	require.ErrorContains(t, err, "webhook returned 400")
	require.Len(t, rec.types(), 1)
}

func TestNotificationServiceWithoutWebhook(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zaptest.NewLogger(t), config.NotificationConfig{WebhookURL: "  "}).RegisterHandlers()

	for _, typ := range []events.EventType{events.EventGrantCreated, events.EventTransferFailed} {
		require.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: typ, PoolID: "p"}))
	}
}

func TestNotificationServiceIgnoresCallerDeadline(t *testing.T) {
	srv, rec := newHook(t, http.StatusOK, 0)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zaptest.NewLogger(t), config.NotificationConfig{WebhookURL: srv.URL}).RegisterHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{ID: "e-1", Type: events.EventTokensClaimed, PoolID: "p"}))
	require.Equal(t, []string{string(events.EventTokensClaimed)}, rec.types())
}

func TestNotificationServiceBoundsSlowWebhook(t *testing.T) {
	srv, _ := newHook(t, http.StatusOK, 10*time.Second, events.EventPoolCreated)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zaptest.NewLogger(t), config.NotificationConfig{
		WebhookURL:     srv.URL,
		TimeoutSeconds: 1,
	}).RegisterHandlers()

	started := time.Now()
	err := dispatcher.Publish(context.Background(), events.Event{ID: "e-1", Type: events.EventPoolCreated, PoolID: "p"})
	require.Error(t, err)
	require.Less(t, time.Since(started), 5*time.Second)
}

func TestClaimReachesTreasuryBeforeSlowNotifications(t *testing.T) {
	tt := newTester(t)
	srv, rec := newHook(t, http.StatusOK, 300*time.Millisecond, events.EventTokensClaimed, events.EventTransferCompleted)
	NewNotificationService(tt.dispatcher, zaptest.NewLogger(t), config.NotificationConfig{
		WebhookURL:     srv.URL,
		TimeoutSeconds: 2,
	}).RegisterHandlers()

	pool := tt.fundedPool(t, 10_000)
	grant := tt.grant(t, pool.ID, alice, 0, 100, 200, 1000)

	tt.treasury.On("Transfer", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := tt.Claim(ctx, alice, grant.ID, 200)
	require.NoError(t, err)
	require.EqualValues(t, 1000, res.Amount)
	require.Equal(t, domain.TransferStatusCompleted, res.Transfer.Status)

	stored, err := tt.store.GetTransfer(context.Background(), res.Transfer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferStatusCompleted, stored.Status)

	require.Equal(t, []events.EventType{
		events.EventPoolCreated, events.EventPoolFunded, events.EventGrantCreated,
		events.EventTokensClaimed, events.EventTransferCompleted,
	}, tt.eventTypes())
	require.Contains(t, rec.types(), string(events.EventTransferCompleted))
}
