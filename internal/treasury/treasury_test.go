package treasury

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vestlabs/vesting-service/internal/domain"
)

func testInstruction() Instruction {
	return InstructionFor(&domain.Transfer{
		ID:          "t-1",
		PoolID:      "p-1",
		GrantID:     "g-1",
		TokenType:   "mint",
		Beneficiary: "alice",
		Amount:      500,
	})
}

func TestWebhookTreasury(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "t-1", r.Header.Get("Idempotency-Key"))
		var in Instruction
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "500", in.Amount)
		assert.Equal(t, domain.Identity("alice"), in.Beneficiary)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewWebhookTreasury(WebhookConfig{URL: srv.URL, RetryMax: 1}, zaptest.NewLogger(t))
	require.NoError(t, tr.Transfer(context.Background(), testInstruction()))
	require.EqualValues(t, 1, calls.Load())
}

func TestWebhookTreasuryRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewWebhookTreasury(WebhookConfig{
		URL:          srv.URL,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, tr.Transfer(context.Background(), testInstruction()))
	require.EqualValues(t, 2, calls.Load())
}

func TestWebhookTreasuryRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown mint", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewWebhookTreasury(WebhookConfig{URL: srv.URL}, zaptest.NewLogger(t))
	err := tr.Transfer(context.Background(), testInstruction())
	require.ErrorContains(t, err, "400")
	require.ErrorContains(t, err, "unknown mint")
}

func TestLogTreasury(t *testing.T) {
	require.NoError(t, NewLogTreasury(zaptest.NewLogger(t)).Transfer(context.Background(), testInstruction()))
}
