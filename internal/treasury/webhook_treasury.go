package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// WebhookConfig configures WebhookTreasury.
type WebhookConfig struct {
	URL          string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// WebhookTreasury POSTs instructions as JSON to the ledger service.
type WebhookTreasury struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhookTreasury builds a retrying client for cfg.URL.
func NewWebhookTreasury(cfg WebhookConfig, logger *zap.Logger) *WebhookTreasury {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = leveledLogger{logger.Sugar()}
	return &WebhookTreasury{url: cfg.URL, client: client}
}

func (t *WebhookTreasury) Transfer(ctx context.Context, in Instruction) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode instruction: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", in.ID)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit transfer %s: %w", in.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("submit transfer %s: ledger responded %d: %s", in.ID, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
