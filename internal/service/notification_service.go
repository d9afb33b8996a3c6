package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/config"
	"github.com/vestlabs/vesting-service/internal/events"
)

// NotificationService forwards domain events to the log and, when configured,
// to an outbound webhook.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	timeout    time.Duration
	client     *retryablehttp.Client
}

const defaultNotifyTimeout = 5 * time.Second

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = defaultNotifyTimeout
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		timeout:    timeout,
		client:     client,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventPoolCreated, n.handle)
	n.dispatcher.Subscribe(events.EventPoolFunded, n.handle)
	n.dispatcher.Subscribe(events.EventGrantCreated, n.handle)
	n.dispatcher.Subscribe(events.EventTokensClaimed, n.handle)
	n.dispatcher.Subscribe(events.EventTransferCompleted, n.handle)
	n.dispatcher.Subscribe(events.EventTransferFailed, n.handleTransferFailed)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("pool_id", event.PoolID),
		zap.String("grant_id", event.GrantID),
		zap.Any("payload", event.Payload))
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) handleTransferFailed(ctx context.Context, event events.Event) error {
	n.logger.Warn(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("pool_id", event.PoolID),
		zap.String("grant_id", event.GrantID),
		zap.Any("payload", event.Payload))
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	// detached from the caller's deadline, bounded by n.timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", event.Type, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify %s: webhook returned %d", event.Type, resp.StatusCode)
	}
	n.logger.Debug("notification delivered",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
	return nil
}
