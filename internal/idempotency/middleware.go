// Package idempotency replays responses of mutating requests that carry an
// Idempotency-Key header.
package idempotency

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/cache"
	apperrors "github.com/vestlabs/vesting-service/pkg/util"
)

const (
	// HeaderKey is the request header clients set.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks responses served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

// Entry is the stored state of one keyed request.
type Entry struct {
	State       string `msgpack:"state"`
	Status      int    `msgpack:"status"`
	ContentType string `msgpack:"content_type"`
	Body        []byte `msgpack:"body"`
}

// Middleware stores the first response per (caller, method, path, key) and
// replays it for repeats. A repeat arriving while the first is still running
// is rejected with 409. Storage failures never block the request.
type Middleware struct {
	entries *cache.Cache[Entry]
	ttl     time.Duration
	logger  *zap.Logger
}

// New returns a Middleware. A nil cache disables replay.
func New(entries *cache.Cache[Entry], ttl time.Duration, logger *zap.Logger) *Middleware {
	return &Middleware{entries: entries, ttl: ttl, logger: logger}
}

// Handle is the fiber handler.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	key := c.Get(HeaderKey)
	if m.entries == nil || key == "" || c.Method() == fiber.MethodGet {
		return c.Next()
	}
	if len(key) > maxKeyLength {
		return apperrors.NewValidationError("idempotency key too long", map[string]any{"max_length": maxKeyLength})
	}

	scope := "anonymous"
	if principal, ok := auth.PrincipalFromContext(c); ok {
		scope = principal.Identity.String()
	}
	storeKey := scope + "|" + c.Method() + "|" + c.Path() + "|" + key
	ctx := c.UserContext()

	acquired, err := m.entries.SetNX(ctx, storeKey, Entry{State: stateInFlight}, m.ttl)
	if err != nil {
		m.logger.Warn("idempotency store unavailable", zap.Error(err))
		return c.Next()
	}
	if !acquired {
		prev, err := m.entries.Get(ctx, storeKey)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			// expired between SetNX and Get
			return c.Next()
		case err != nil:
			m.logger.Warn("idempotency lookup failed", zap.Error(err))
			return c.Next()
		case prev.State == stateInFlight:
			return apperrors.NewConflict("request with this idempotency key is in progress", map[string]any{"idempotency_key": key})
		}
		c.Set(HeaderReplayed, "true")
		if prev.ContentType != "" {
			c.Set(fiber.HeaderContentType, prev.ContentType)
		}
		return c.Status(prev.Status).Send(prev.Body)
	}

	if err := c.Next(); err != nil {
		if delErr := m.entries.Delete(ctx, storeKey); delErr != nil {
			m.logger.Warn("release idempotency key", zap.Error(delErr))
		}
		return err
	}

	resp := c.Response()
	entry := Entry{
		State:       stateDone,
		Status:      resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Body:        append([]byte(nil), resp.Body()...),
	}
	if entry.Status >= fiber.StatusInternalServerError {
		if delErr := m.entries.Delete(ctx, storeKey); delErr != nil {
			m.logger.Warn("release idempotency key", zap.Error(delErr))
		}
		return nil
	}
	if err := m.entries.Set(ctx, storeKey, entry, m.ttl); err != nil {
		m.logger.Warn("store idempotent response", zap.Error(err))
	}
	return nil
}
