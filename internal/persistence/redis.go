package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/config"
)

// ErrRedisDisabled is returned by Ping when no Redis address is configured.
var ErrRedisDisabled = errors.New("redis not configured")

// Redis wraps the go-redis client. A nil *Redis means Redis is disabled.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration. It returns nil
// when no address is configured.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Info("REDIS_ADDR not provided; idempotency replay disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrRedisDisabled
	}
	return r.Client.Ping(ctx).Err()
}

// ClientHandle returns the underlying client, or nil when disabled.
func (r *Redis) ClientHandle() *redis.Client {
	if r == nil {
		return nil
	}
	return r.Client
}
