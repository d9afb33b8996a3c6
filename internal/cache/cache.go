// Package cache is a typed Redis cache with pluggable codecs.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound     = errors.New("key not found")
	ErrEncodeFailed = errors.New("failed to encode value")
	ErrDecodeFailed = errors.New("failed to decode value")
)

// Encoder converts a value of type T to a byte slice for storage in Redis.
type Encoder[T any] func(value T) ([]byte, error)

// Decoder converts a byte slice from Redis back to a value of type T.
type Decoder[T any] func(data []byte) (T, error)

// Cache is a generic cache backed by Redis.
type Cache[T any] struct {
	client  *redis.Client
	encoder Encoder[T]
	decoder Decoder[T]
	prefix  string
}

// Options contains configuration options for creating a new Cache.
type Options[T any] struct {
	Client  *redis.Client
	Encoder Encoder[T]
	Decoder Decoder[T]
	Prefix  string
}

// New creates a Cache. Codecs default to msgpack.
func New[T any](opts Options[T]) *Cache[T] {
	if opts.Encoder == nil {
		opts.Encoder = MsgpackEncoder[T]()
	}
	if opts.Decoder == nil {
		opts.Decoder = MsgpackDecoder[T]()
	}
	return &Cache[T]{
		client:  opts.Client,
		encoder: opts.Encoder,
		decoder: opts.Decoder,
		prefix:  opts.Prefix,
	}
}

func (c *Cache[T]) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Set stores a value with the given TTL. Use ttl=0 for no expiration.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := c.encoder(value)
	if err != nil {
		return errors.Join(ErrEncodeFailed, err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// SetNX stores a value only if the key is absent and reports whether it did.
func (c *Cache[T]) SetNX(ctx context.Context, key string, value T, ttl time.Duration) (bool, error) {
	data, err := c.encoder(value)
	if err != nil {
		return false, errors.Join(ErrEncodeFailed, err)
	}
	return c.client.SetNX(ctx, c.key(key), data, ttl).Result()
}

// Get retrieves a value by key. Returns ErrNotFound if the key does not exist.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		return zero, err
	}

	value, err := c.decoder(data)
	if err != nil {
		return zero, errors.Join(ErrDecodeFailed, err)
	}
	return value, nil
}

// Delete removes a key from the cache.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
