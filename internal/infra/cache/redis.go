package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisOpTimeout = 2 * time.Second

// NewRedisClient connects to a single Redis node.
func NewRedisClient(addr, password string) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// Redis is a JSON-encoded cache shared between replicas. Values live under
// "<namespace>:<key>". Redis failures degrade to cache misses.
type Redis[T any] struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedis creates a Redis-backed cache for one namespace.
func NewRedis[T any](client redis.UniversalClient, namespace string, ttl time.Duration, logger *zap.Logger) *Redis[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis[T]{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *Redis[T]) key(k string) string {
	return c.namespace + ":" + k
}

// Get retrieves and decodes a value. Missing keys, Redis errors and
// undecodable payloads all report false.
func (c *Redis[T]) Get(key string) (T, bool) {
	var zero T

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", c.key(key)), zap.Error(err))
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("redis payload undecodable", zap.String("key", c.key(key)), zap.Error(err))
		return zero, false
	}
	return v, true
}

// Set encodes and stores a value with the configured TTL.
func (c *Redis[T]) Set(key string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("redis encode failed", zap.String("key", c.key(key)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", c.key(key)), zap.Error(err))
	}
}

// Delete removes a value.
func (c *Redis[T]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.Warn("redis delete failed", zap.String("key", c.key(key)), zap.Error(err))
	}
}

// Ping reports whether Redis is reachable. It backs the redis health check.
func (c *Redis[T]) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
