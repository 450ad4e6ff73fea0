package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReplayCache implements ReplayCache using Redis. Suitable for
// distributed deployments where instances share replay state.
type RedisReplayCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisReplayCache connects to Redis and verifies the connection.
func NewRedisReplayCache(cfg RedisConfig) (*RedisReplayCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisReplayCache{
		client:    client,
		keyPrefix: "command:replay:",
	}, nil
}

// NewRedisReplayCacheWithClient wraps an existing client. Useful for tests
// or when sharing a client across components.
func NewRedisReplayCacheWithClient(client *redis.Client, keyPrefix string) *RedisReplayCache {
	if keyPrefix == "" {
		keyPrefix = "command:replay:"
	}
	return &RedisReplayCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached response for the key, if present
func (c *RedisReplayCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	body, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read replay cache: %w", err)
	}
	return body, true, nil
}

// Put stores the response body under the key with a TTL
func (c *RedisReplayCache) Put(ctx context.Context, key string, body json.RawMessage, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, []byte(body), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write replay cache: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisReplayCache) Close() error {
	return c.client.Close()
}

var _ ReplayCache = (*RedisReplayCache)(nil)
