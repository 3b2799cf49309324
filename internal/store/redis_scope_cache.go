package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisScopeCache implements Cache backed by Redis. It is used for
// resolved access scopes, so revoking a grant on one instance is visible
// to every instance as soon as the key is invalidated.
type RedisScopeCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisScopeCache creates a new Redis-backed cache
func NewRedisScopeCache(host string, port int, password string, db int, logger *zap.Logger) (*RedisScopeCache, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisScopeCache{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a cached value
func (c *RedisScopeCache) Get(ctx context.Context, key string) (interface{}, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return result, nil
}

// Set stores a value with TTL
func (c *RedisScopeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a key
func (c *RedisScopeCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Ping checks the Redis connection
func (c *RedisScopeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisScopeCache) Close() error {
	return c.client.Close()
}
