// Package redis wraps the go-redis client with the operations the engine
// needs: connection health, event de-duplication and the raw client handle
// the lock manager builds on.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis connection settings
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Client is a thin wrapper around go-redis
type Client struct {
	rdb    *redis.Client
	config *Config
}

// NewClient connects to Redis and verifies the connection with a ping
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, config: config}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// GetGoRedisClient exposes the underlying go-redis client for libraries
// that build on it, such as the redsync lock manager
func (c *Client) GetGoRedisClient() *redis.Client {
	return c.rdb
}

// MarkEventSeen records an event id and reports whether it was new. The
// bus delivers at-least-once, so workers call this to drop redelivered
// events instead of re-running the import for them.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	fresh, err := c.rdb.SetNX(ctx, fmt.Sprintf("event:%s", eventID), "seen", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event seen: %w", err)
	}
	return fresh, nil
}
