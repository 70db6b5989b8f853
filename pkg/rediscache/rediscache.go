// Package rediscache provides a thin wrapper around go-redis/v9 used as the
// engine's optional secondary query-result cache. It is additive to the
// mandatory in-process barrel cache: nothing in the query engine requires
// it, and it only activates when a Redis address is configured.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/paperindex/docsearch/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Client and verifies the connection with a PING.
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb, ttl: cfg.CacheTTL}, nil
}

// Get returns the raw JSON response body cached for a query key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores a query response body under key with the configured TTL.
func (c *Client) Set(ctx context.Context, key string, value string) error {
	return c.rdb.Set(ctx, key, value, c.ttl).Err()
}

// FlushAll drops every cached query response; called whenever the batch
// writer completes a flush, since any cached result could now be stale.
func (c *Client) FlushAll(ctx context.Context) error {
	return c.rdb.FlushDB(ctx).Err()
}

// IsMiss reports whether err is a Redis nil (key-not-found) error.
func IsMiss(err error) bool {
	return err == redis.Nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
