// Package redis implements the run cache, run lock, notification throttle and
// run stream on top of go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this package writes.
const keyPrefix = "deltasync:"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the connection shared by the delta cache, the per-date run
// locks, the notification throttle and the run stream.
type Client struct {
	rdb *redis.Client
}

func options(cfg ClientConfig) *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// New connects and pings once so a run fails before taking any date lock
// when Redis is unreachable.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Wrap adopts an existing driver client, e.g. one returned by redismock.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close releases the pool. Locks still held are left to expire.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the driver client to the cache, lock, limiter and
// stream constructors.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
