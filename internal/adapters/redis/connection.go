// Package redis implements the durable message queue on top of Redis
// Streams, plus the short-TTL cache namespace it also serves. Redis
// Streams' consumer-group primitives (XADD, XREADGROUP, XACK, XCLAIM,
// XPENDING) map directly onto the pipeline's Append/ReadGroup/Ack/Claim/
// PendingSummary operations.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

// Connection is a hub which deals with the redis connection backing both
// the DMQ stream and the cache namespace.
type Connection struct {
	Addr     string
	Password string
	DB       int
	MaxConns int // caps the client's connection pool; 0 keeps go-redis's default
	Logger   mlog.Logger

	client *redis.Client
}

// Connect establishes (and health-checks) the singleton redis connection.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to redis...")

	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.MaxConns,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	c.Logger.Info("connected to redis")
	c.client = client

	return nil
}

// Client returns the underlying redis client, connecting lazily if
// necessary.
func (c *Connection) Client(ctx context.Context) (*redis.Client, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}

// Close releases the underlying connection pool.
func (c *Connection) Close() error {
	if c.client == nil {
		return nil
	}

	return c.client.Close()
}

// Healthy performs the trivial round-trip Health() needs.
func (c *Connection) Healthy(ctx context.Context) error {
	client, err := c.Client(ctx)
	if err != nil {
		return err
	}

	return client.Ping(ctx).Err()
}
