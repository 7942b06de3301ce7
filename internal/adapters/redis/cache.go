package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusdata/logflow/internal/platform/apperr"
)

// Cache namespace prefixes and default TTLs. The query cache and stats
// cache share the same Redis connection as the DMQ but live
// under their own key namespace so a Trim of the stream never touches them.
const (
	QueryCacheTTL = 300 * time.Second
	StatsCacheTTL = 60 * time.Second

	queryCachePrefix = "logs:"
	statsCacheKey    = "stats:summary"
)

// Cache implements the cache-through query/stats namespace on the same
// Connection the Queue uses.
type Cache struct {
	conn *Connection
}

// NewCache constructs a Cache bound to conn.
func NewCache(conn *Connection) *Cache {
	return &Cache{conn: conn}
}

// QueryCacheKey names the cache entry for a device's recent-records query,
// keyed by device and the page limit so two differently-sized queries for
// the same device don't collide.
func QueryCacheKey(deviceID string, limit int) string {
	return fmt.Sprintf("%s%s:%d", queryCachePrefix, deviceID, limit)
}

// Get fetches and unmarshals a cached value into dest. It reports (false,
// nil) on a clean cache miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	client, err := c.conn.Client(ctx)
	if err != nil {
		return false, apperr.BackendUnavailable{Backend: "cache", Err: err}
	}

	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, apperr.BackendUnavailable{Backend: "cache", Err: err}
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}

	return true, nil
}

// SetEx marshals value and stores it under key with the given TTL. Cache
// writes are best-effort: the cache is an accelerator, never a source of
// truth, so callers should log and continue rather than fail a request on
// a SetEx error.
func (c *Cache) SetEx(ctx context.Context, key string, value any, ttl time.Duration) error {
	client, err := c.conn.Client(ctx)
	if err != nil {
		return apperr.BackendUnavailable{Backend: "cache", Err: err}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}

	if err := client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return apperr.BackendUnavailable{Backend: "cache", Err: err}
	}

	return nil
}

// Del invalidates one or more cache keys.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	client, err := c.conn.Client(ctx)
	if err != nil {
		return apperr.BackendUnavailable{Backend: "cache", Err: err}
	}

	if err := client.Del(ctx, keys...).Err(); err != nil {
		return apperr.BackendUnavailable{Backend: "cache", Err: err}
	}

	return nil
}

// StatsCacheKey names the single cache entry for the global Stats()
// snapshot.
func StatsCacheKey() string {
	return statsCacheKey
}
