package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/nimbusdata/logflow/internal/adapters/redis"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

func newTestCache(t *testing.T) (*redisadapter.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	conn := &redisadapter.Connection{Addr: mr.Addr(), Logger: mlog.NoneLogger{}}

	return redisadapter.NewCache(conn), mr
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}

	key := redisadapter.QueryCacheKey("device-1", 50)
	require.NoError(t, c.SetEx(ctx, key, payload{Count: 3}, redisadapter.QueryCacheTTL))

	var got payload
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Count)
}

func TestCache_GetMissReturnsFalse(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var got map[string]any
	found, err := c.Get(ctx, redisadapter.QueryCacheKey("unknown", 10), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key := redisadapter.StatsCacheKey()
	require.NoError(t, c.SetEx(ctx, key, map[string]int{"total": 1}, redisadapter.StatsCacheTTL))

	mr.FastForward(redisadapter.StatsCacheTTL + time.Second)

	var got map[string]int
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Del(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key := redisadapter.QueryCacheKey("device-1", 50)
	require.NoError(t, c.SetEx(ctx, key, "value", redisadapter.QueryCacheTTL))

	require.NoError(t, c.Del(ctx, key))

	var got string
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}
