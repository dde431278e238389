package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := &Redis{client: client, logger: zerolog.Nop()}
	t.Cleanup(func() { _ = r.Close() })
	return mr, r
}

func TestRedisSetGet(t *testing.T) {
	_, r := testRedis(t)

	r.Set("station:qlab", snapshotJSON, 5*time.Minute)

	got, ok := r.Get("station:qlab")
	require.True(t, ok)
	assert.Equal(t, snapshotJSON, got)

	_, ok = r.Get("station:other")
	assert.False(t, ok)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestRedisTTL(t *testing.T) {
	mr, r := testRedis(t)

	r.Set("station:qlab", snapshotJSON, 100*time.Millisecond)

	_, ok := r.Get("station:qlab")
	require.True(t, ok)

	mr.FastForward(200 * time.Millisecond)

	_, ok = r.Get("station:qlab")
	assert.False(t, ok, "the server expires the entry")
}

func TestRedisDeleteAndClear(t *testing.T) {
	_, r := testRedis(t)

	r.Set("station:qlab", snapshotJSON, 5*time.Minute)
	r.Set("station:cryo", snapshotJSON, 5*time.Minute)

	r.Delete("station:qlab")
	_, ok := r.Get("station:qlab")
	assert.False(t, ok)

	r.Clear()
	assert.Zero(t, r.Stats().CurrentSize)
}

func TestRedisHealthCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mr, r := testRedis(t)
	require.NoError(t, r.HealthCheck(ctx))

	mr.Close()
	require.Error(t, r.HealthCheck(ctx))
}

func TestRedisUnavailableReadsAsMiss(t *testing.T) {
	mr, r := testRedis(t)
	r.Set("station:qlab", snapshotJSON, 5*time.Minute)
	mr.Close()

	_, ok := r.Get("station:qlab")
	assert.False(t, ok, "a dead server degrades to cache misses, not errors")
}

func TestNewRedisRejectsUnreachableServer(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.ErrorContains(t, err, "redis connection failed")
}
