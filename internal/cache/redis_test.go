package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisTestValue struct {
	Prompt string `json:"prompt"`
	Score  int    `json:"score"`
}

// newTestRedis returns a namespaced cache on a live Redis, skipping when none is reachable
func newTestRedis(t *testing.T, ttl time.Duration) *Redis[redisTestValue] {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb, err := Connect("redis://" + addr)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	c := NewRedis[redisTestValue](rdb, "promptscore-test-"+uuid.NewString(), ttl, nil)
	t.Cleanup(func() { c.Clear(context.Background()) })
	return c
}

func TestRedisSetGet(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t, time.Minute)

	c.Set(ctx, "key", redisTestValue{Prompt: "a cat", Score: 42})

	got, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, redisTestValue{Prompt: "a cat", Score: 42}, got)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	stats := c.Stats(ctx)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t, time.Minute)

	c.SetWithTTL(ctx, "short", redisTestValue{Score: 1}, 100*time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.CleanExpired(ctx))
}

func TestRedisNonPositiveTTLUsesDefault(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t, time.Minute)

	c.SetWithTTL(ctx, "zero", redisTestValue{Score: 1}, 0)
	c.SetWithTTL(ctx, "negative", redisTestValue{Score: 2}, -time.Second)

	for _, key := range []string{"zero", "negative"} {
		ttl, err := c.rdb.TTL(ctx, c.prefix+key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0), key)
		assert.LessOrEqual(t, ttl, time.Minute, key)

		_, ok := c.Get(ctx, key)
		assert.True(t, ok, key)
	}
}

func TestRedisDeleteClearSize(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t, time.Minute)

	c.Set(ctx, "a", redisTestValue{Score: 1})
	c.Set(ctx, "b", redisTestValue{Score: 2})
	assert.Equal(t, 2, c.Size(ctx))

	c.Delete(ctx, "a")
	assert.Equal(t, 1, c.Size(ctx))

	c.Clear(ctx)
	assert.Equal(t, 0, c.Size(ctx))
}

func TestRedisUndecodableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t, time.Minute)

	require.NoError(t, c.rdb.Set(ctx, c.prefix+"bad", "not json", time.Minute).Err())

	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestRedisUnreachableIsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := NewRedis[redisTestValue](rdb, "unreachable", time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "key", redisTestValue{Score: 1})
	_, ok := c.Get(ctx, "key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(ctx))
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect("not-a-url")
	assert.Error(t, err)
}
