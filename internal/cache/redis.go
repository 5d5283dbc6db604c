package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// Connect creates a Redis client from a redis:// URL and verifies connectivity
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Redis is a Store backed by Redis so several processes can share entries.
// Values are JSON encoded and expiry is delegated to Redis key TTLs.
type Redis[V any] struct {
	name       string
	rdb        *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedis creates a Redis-backed cache storing keys under "<namespace>:"
func NewRedis[V any](rdb *redis.Client, namespace string, defaultTTL time.Duration, logger *slog.Logger) *Redis[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis[V]{
		name:       namespace,
		rdb:        rdb,
		prefix:     namespace + ":",
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get returns the decoded value for key. Redis and decode errors are logged
// and reported as a miss.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V

	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", "cache", r.name, "key", key, "error", err)
		}
		r.misses.Add(1)
		return value, false
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		r.logger.Warn("cache entry undecodable", "cache", r.name, "key", key, "error", err)
		r.misses.Add(1)
		return value, false
	}

	r.hits.Add(1)
	return value, true
}

// Set stores value under key with the default TTL
func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	r.SetWithTTL(ctx, key, value, r.defaultTTL)
}

// SetWithTTL stores value under key with the given TTL. A non-positive ttl
// falls back to the cache default rather than persisting forever.
func (r *Redis[V]) SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		r.logger.Error("cache entry unencodable", "cache", r.name, "key", key, "error", err)
		return
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", "cache", r.name, "key", key, "error", err)
	}
}

// Delete removes key
func (r *Redis[V]) Delete(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Warn("cache delete failed", "cache", r.name, "key", key, "error", err)
	}
}

// Clear removes every key in this cache's namespace
func (r *Redis[V]) Clear(ctx context.Context) {
	err := r.scan(ctx, func(keys []string) error {
		return r.rdb.Del(ctx, keys...).Err()
	})
	if err != nil {
		r.logger.Warn("cache clear failed", "cache", r.name, "error", err)
	}
}

// Size counts the keys in this cache's namespace
func (r *Redis[V]) Size(ctx context.Context) int {
	n := 0
	err := r.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	if err != nil {
		r.logger.Warn("cache size failed", "cache", r.name, "error", err)
	}
	return n
}

// CleanExpired is a no-op: Redis expires keys itself
func (r *Redis[V]) CleanExpired(context.Context) int {
	return 0
}

// Stats returns hit/miss counters of this process and the namespace size
func (r *Redis[V]) Stats(ctx context.Context) Stats {
	return Stats{
		Name:   r.name,
		Size:   r.Size(ctx),
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
}

func (r *Redis[V]) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
