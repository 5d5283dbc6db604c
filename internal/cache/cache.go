package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Default TTLs for the caches the service constructs at startup
const (
	DefaultQuestionTTL     = 30 * time.Minute
	DefaultOptimizationTTL = time.Hour
	DefaultJobTTL          = time.Hour
	DefaultSweepInterval   = 5 * time.Minute
)

// Store is a key/value cache with per-entry expiry. Reads never fail: a
// missing, expired or unreadable entry is reported as absent.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
	SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Size(ctx context.Context) int
	CleanExpired(ctx context.Context) int
	Stats(ctx context.Context) Stats
}

// Stats is a point-in-time view of cache usage
type Stats struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is an in-process TTL cache safe for concurrent use
type Memory[V any] struct {
	name       string
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemory creates a new in-memory cache whose entries expire after defaultTTL
// unless SetWithTTL says otherwise
func NewMemory[V any](name string, defaultTTL time.Duration) *Memory[V] {
	return &Memory[V]{
		name:       name,
		defaultTTL: defaultTTL,
		now:        time.Now,
		entries:    make(map[string]entry[V]),
	}
}

// Get returns the value stored under key. Expired entries are evicted on read.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return zero, false
	}

	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// the entry may have been replaced since the read lock was released
		if cur, still := m.entries[key]; still && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		m.misses.Add(1)
		return zero, false
	}

	m.hits.Add(1)
	return e.value, true
}

// Set stores value under key with the cache's default TTL
func (m *Memory[V]) Set(ctx context.Context, key string, value V) {
	m.SetWithTTL(ctx, key, value, m.defaultTTL)
}

// SetWithTTL stores value under key, replacing any previous entry.
// A non-positive ttl falls back to the cache default.
func (m *Memory[V]) SetWithTTL(_ context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Delete removes key if present
func (m *Memory[V]) Delete(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear removes every entry
func (m *Memory[V]) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]entry[V])
	m.mu.Unlock()
}

// Size returns the number of stored entries, including expired entries not
// yet swept
func (m *Memory[V]) Size(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// CleanExpired removes all expired entries and returns how many were removed
func (m *Memory[V]) CleanExpired(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns hit/miss counters and the current size
func (m *Memory[V]) Stats(ctx context.Context) Stats {
	return Stats{
		Name:   m.name,
		Size:   m.Size(ctx),
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}
}

// Name returns the cache name used in stats and metrics
func (m *Memory[V]) Name() string {
	return m.name
}
