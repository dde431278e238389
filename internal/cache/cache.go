// Package cache buffers marshaled station snapshots between the
// monitor job and the API, so /monitor replies without touching
// instruments. Backends: in-process memory (default), Redis for
// shared bench setups, and a no-op that disables caching.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchtop-io/benchd/internal/metrics"
)

// Cache stores marshaled snapshots under string keys with a TTL.
// Values transfer ownership on Set and must not be modified after
// Get.
type Cache interface {
	// Get returns the cached bytes, or false when absent or expired.
	Get(key string) ([]byte, bool)
	// Set stores value under key for ttl.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes one key.
	Delete(key string)
	// Clear drops all entries.
	Clear()
	// Stats reports counters since startup.
	Stats() Stats
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"current_size"`
}

// New selects a backend by its configured name: "memory" (also the
// default for an empty name), "redis", or "none".
func New(backend string, redisCfg RedisConfig, logger zerolog.Logger) (Cache, error) {
	switch backend {
	case "", "memory":
		return NewMemory(time.Minute), nil
	case "redis":
		return NewRedis(redisCfg, logger)
	case "none":
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// Memory is the in-process backend. A janitor goroutine evicts
// expired entries; Close stops it.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory builds the in-process backend. cleanupInterval sets how
// often the janitor sweeps expired entries; zero disables the
// janitor and leaves expiry to Get.
func NewMemory(cleanupInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go m.janitor(cleanupInterval)
	}
	return m
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, found := m.entries[key]
	m.mu.RUnlock()

	if !found || time.Now().After(e.expires) {
		m.misses.Add(1)
		metrics.IncCacheMiss()
		return nil, false
	}
	m.hits.Add(1)
	metrics.IncCacheHit()
	return e.value, true
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
	m.mu.Unlock()
	m.sets.Add(1)
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.mu.Unlock()
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	return Stats{
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		Sets:        m.sets.Load(),
		Evictions:   m.evictions.Load(),
		CurrentSize: size,
	}
}

// Close stops the janitor. Safe to call more than once.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.deleteExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) deleteExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, key)
			m.evictions.Add(1)
		}
	}
}

// NewNoop returns a cache that stores nothing, for benches that want
// every monitor read to hit the instruments.
func NewNoop() Cache { return noopCache{} }

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool)         { return nil, false }
func (noopCache) Set(string, []byte, time.Duration) {}
func (noopCache) Delete(string)                     {}
func (noopCache) Clear()                            {}
func (noopCache) Stats() Stats                      { return Stats{} }
