// Package repository provides storage access for the quoting system: the
// distance cache and rate limiter counters in Redis (or memory), and the rate
// tables and promo codes owned by the settings database.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/courierquote/internal/model"
)

// DistanceCache stores resolved distances keyed by DistanceCacheKey.
// Implementations must be safe for concurrent use, and Set must replace an
// existing entry atomically.
type DistanceCache interface {
	Get(ctx context.Context, key string) (model.DistanceCacheEntry, bool, error)
	Set(ctx context.Context, key string, entry model.DistanceCacheEntry) error
	Delete(ctx context.Context, key string) error
}

// DistanceCacheKey hashes the normalised pair. Order matters: A→B and B→A
// are different routes.
func DistanceCacheKey(origin, destination model.Location) string {
	d := xxhash.New()
	_, _ = d.WriteString(origin.Key)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(destination.Key)
	return strconv.FormatUint(d.Sum64(), 16)
}

// ─── Redis ──────────────────────────────────────────────────

const redisDistanceKeyPrefix = "distance:"

// RedisDistanceCache keeps entries as JSON strings with a TTL.
type RedisDistanceCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisDistanceCache creates a Redis-backed distance cache. A zero ttl
// keeps entries until evicted by Redis.
func NewRedisDistanceCache(client *redis.Client, ttl time.Duration) *RedisDistanceCache {
	return &RedisDistanceCache{redis: client, ttl: ttl}
}

// Get returns the entry for key, or false on a miss.
func (c *RedisDistanceCache) Get(ctx context.Context, key string) (model.DistanceCacheEntry, bool, error) {
	raw, err := c.redis.Get(ctx, redisDistanceKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DistanceCacheEntry{}, false, nil
	}
	if err != nil {
		return model.DistanceCacheEntry{}, false, fmt.Errorf("distance cache get: %w", err)
	}

	var entry model.DistanceCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value is a miss; the next successful resolution overwrites it.
		return model.DistanceCacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set writes the entry with a single SET.
func (c *RedisDistanceCache) Set(ctx context.Context, key string, entry model.DistanceCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("distance cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, redisDistanceKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("distance cache set: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (c *RedisDistanceCache) Delete(ctx context.Context, key string) error {
	return c.redis.Del(ctx, redisDistanceKeyPrefix+key).Err()
}

// ─── In-process ─────────────────────────────────────────────

type memoryEntry struct {
	entry     model.DistanceCacheEntry
	expiresAt time.Time
}

// MemoryDistanceCache is a map guarded by a RWMutex with per-entry TTL.
// Used when Redis is disabled and in tests.
type MemoryDistanceCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryDistanceCache creates an empty in-process cache. A zero ttl never
// expires entries.
func NewMemoryDistanceCache(ttl time.Duration) *MemoryDistanceCache {
	return &MemoryDistanceCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for key unless it has expired.
func (c *MemoryDistanceCache) Get(_ context.Context, key string) (model.DistanceCacheEntry, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return model.DistanceCacheEntry{}, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return model.DistanceCacheEntry{}, false, nil
	}
	return e.entry, true, nil
}

// Set inserts or replaces the entry for key.
func (c *MemoryDistanceCache) Set(_ context.Context, key string, entry model.DistanceCacheEntry) error {
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{entry: entry, expiresAt: expires}
	c.mu.Unlock()
	return nil
}

// Delete removes the entry for key.
func (c *MemoryDistanceCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryDistanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
