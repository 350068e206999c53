package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateDecision is the outcome of counting one request against a window.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait, rounded up to a second.
func (d RateDecision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

func decide(count int64, limit int, windowStart time.Time, window time.Duration) RateDecision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   windowStart.Add(window),
	}
}

// ─── Redis ──────────────────────────────────────────────────

// RedisRateLimiter counts requests in fixed windows shared by every
// server instance.
type RedisRateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisRateLimiter creates a fixed-window limiter backed by Redis.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{redis: client, limit: limit, window: window, now: time.Now}
}

// Allow increments the caller's counter for the current window.
func (l *RedisRateLimiter) Allow(ctx context.Context, identity string) (RateDecision, error) {
	start := l.now().Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%d", identity, start.Unix())

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateDecision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	return decide(incr.Val(), l.limit, start, l.window), nil
}

// ─── In-process ─────────────────────────────────────────────

type windowCounter struct {
	start time.Time
	count int64
}

// MemoryRateLimiter is the single-node equivalent of RedisRateLimiter.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewMemoryRateLimiter creates a fixed-window limiter held in memory.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		counters: make(map[string]*windowCounter),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow increments the caller's counter for the current window.
func (l *MemoryRateLimiter) Allow(_ context.Context, identity string) (RateDecision, error) {
	start := l.now().Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[identity]
	if !ok || !c.start.Equal(start) {
		if len(l.counters) > 10000 {
			l.sweep(start)
		}
		c = &windowCounter{start: start}
		l.counters[identity] = c
	}
	c.count++
	return decide(c.count, l.limit, start, l.window), nil
}

// sweep drops counters from earlier windows. Caller holds mu.
func (l *MemoryRateLimiter) sweep(current time.Time) {
	for id, c := range l.counters {
		if c.start.Before(current) {
			delete(l.counters, id)
		}
	}
}
