package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/courierquote/internal/model"
)

func TestDistanceCacheKey_OrderSensitive(t *testing.T) {
	a := model.Location{Key: "SW1A1AA"}
	b := model.Location{Key: "M11AE"}

	assert.Equal(t, DistanceCacheKey(a, b), DistanceCacheKey(a, b))
	assert.NotEqual(t, DistanceCacheKey(a, b), DistanceCacheKey(b, a))

	// The separator keeps "AB"+"C" apart from "A"+"BC".
	assert.NotEqual(t,
		DistanceCacheKey(model.Location{Key: "AB"}, model.Location{Key: "C"}),
		DistanceCacheKey(model.Location{Key: "A"}, model.Location{Key: "BC"}),
	)
}

// ─── MemoryDistanceCache ────────────────────────────────────

func TestMemoryDistanceCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDistanceCache(0)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := model.DistanceCacheEntry{Miles: 12.4, Provider: model.ProviderGoogle, ResolvedAt: time.Now()}
	require.NoError(t, c.Set(ctx, "k", entry))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.4, got.Miles)
	assert.Equal(t, model.ProviderGoogle, got.Provider)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryDistanceCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewMemoryDistanceCache(time.Hour)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", model.DistanceCacheEntry{Miles: 5}))

	now = now.Add(59 * time.Minute)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryDistanceCache_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDistanceCache(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Set(ctx, "route", model.DistanceCacheEntry{Miles: 42.0})
			_, _, _ = c.Get(ctx, "route")
		}(i)
	}
	wg.Wait()

	got, ok, _ := c.Get(ctx, "route")
	require.True(t, ok)
	assert.Equal(t, 42.0, got.Miles)
	assert.Equal(t, 1, c.Len())
}

// ─── MemoryRateLimiter ──────────────────────────────────────

func TestMemoryRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)

	l := NewMemoryRateLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, _ := l.Allow(ctx, "client-a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), d.ResetAt)
	assert.Equal(t, 50*time.Second, d.RetryAfter(now))

	// Other identities have their own counters.
	d, _ = l.Allow(ctx, "client-b")
	assert.True(t, d.Allowed)

	// Next window starts fresh.
	now = now.Add(time.Minute)
	d, _ = l.Allow(ctx, "client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestRateDecision_RetryAfterMinimum(t *testing.T) {
	now := time.Now()
	d := RateDecision{ResetAt: now.Add(-time.Second)}
	assert.Equal(t, time.Second, d.RetryAfter(now))
}

// ─── Redis (integration) ────────────────────────────────────

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisDistanceCache_RoundTrip(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()
	c := NewRedisDistanceCache(client, time.Minute)

	key := DistanceCacheKey(model.Location{Key: "TEST1"}, model.Location{Key: "TEST2"})
	t.Cleanup(func() { _ = c.Delete(ctx, key) })

	require.NoError(t, c.Set(ctx, key, model.DistanceCacheEntry{Miles: 7.3, Provider: model.ProviderOpenRoute}))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7.3, got.Miles)
	assert.False(t, got.IsFallback)
}

func TestRedisRateLimiter_Window(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()

	l := NewRedisRateLimiter(client, 2, time.Minute)
	id := "test-" + time.Now().Format("150405.000000")

	d1, err := l.Allow(ctx, id)
	require.NoError(t, err)
	d2, _ := l.Allow(ctx, id)
	d3, _ := l.Allow(ctx, id)

	assert.True(t, d1.Allowed)
	assert.True(t, d2.Allowed)
	assert.False(t, d3.Allowed)
}
