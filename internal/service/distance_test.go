package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shiva/courierquote/config"
	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/internal/provider"
	"github.com/shiva/courierquote/internal/repository"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return model.ProviderGoogle }

func (m *mockProvider) DistanceMeters(ctx context.Context, origin, destination model.Location) (float64, error) {
	args := m.Called(origin.Key, destination.Key)
	return args.Get(0).(float64), args.Error(1)
}

const fallbackMiles = 20.0

var (
	pickup, _  = ParseLocation("pickup_location", "sw1a 1aa")
	dropoff, _ = ParseLocation("delivery_location", "M1 1AE")
)

func newResolver(p provider.DistanceProvider, cache repository.DistanceCache) *DistanceResolver {
	return NewDistanceResolver(p, cache, ResolverOptions{FallbackMiles: fallbackMiles, Timeout: time.Second}, nil)
}

func TestResolve_SuccessIsCached(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(16093.44, nil).Once()
	cache := repository.NewMemoryDistanceCache(0)
	r := newResolver(p, cache)

	res, err := r.Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.DistanceMiles)
	assert.Equal(t, model.ProviderGoogle, res.Provider)
	assert.False(t, res.FallbackUsed)
	assert.False(t, res.CacheHit)

	res, err = r.Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.DistanceMiles)
	assert.Equal(t, model.ProviderCache, res.Provider)
	assert.True(t, res.CacheHit)

	p.AssertNumberOfCalls(t, "DistanceMeters", 1)
}

func TestResolve_CachedFallbackValueIsReResolved(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(32186.88, nil)
	cache := repository.NewMemoryDistanceCache(0)
	key := repository.DistanceCacheKey(pickup, dropoff)
	require.NoError(t, cache.Set(context.Background(), key, model.DistanceCacheEntry{Miles: fallbackMiles}))

	res, err := newResolver(p, cache).Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.DistanceMiles)
	assert.False(t, res.CacheHit)
	p.AssertNumberOfCalls(t, "DistanceMeters", 1)
}

func TestResolve_CachedEntryFlaggedFallbackIsReResolved(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(8046.72, nil)
	cache := repository.NewMemoryDistanceCache(0)
	key := repository.DistanceCacheKey(pickup, dropoff)
	require.NoError(t, cache.Set(context.Background(), key, model.DistanceCacheEntry{Miles: 12.5, IsFallback: true}))

	res, err := newResolver(p, cache).Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.DistanceMiles)
	p.AssertNumberOfCalls(t, "DistanceMeters", 1)

	entry, ok, _ := cache.Get(context.Background(), key)
	require.True(t, ok)
	assert.False(t, entry.IsFallback)
	assert.Equal(t, 5.0, entry.Miles)
}

func TestResolve_TransportFailureFallsBackWithoutCaching(t *testing.T) {
	p := &mockProvider{}
	netErr := &url.Error{Op: "Get", URL: "https://maps.example", Err: errors.New("connection refused")}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(0.0, &provider.TransportError{Provider: "google", Err: netErr})
	cache := repository.NewMemoryDistanceCache(0)

	res, err := newResolver(p, cache).Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.Equal(t, fallbackMiles, res.DistanceMiles)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, model.ProviderGoogle, res.Provider)
	assert.Empty(t, res.Error)
	assert.Equal(t, 0, cache.Len())
}

func TestResolve_DeadlineIsSoft(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(0.0, context.DeadlineExceeded)

	res, err := newResolver(p, nil).Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)
}

func TestResolve_ProviderStatusIsHardError(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(0.0,
		&provider.StatusError{Provider: "google", Status: "OVER_QUERY_LIMIT", Message: "quota exceeded"})
	cache := repository.NewMemoryDistanceCache(0)

	res, err := newResolver(p, cache).Resolve(context.Background(), pickup, dropoff)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)

	var statusErr *provider.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "OVER_QUERY_LIMIT", statusErr.Status)

	assert.False(t, res.FallbackUsed, "a provider error must not be hidden behind the fallback")
	assert.Zero(t, res.DistanceMiles)
	assert.Contains(t, res.Error, "OVER_QUERY_LIMIT")
	assert.Equal(t, 0, cache.Len())
}

func TestResolve_GeocodeFailureCarriesLocation(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(0.0,
		&provider.StatusError{Provider: "openroute", Status: "NOT_FOUND", Location: "M11AE"})

	_, err := newResolver(p, nil).Resolve(context.Background(), pickup, dropoff)
	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "M11AE", resolveErr.Location)
}

func TestResolve_NoProviderIsDegradedMode(t *testing.T) {
	r := NewDistanceResolverFromConfig(config.DistanceConfig{FallbackMiles: fallbackMiles, Timeout: time.Second}, nil, nil, nil)

	res, err := r.Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.Equal(t, fallbackMiles, res.DistanceMiles)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, model.ProviderFallback, res.Provider)
}

func TestResolve_MissingKeyIsConfigurationError(t *testing.T) {
	cfg := config.DistanceConfig{Provider: "google", OpenRouteAPIKey: "o", FallbackMiles: fallbackMiles, Timeout: time.Second}
	r := NewDistanceResolverFromConfig(cfg, repository.NewMemoryDistanceCache(0), nil, nil)

	res, err := r.Resolve(context.Background(), pickup, dropoff)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, provider.ErrMissingAPIKey)
	assert.False(t, res.FallbackUsed)
	assert.NotEmpty(t, res.Error)
}

func TestResolve_EmptyLocationIsValidationError(t *testing.T) {
	p := &mockProvider{}
	_, err := newResolver(p, nil).Resolve(context.Background(), model.Location{}, dropoff)
	assert.ErrorIs(t, err, ErrValidation)
	p.AssertNotCalled(t, "DistanceMeters", mock.Anything, mock.Anything)
}

func TestResolve_ConcurrentMissesShareOneCall(t *testing.T) {
	p := &mockProvider{}
	p.On("DistanceMeters", "SW1A1AA", "M11AE").Return(16093.44, nil).After(50 * time.Millisecond)
	r := newResolver(p, repository.NewMemoryDistanceCache(0))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := r.Resolve(context.Background(), pickup, dropoff)
			assert.NoError(t, err)
			assert.Equal(t, 10.0, res.DistanceMiles)
		}()
	}
	close(start)
	wg.Wait()

	p.AssertNumberOfCalls(t, "DistanceMeters", 1)
}

// slowProvider answers after delay unless its context ends first.
type slowProvider struct {
	delay   time.Duration
	meters  float64
	entered chan struct{}
	once    sync.Once
}

func (p *slowProvider) Name() string { return model.ProviderGoogle }

func (p *slowProvider) DistanceMeters(ctx context.Context, _, _ model.Location) (float64, error) {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-time.After(p.delay):
		return p.meters, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestResolve_CancelledCallerDoesNotAffectSharedWaiter(t *testing.T) {
	p := &slowProvider{delay: 200 * time.Millisecond, meters: 16093.44, entered: make(chan struct{})}
	r := newResolver(p, repository.NewMemoryDistanceCache(0))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctxA, pickup, dropoff)
		errA <- err
	}()
	<-p.entered

	type result struct {
		res model.Resolution
		err error
	}
	resB := make(chan result, 1)
	go func() {
		res, err := r.Resolve(context.Background(), pickup, dropoff)
		resB <- result{res, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()

	assert.ErrorIs(t, <-errA, context.Canceled)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 10.0, b.res.DistanceMiles)
	assert.Equal(t, model.ProviderGoogle, b.res.Provider)
	assert.False(t, b.res.FallbackUsed)
}

func TestResolve_CallerCancellationIsNotFallback(t *testing.T) {
	p := &slowProvider{delay: 200 * time.Millisecond, meters: 16093.44, entered: make(chan struct{})}
	cache := repository.NewMemoryDistanceCache(0)
	r := newResolver(p, cache)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-p.entered
		cancel()
	}()

	res, err := r.Resolve(ctx, pickup, dropoff)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.FallbackUsed)
	assert.NotEqual(t, fallbackMiles, res.DistanceMiles)

	// The detached provider call still completes and fills the cache.
	require.Eventually(t, func() bool {
		_, ok, _ := cache.Get(context.Background(), repository.DistanceCacheKey(pickup, dropoff))
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestResolve_ProviderTimeoutStillFallsBack(t *testing.T) {
	p := &slowProvider{delay: time.Second, meters: 16093.44, entered: make(chan struct{})}
	r := NewDistanceResolver(p, nil, ResolverOptions{FallbackMiles: fallbackMiles, Timeout: 20 * time.Millisecond}, nil)

	res, err := r.Resolve(context.Background(), pickup, dropoff)
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, fallbackMiles, res.DistanceMiles)
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("pickup_location", "  sw1a 1aa ")
	require.NoError(t, err)
	assert.Equal(t, "SW1A1AA", loc.Key)
	assert.Equal(t, "sw1a 1aa", loc.Raw)

	loc, err = ParseLocation("pickup_location", "10  Downing   Street, London")
	require.NoError(t, err)
	assert.Equal(t, "10 DOWNING STREET, LONDON", loc.Key)

	for _, bad := range []string{"", "   ", "---", string(make([]byte, 201))} {
		_, err := ParseLocation("pickup_location", bad)
		assert.ErrorIs(t, err, ErrValidation, "input %q", bad)
	}
}
