package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shiva/courierquote/config"
	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/internal/provider"
	"github.com/shiva/courierquote/internal/repository"
	"github.com/shiva/courierquote/pkg/geo"
	"github.com/shiva/courierquote/pkg/logger"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 15 * time.Second

// ResolverOptions holds the resolver's tunables.
type ResolverOptions struct {
	FallbackMiles float64
	Timeout       time.Duration
}

// ─── DistanceResolver ───────────────────────────────────────

// DistanceResolver turns a pickup/delivery pair into miles.
//
// Outcome table:
//
//	cache hit, not a fallback value   → cached miles, no provider call
//	provider selected without a key   → ErrConfiguration
//	no provider configured at all     → fallback miles, FallbackUsed, no error
//	provider explicit failure status  → ErrProvider
//	transport / timeout failure       → fallback miles, FallbackUsed, no error
//	success                           → miles cached and returned
//
// Fallback distances are never written to the cache.
type DistanceResolver struct {
	provider  provider.DistanceProvider
	selectErr error
	cache     repository.DistanceCache
	opts      ResolverOptions
	group     singleflight.Group
	logger    *zap.Logger
	now       func() time.Time
}

// NewDistanceResolver creates a resolver around an already-selected provider.
// p may be nil (fallback-only mode); cache may be nil (no caching).
func NewDistanceResolver(
	p provider.DistanceProvider,
	cache repository.DistanceCache,
	opts ResolverOptions,
	log *zap.Logger,
) *DistanceResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProviderTimeout
	}
	return &DistanceResolver{
		provider: p,
		cache:    cache,
		opts:     opts,
		logger:   logger.OrNop(log).Named("distance"),
		now:      time.Now,
	}
}

// NewDistanceResolverFromConfig selects the provider from cfg. A selection
// error does not fail construction: the server stays up and every
// resolution reports ErrConfiguration until the configuration is fixed.
func NewDistanceResolverFromConfig(
	cfg config.DistanceConfig,
	cache repository.DistanceCache,
	httpClient *http.Client,
	log *zap.Logger,
) *DistanceResolver {
	p, err := provider.Select(cfg, httpClient)
	r := NewDistanceResolver(p, cache, ResolverOptions{
		FallbackMiles: cfg.FallbackMiles,
		Timeout:       cfg.Timeout,
	}, log)
	r.selectErr = err

	switch {
	case err != nil:
		r.logger.Error("distance provider misconfigured", zap.String("provider", cfg.Provider), zap.Error(err))
	case p == nil:
		r.logger.Warn("no distance provider credentials; quoting on fallback distance",
			zap.Float64("fallback_miles", cfg.FallbackMiles))
	default:
		r.logger.Info("distance provider selected", zap.String("provider", p.Name()))
	}
	return r
}

// FallbackMiles returns the configured fallback distance.
func (r *DistanceResolver) FallbackMiles() float64 { return r.opts.FallbackMiles }

// Resolve returns the driving distance between origin and destination. The
// returned Resolution is always populated, including on error.
func (r *DistanceResolver) Resolve(ctx context.Context, origin, destination model.Location) (model.Resolution, error) {
	if origin.Key == "" || destination.Key == "" {
		return model.Resolution{}, validationError("pickup and delivery locations are required")
	}

	key := repository.DistanceCacheKey(origin, destination)

	// ── Step 1: Cache ───────────────────────────────────
	if res, ok := r.fromCache(ctx, key); ok {
		return res, nil
	}

	// ── Step 2: Provider selection ──────────────────────
	if r.selectErr != nil {
		err := &ResolveError{Kind: ErrConfiguration, Err: r.selectErr}
		return model.Resolution{Error: err.Error()}, err
	}
	if r.provider == nil {
		return r.fallback(model.ProviderFallback), nil
	}

	// ── Step 3: Provider call, one per route at a time ──
	// The shared call is detached from any one caller; each caller waits
	// only for its own cancellation. The call itself is bounded by Timeout.
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.fetch(detached, key, origin, destination)
	})

	var sr singleflight.Result
	select {
	case <-ctx.Done():
		return model.Resolution{Provider: r.provider.Name(), Error: ctx.Err().Error()}, ctx.Err()
	case sr = <-ch:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.Resolution{Provider: r.provider.Name(), Error: ctxErr.Error()}, ctxErr
	}

	v, err := sr.Val, sr.Err
	if err == nil {
		miles := v.(float64)
		r.logger.Debug("distance resolved",
			zap.String("provider", r.provider.Name()),
			zap.String("origin", origin.Key),
			zap.String("destination", destination.Key),
			zap.Float64("miles", miles),
			zap.Bool("shared", sr.Shared),
		)
		return model.Resolution{DistanceMiles: miles, Provider: r.provider.Name()}, nil
	}

	// ── Step 4: Classify the failure ────────────────────
	var transportErr *provider.TransportError
	if errors.As(err, &transportErr) || provider.IsTransport(err) {
		r.logger.Warn("distance provider unreachable; using fallback distance",
			zap.String("provider", r.provider.Name()),
			zap.String("origin", origin.Key),
			zap.String("destination", destination.Key),
			zap.Float64("fallback_miles", r.opts.FallbackMiles),
			zap.Error(err),
		)
		return r.fallback(r.provider.Name()), nil
	}

	resolveErr := &ResolveError{Kind: ErrProvider, Provider: r.provider.Name(), Err: err}
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		resolveErr.Location = statusErr.Location
	}
	r.logger.Error("distance provider returned an error",
		zap.String("provider", r.provider.Name()),
		zap.String("origin", origin.Key),
		zap.String("destination", destination.Key),
		zap.Error(err),
	)
	return model.Resolution{Provider: r.provider.Name(), Error: resolveErr.Error()}, resolveErr
}

// fromCache returns a cached resolution only when the entry is authoritative.
// An entry flagged as fallback, or numerically equal to the fallback distance,
// may be the residue of an earlier failure and is re-resolved.
func (r *DistanceResolver) fromCache(ctx context.Context, key string) (model.Resolution, bool) {
	if r.cache == nil {
		return model.Resolution{}, false
	}
	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("distance cache read failed", zap.Error(err))
		return model.Resolution{}, false
	}
	if !ok || entry.IsFallback || entry.Miles == r.opts.FallbackMiles {
		return model.Resolution{}, false
	}
	return model.Resolution{
		DistanceMiles: entry.Miles,
		Provider:      model.ProviderCache,
		CacheHit:      true,
	}, true
}

func (r *DistanceResolver) fetch(ctx context.Context, key string, origin, destination model.Location) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	meters, err := r.provider.DistanceMeters(callCtx, origin, destination)
	if err != nil {
		return 0, err
	}
	miles := geo.MetersToMiles(meters)

	if r.cache != nil {
		entry := model.DistanceCacheEntry{
			Miles:      miles,
			ResolvedAt: r.now().UTC(),
			Provider:   r.provider.Name(),
		}
		if err := r.cache.Set(ctx, key, entry); err != nil {
			r.logger.Warn("distance cache write failed", zap.Error(err))
		}
	}
	return miles, nil
}

func (r *DistanceResolver) fallback(providerName string) model.Resolution {
	return model.Resolution{
		DistanceMiles: r.opts.FallbackMiles,
		Provider:      providerName,
		FallbackUsed:  true,
	}
}
