package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/shiva/courierquote/internal/repository"
	pkglogger "github.com/shiva/courierquote/pkg/logger"
)

// APIKeyHeader identifies a caller for rate limiting.
const APIKeyHeader = "X-Api-Key"

// Limiter counts a request against the caller's current window.
// Implemented by repository.RedisRateLimiter and repository.MemoryRateLimiter.
type Limiter interface {
	Allow(ctx context.Context, identity string) (repository.RateDecision, error)
}

// RateLimit rejects callers over their fixed-window budget with 429 before
// the request reaches a handler. A limiter failure lets the request through.
func RateLimit(limiter Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	logger := pkglogger.OrNop(log).Named("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			identity := callerIdentity(r)
			d, err := limiter.Allow(r.Context(), identity)
			if err != nil {
				logger.Warn("rate limiter unavailable; allowing request",
					zap.String("identity", identity),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				retry := d.RetryAfter(time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many quote requests; retry later"}`))
				logger.Info("rate limited", zap.String("identity", identity), zap.String("request_id", RequestID(r.Context())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerIdentity prefers the API key (hashed, so keys never reach Redis)
// and falls back to the client IP.
func callerIdentity(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return "key:" + strconv.FormatUint(xxhash.Sum64String(key), 16)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
