package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiva/courierquote/config"
	"github.com/shiva/courierquote/internal/handler"
	"github.com/shiva/courierquote/internal/middleware"
	"github.com/shiva/courierquote/internal/repository"
	"github.com/shiva/courierquote/internal/service"
	"github.com/shiva/courierquote/pkg/cache"
	"github.com/shiva/courierquote/pkg/db"
	"github.com/shiva/courierquote/pkg/logger"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.DefaultConfig()).Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// ── Connect to PostgreSQL (optional) ────────────────
	var pgPool *pgxpool.Pool
	if cfg.Postgres.Enabled {
		pgPool, err = db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pgPool.Close()
		log.Info("postgres connected", zap.String("db", cfg.Postgres.DBName))
	}

	// ── Connect to Redis (optional) ─────────────────────
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// ── Initialize layers ───────────────────────────────
	distanceCache := newDistanceCache(cfg, redisClient, log)
	limiter := newRateLimiter(cfg, redisClient, log)

	var (
		rateSource service.RateSource
		promos     service.PromoValidator
	)
	if pgPool != nil {
		rateSource = repository.NewRateRepository(pgPool)
		promos = service.NewPromoService(repository.NewPromoRepository(pgPool))
	} else if cfg.Pricing.RatesFromDB {
		log.Warn("RATES_FROM_DB is set but postgres is disabled; using defaults and rates file")
	}

	rateBook, err := service.NewRateBook(cfg, rateSource, log)
	if err != nil {
		log.Fatal("invalid default rate tables", zap.Error(err))
	}
	if err := rateBook.Reload(ctx); err != nil {
		log.Fatal("failed to load rate tables", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: cfg.Distance.Timeout}
	resolver := service.NewDistanceResolverFromConfig(cfg.Distance, distanceCache, httpClient, log)
	quoteSvc := service.NewQuoteService(resolver, rateBook, promos, cfg.Pricing.Location(), log)

	quoteHandler := handler.NewQuoteHandler(quoteSvc, log)
	pricingHandler := handler.NewPricingHandler(quoteSvc, log)
	promoHandler := handler.NewPromoHandler(promos, log)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes, rate limited per caller.
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(limiter, log))
	api.HandleFunc("/quotes", quoteHandler.CreateQuote).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/quotes/recalculate", pricingHandler.Recalculate).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/promos/validate", promoHandler.Validate).Methods(http.MethodPost, http.MethodOptions)

	// Recoverer → RequestLogger → CORS → router.
	h := middleware.Recoverer(log)(middleware.RequestLogger(log)(middleware.CORS(router)))

	// ── Reload rates on SIGHUP ──────────────────────────
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reloadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := rateBook.Reload(reloadCtx); err == nil {
				log.Info("rate tables reloaded on SIGHUP")
			}
			cancel()
		}
	}()

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.ServerAddr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(hup)
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("server gracefully stopped")
}

// newDistanceCache picks the cache backend. A redis backend without a
// Redis connection degrades to the in-process cache.
func newDistanceCache(cfg *config.Config, client *redis.Client, log *zap.Logger) repository.DistanceCache {
	if cfg.Distance.CacheBackend == "redis" {
		if client != nil {
			return repository.NewRedisDistanceCache(client, cfg.Distance.CacheTTL)
		}
		log.Warn("DISTANCE_CACHE_BACKEND=redis but redis is disabled; using memory cache")
	}
	return repository.NewMemoryDistanceCache(cfg.Distance.CacheTTL)
}

// newRateLimiter picks the limiter backend with the same degradation rule.
func newRateLimiter(cfg *config.Config, client *redis.Client, log *zap.Logger) middleware.Limiter {
	if cfg.RateLimit.Backend == "redis" {
		if client != nil {
			return repository.NewRedisRateLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
		log.Warn("RATE_LIMIT_BACKEND=redis but redis is disabled; using memory limiter")
	}
	return repository.NewMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis
// connectivity. A backend that is not configured reports "disabled".
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		switch {
		case pgPool == nil:
			resp.Services["postgres"] = "disabled"
		case db.HealthCheck(r.Context(), pgPool) != nil:
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy"
		default:
			resp.Services["postgres"] = "healthy"
		}

		switch {
		case redisClient == nil:
			resp.Services["redis"] = "disabled"
		case cache.HealthCheck(r.Context(), redisClient) != nil:
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy"
		default:
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
