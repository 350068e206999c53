package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/logger"
)

// Config holds all configuration for the application. It is loaded once at
// startup and passed down by pointer; nothing mutates it afterwards.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Distance  DistanceConfig
	Pricing   PricingConfig
	RateLimit RateLimitConfig
	Log       logger.Config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings. The database holds the
// settings application's rate tables and promo codes.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"POSTGRES_ENABLED"`
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"REDIS_ENABLED"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// DistanceConfig selects and configures the routing provider.
//
// Provider is "google", "openroute" or empty. Empty means "use whichever key
// is present"; with no key at all the resolver runs in fallback-only mode.
type DistanceConfig struct {
	Provider         string        `mapstructure:"DISTANCE_PROVIDER"`
	GoogleAPIKey     string        `mapstructure:"GOOGLE_MAPS_API_KEY"`
	OpenRouteAPIKey  string        `mapstructure:"OPENROUTE_API_KEY"`
	OpenRouteBaseURL string        `mapstructure:"OPENROUTE_BASE_URL"`
	FallbackMiles    float64       `mapstructure:"DISTANCE_FALLBACK_MILES"`
	Timeout          time.Duration `mapstructure:"DISTANCE_TIMEOUT"`
	CacheTTL         time.Duration `mapstructure:"DISTANCE_CACHE_TTL"`
	CacheBackend     string        `mapstructure:"DISTANCE_CACHE_BACKEND"`
}

// PricingConfig holds night-rate parameters and rate-table sources.
type PricingConfig struct {
	NightEnabled    bool    `mapstructure:"NIGHT_RATE_ENABLED"`
	NightStartHour  int     `mapstructure:"NIGHT_RATE_START_HOUR"`
	NightEndHour    int     `mapstructure:"NIGHT_RATE_END_HOUR"`
	NightMultiplier float64 `mapstructure:"NIGHT_RATE_MULTIPLIER"`
	NightApplyMode  string  `mapstructure:"NIGHT_RATE_APPLY_MODE"`
	VATRate         float64 `mapstructure:"VAT_RATE"`
	Timezone        string  `mapstructure:"PRICING_TIMEZONE"`
	RatesFile       string  `mapstructure:"RATES_FILE"`
	RatesFromDB     bool    `mapstructure:"RATES_FROM_DB"`
}

// RateLimitConfig configures the fixed-window limiter in front of quoting.
type RateLimitConfig struct {
	Requests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	Window   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	Backend  string        `mapstructure:"RATE_LIMIT_BACKEND"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Night returns the night-rate parameters as the pricing core sees them.
func (p *PricingConfig) Night() model.NightRateConfig {
	return model.NightRateConfig{
		Enabled:    p.NightEnabled,
		StartHour:  p.NightStartHour,
		EndHour:    p.NightEndHour,
		Multiplier: p.NightMultiplier,
		ApplyMode:  model.NightApplyMode(p.NightApplyMode),
	}
}

// Location returns the time zone used for night-window tests.
func (p *PricingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by the orchestrator are used instead.
	_ = v.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         v.GetString("SERVER_HOST"),
		Port:         v.GetInt("SERVER_PORT"),
		ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Enabled:  v.GetBool("POSTGRES_ENABLED"),
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetInt("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER"),
		Password: v.GetString("POSTGRES_PASSWORD"),
		DBName:   v.GetString("POSTGRES_DB"),
		SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		MaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: v.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Distance ────────────────────────────────────────
	cfg.Distance = DistanceConfig{
		Provider:         strings.ToLower(strings.TrimSpace(v.GetString("DISTANCE_PROVIDER"))),
		GoogleAPIKey:     strings.TrimSpace(v.GetString("GOOGLE_MAPS_API_KEY")),
		OpenRouteAPIKey:  strings.TrimSpace(v.GetString("OPENROUTE_API_KEY")),
		OpenRouteBaseURL: v.GetString("OPENROUTE_BASE_URL"),
		FallbackMiles:    v.GetFloat64("DISTANCE_FALLBACK_MILES"),
		Timeout:          v.GetDuration("DISTANCE_TIMEOUT"),
		CacheTTL:         v.GetDuration("DISTANCE_CACHE_TTL"),
		CacheBackend:     strings.ToLower(v.GetString("DISTANCE_CACHE_BACKEND")),
	}

	// ── Pricing ─────────────────────────────────────────
	cfg.Pricing = PricingConfig{
		NightEnabled:    v.GetBool("NIGHT_RATE_ENABLED"),
		NightStartHour:  v.GetInt("NIGHT_RATE_START_HOUR"),
		NightEndHour:    v.GetInt("NIGHT_RATE_END_HOUR"),
		NightMultiplier: v.GetFloat64("NIGHT_RATE_MULTIPLIER"),
		NightApplyMode:  strings.ToLower(v.GetString("NIGHT_RATE_APPLY_MODE")),
		VATRate:         v.GetFloat64("VAT_RATE"),
		Timezone:        v.GetString("PRICING_TIMEZONE"),
		RatesFile:       v.GetString("RATES_FILE"),
		RatesFromDB:     v.GetBool("RATES_FROM_DB"),
	}

	// ── Rate limit ──────────────────────────────────────
	cfg.RateLimit = RateLimitConfig{
		Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
		Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		Backend:  strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
	}

	// ── Logging ─────────────────────────────────────────
	cfg.Log = logger.Config{
		Level:       v.GetString("LOG_LEVEL"),
		Format:      v.GetString("LOG_FORMAT"),
		Development: v.GetBool("LOG_DEVELOPMENT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	// Quote requests may block on the provider for DISTANCE_TIMEOUT.
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("POSTGRES_ENABLED", true)
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "courier")
	v.SetDefault("POSTGRES_PASSWORD", "courier_secret")
	v.SetDefault("POSTGRES_DB", "courier_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 20)
	v.SetDefault("POSTGRES_MIN_CONNS", 2)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)

	v.SetDefault("DISTANCE_PROVIDER", "")
	v.SetDefault("GOOGLE_MAPS_API_KEY", "")
	v.SetDefault("OPENROUTE_API_KEY", "")
	v.SetDefault("OPENROUTE_BASE_URL", "https://api.openrouteservice.org")
	v.SetDefault("DISTANCE_FALLBACK_MILES", 20.0)
	v.SetDefault("DISTANCE_TIMEOUT", "15s")
	v.SetDefault("DISTANCE_CACHE_TTL", "720h")
	v.SetDefault("DISTANCE_CACHE_BACKEND", "redis")

	v.SetDefault("NIGHT_RATE_ENABLED", true)
	v.SetDefault("NIGHT_RATE_START_HOUR", 22)
	v.SetDefault("NIGHT_RATE_END_HOUR", 6)
	v.SetDefault("NIGHT_RATE_MULTIPLIER", 1.5)
	v.SetDefault("NIGHT_RATE_APPLY_MODE", string(model.NightCollectionOnly))
	v.SetDefault("VAT_RATE", 20.0)
	v.SetDefault("PRICING_TIMEZONE", "Europe/London")
	v.SetDefault("RATES_FILE", "")
	v.SetDefault("RATES_FROM_DB", false)

	v.SetDefault("RATE_LIMIT_REQUESTS", 30)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_BACKEND", "redis")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_DEVELOPMENT", false)
}

func (c *Config) validate() error {
	switch c.Distance.Provider {
	case "", model.ProviderGoogle, model.ProviderOpenRoute:
	default:
		return fmt.Errorf("config: unknown DISTANCE_PROVIDER %q", c.Distance.Provider)
	}
	switch c.Distance.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: unknown DISTANCE_CACHE_BACKEND %q", c.Distance.CacheBackend)
	}
	if c.Distance.FallbackMiles < 0 {
		return fmt.Errorf("config: DISTANCE_FALLBACK_MILES must not be negative")
	}
	if c.Distance.Timeout <= 0 {
		return fmt.Errorf("config: DISTANCE_TIMEOUT must be positive")
	}
	if !model.NightApplyMode(c.Pricing.NightApplyMode).Valid() {
		return fmt.Errorf("config: unknown NIGHT_RATE_APPLY_MODE %q", c.Pricing.NightApplyMode)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}
