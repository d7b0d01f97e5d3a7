package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/milkspot-proxy/pkg/airtable"
)

// Cache backends.
const (
	backendDisk  = "disk"
	backendRedis = "redis"
)

// Config is the server configuration, read from the environment.
type Config struct {
	// Airtable
	APIKey   string `env:"AIRTABLE_API_KEY,required"`
	BaseID   string `env:"AIRTABLE_BASE_ID,required"`
	APIURL   string `env:"AIRTABLE_API_URL" envDefault:"https://api.airtable.com"`
	PageSize int    `env:"AIRTABLE_PAGE_SIZE" envDefault:"100"`

	// Views per table
	MilkspotsView string `env:"MILKSPOTS_VIEW" envDefault:"Grid view"`
	ReviewsView   string `env:"REVIEWS_VIEW" envDefault:"Grid view"`
	AmenitiesView string `env:"AMENITIES_VIEW" envDefault:"Grid view"`

	// Rate limiting
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"210ms"`
	RateLimitMaxQueue int           `env:"RATE_LIMIT_MAX_QUEUE" envDefault:"0"`
	RateLimitShared   bool          `env:"RATE_LIMIT_SHARED" envDefault:"false"`

	// Cache
	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"disk"`
	CacheDir     string        `env:"CACHE_DIR" envDefault:".newcache"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"0s"`
	RedisURL     string        `env:"REDIS_URL" envDefault:"localhost:6379"`

	// Server
	Port                string        `env:"PORT" envDefault:"8080"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty           bool          `env:"LOG_PRETTY" envDefault:"false"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"0s"`
	FailOnUpstreamError bool          `env:"FAIL_ON_UPSTREAM_ERROR" envDefault:"false"`
}

// loadConfig parses environ, or the process environment when environ is nil.
func loadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PageSize < 1 || c.PageSize > airtable.MaxPageSize {
		return fmt.Errorf("AIRTABLE_PAGE_SIZE must be between 1 and %d (got %d)", airtable.MaxPageSize, c.PageSize)
	}
	if c.RateLimitInterval <= 0 {
		return fmt.Errorf("RATE_LIMIT_INTERVAL must be positive (got %s)", c.RateLimitInterval)
	}
	if c.RateLimitMaxQueue < 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_QUEUE must not be negative (got %d)", c.RateLimitMaxQueue)
	}
	if c.CacheBackend != backendDisk && c.CacheBackend != backendRedis {
		return fmt.Errorf("CACHE_BACKEND must be %q or %q (got %q)", backendDisk, backendRedis, c.CacheBackend)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative (got %s)", c.CacheTTL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative (got %s)", c.RequestTimeout)
	}
	return nil
}

// needsRedis reports whether any component is configured to use Redis.
func (c Config) needsRedis() bool {
	return c.CacheBackend == backendRedis || c.RateLimitShared
}
