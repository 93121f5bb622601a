// Package config loads the engine's settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config is populated once at startup and read-only afterwards.
type Config struct {
	// Address is the HTTP listen address.
	Address string `env:"ADDRESS" envDefault:":8080"`

	// SiteRoot is the directory source image assets are resolved against.
	SiteRoot string `env:"SITE_ROOT" envDefault:"public"`

	// CacheRoot is the durable storage directory for optimized variants.
	CacheRoot string `env:"CACHE_ROOT" envDefault:"cache/image"`

	// EndpointPath is the retrieval route for optimized variants.
	EndpointPath string `env:"ENDPOINT_PATH" envDefault:"/cache/image"`

	// Prefetch controls whether the cache is warmed before serving.
	Prefetch bool `env:"PREFETCH" envDefault:"true"`

	// PrefetchConcurrency bounds simultaneous computations during warm-up.
	PrefetchConcurrency int `env:"PREFETCH_CONCURRENCY" envDefault:"4"`

	// PrefetchWidth is the default variant width warmed for scanned assets.
	PrefetchWidth int `env:"PREFETCH_WIDTH" envDefault:"1024"`

	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env if present, then parses environment variables into Config.
func Load() (Config, error) {
	// Ignore a missing .env; real environments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PrefetchConcurrency < 1 {
		return Config{}, fmt.Errorf("PREFETCH_CONCURRENCY must be positive, got %d", cfg.PrefetchConcurrency)
	}
	return cfg, nil
}
