// Package config provides the configuration system for birdfeed.
// A single Config structure carries everything a run needs: upstream API
// credentials and limits, the destination store location, and the ingestion
// window. Values come from an optional config file, BIRDFEED_* environment
// variables, and the EBIRD_API_TOKEN variable used by the upstream project.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openaviary/birdfeed/pkg/errors"
)

// DefaultAPIBaseURL is the versioned base URL of the eBird API.
const DefaultAPIBaseURL = "https://api.ebird.org/v2"

// Config is the unified configuration for an ingestion run.
type Config struct {
	// APIToken authenticates against the upstream API. Its absence is not a
	// load-time error; the HTTP client rejects calls before any network I/O.
	APIToken string `mapstructure:"api_token"`

	// APIBaseURL overrides the upstream API base URL (tests, proxies).
	APIBaseURL string `mapstructure:"api_base_url"`

	// DatabaseURL locates the destination store. A postgres:// DSN selects
	// the PostgreSQL backend; anything else is treated as a SQLite path
	// (":memory:" included).
	DatabaseURL string `mapstructure:"database_url"`

	// Dataset namespaces the destination tables.
	Dataset string `mapstructure:"dataset"`

	// Regions lists the region codes for batch runs, in execution order.
	Regions []string `mapstructure:"regions"`

	// LookbackDays is the backward window for time-scoped fetches.
	LookbackDays int `mapstructure:"lookback_days"`

	// MaxResults caps the per-endpoint result count.
	MaxResults int `mapstructure:"max_results"`

	// RequestTimeout bounds each upstream HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RateLimitPerSec limits upstream requests per second (0 = unlimited).
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`

	// RateBurst is the token bucket burst size.
	RateBurst int `mapstructure:"rate_burst"`

	// LogLevel sets logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a Config with production defaults matching the upstream
// pipeline: 7-day lookback, 100 results per endpoint, a local SQLite store.
func Default() *Config {
	return &Config{
		APIBaseURL:      DefaultAPIBaseURL,
		DatabaseURL:     "data/birdfeed.db",
		Dataset:         "raw_ebird_data",
		Regions:         []string{"US-CA"},
		LookbackDays:    7,
		MaxResults:      100,
		RequestTimeout:  10 * time.Second,
		RateLimitPerSec: 5,
		RateBurst:       5,
		LogLevel:        "info",
	}
}

// Load builds a Config from defaults, an optional config file, and the
// environment. Environment variables use the BIRDFEED_ prefix with
// underscores (BIRDFEED_DATABASE_URL); the API token additionally binds to
// EBIRD_API_TOKEN for compatibility with existing deployments.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("api_base_url", def.APIBaseURL)
	v.SetDefault("database_url", def.DatabaseURL)
	v.SetDefault("dataset", def.Dataset)
	v.SetDefault("regions", def.Regions)
	v.SetDefault("lookback_days", def.LookbackDays)
	v.SetDefault("max_results", def.MaxResults)
	v.SetDefault("request_timeout", def.RequestTimeout)
	v.SetDefault("rate_limit_per_sec", def.RateLimitPerSec)
	v.SetDefault("rate_burst", def.RateBurst)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("BIRDFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_token", "EBIRD_API_TOKEN", "BIRDFEED_API_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to read config file %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to unmarshal config")
	}

	return cfg, nil
}

// Validate checks the configuration for correctness. The API token is
// deliberately not validated here; its absence surfaces as a credential
// error at run time so that token-free commands (tables, version) work.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New(errors.ErrorTypeConfig, "api_base_url is required")
	}
	if c.DatabaseURL == "" {
		return errors.New(errors.ErrorTypeConfig, "database_url is required")
	}
	if c.Dataset == "" {
		return errors.New(errors.ErrorTypeConfig, "dataset is required")
	}
	if c.LookbackDays <= 0 {
		return errors.New(errors.ErrorTypeConfig, "lookback_days must be positive")
	}
	if c.MaxResults <= 0 {
		return errors.New(errors.ErrorTypeConfig, "max_results must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "request_timeout must be positive")
	}
	if c.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "rate_limit_per_sec cannot be negative")
	}
	return nil
}

// IsRateLimited returns true if upstream rate limiting is enabled
func (c *Config) IsRateLimited() bool {
	return c.RateLimitPerSec > 0
}
