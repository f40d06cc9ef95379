// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs the concurrent request handler.
type ScraperConfig struct {
	MaxWorkers         int `mapstructure:"max_workers"`
	MaxQueueSize       int `mapstructure:"max_queue_size"`
	RateLimit          int `mapstructure:"rate_limit"`
	RateWindowSeconds  int `mapstructure:"rate_window_seconds"`
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	BatchMaxSize       int `mapstructure:"batch_max_size"`
}

// CacheConfig bounds the in-memory result cache.
type CacheConfig struct {
	MaxSize    int `mapstructure:"max_size"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// HTTPConfig configures the probe fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	PerDomainRPS   float64 `mapstructure:"per_domain_rps"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("scraper.max_workers", 10)
	v.SetDefault("scraper.max_queue_size", 100)
	v.SetDefault("scraper.rate_limit", 30)
	v.SetDefault("scraper.rate_window_seconds", 60)
	v.SetDefault("scraper.task_timeout_seconds", 30)
	v.SetDefault("scraper.batch_max_size", 50)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl_seconds", 1800)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.per_domain_rps", 1.0)
	v.SetDefault("http.user_agent", "job-scraper-bot/2.0")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Misconfiguration
// is a programmer error and fails at startup, never at request time.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.MaxWorkers <= 0 {
		return fmt.Errorf("scraper.max_workers must be > 0")
	}
	if c.Scraper.MaxQueueSize <= 0 {
		return fmt.Errorf("scraper.max_queue_size must be > 0")
	}
	if c.Scraper.RateLimit <= 0 || c.Scraper.RateWindowSeconds <= 0 {
		return fmt.Errorf("scraper.rate_limit and scraper.rate_window_seconds must be > 0")
	}
	if c.Cache.MaxSize <= 0 || c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.max_size and cache.ttl_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// TaskTimeout converts the per-task timeout into a duration.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Scraper.TaskTimeoutSeconds) * time.Second
}

// CacheTTL converts the cache TTL into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RateWindow converts the rate-limit window into a duration.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.Scraper.RateWindowSeconds) * time.Second
}

// FetchTimeout converts the probe fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
