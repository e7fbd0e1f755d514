// Package config provides configuration loading for sausaged.
package config

import (
	"fmt"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Rates    RatesConfig    `koanf:"rates"`
	License  LicenseConfig  `koanf:"license"`
	Storage  StorageConfig  `koanf:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// UpstreamConfig holds settings for the vision model backend the
// daemon proxies extraction requests to.
type UpstreamConfig struct {
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
}

// RatesConfig holds exchange-rate feed settings.
type RatesConfig struct {
	HomeCurrency    string   `koanf:"home_currency"`
	GlobalFeedURL   string   `koanf:"global_feed_url"`
	RegionalFeedURL string   `koanf:"regional_feed_url"`
	CacheTTL        Duration `koanf:"cache_ttl"`
	Timeout         Duration `koanf:"timeout"`
}

// LicenseConfig holds settings for the sales-platform license lookup.
type LicenseConfig struct {
	SalesAPIURL string   `koanf:"sales_api_url"`
	SalesToken  Secret   `koanf:"sales_token"`
	Timeout     Duration `koanf:"timeout"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.RequestsPerMinute < 1 {
		return fmt.Errorf("upstream.requests_per_minute must be positive, got %d", c.Upstream.RequestsPerMinute)
	}

	if c.Rates.HomeCurrency == "" {
		return fmt.Errorf("rates.home_currency is required")
	}
	if c.Rates.GlobalFeedURL == "" && c.Rates.RegionalFeedURL == "" {
		return fmt.Errorf("at least one of rates.global_feed_url or rates.regional_feed_url is required")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = "gemini-2.5-flash"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = Duration(90 * time.Second)
	}
	if cfg.Upstream.RequestsPerMinute == 0 {
		cfg.Upstream.RequestsPerMinute = 30
	}

	if cfg.Rates.HomeCurrency == "" {
		cfg.Rates.HomeCurrency = "TWD"
	}
	if cfg.Rates.GlobalFeedURL == "" {
		cfg.Rates.GlobalFeedURL = "https://open.er-api.com/v6/latest/TWD"
	}
	if cfg.Rates.RegionalFeedURL == "" {
		cfg.Rates.RegionalFeedURL = "https://rate.bot.com.tw/xrt/flcsv/0/day"
	}
	if cfg.Rates.CacheTTL == 0 {
		cfg.Rates.CacheTTL = Duration(10 * time.Minute)
	}
	if cfg.Rates.Timeout == 0 {
		cfg.Rates.Timeout = Duration(15 * time.Second)
	}

	if cfg.License.Timeout == 0 {
		cfg.License.Timeout = Duration(15 * time.Second)
	}
}
