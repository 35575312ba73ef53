// Package config provides configuration loading for the collector service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the collector configuration.
type Config struct {
	// Discovery settings
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Mux settings for the market/user subscription multiplexer
	Mux MuxConfig `yaml:"mux"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Manager settings for cycle collector
	Manager ManagerConfig `yaml:"manager"`
}

// ManagerConfig contains settings for the cycle collector manager.
type ManagerConfig struct {
	// How often to scan for new markets
	ScanInterval time.Duration `yaml:"scan_interval"`

	// Grace period after market ends before closing session
	GracePeriod time.Duration `yaml:"grace_period"`

	// Series to track
	Series []SeriesConfig `yaml:"series"`
}

// SeriesConfig contains settings for a single series.
type SeriesConfig struct {
	// Series slug (e.g., "eth-up-or-down-15m")
	Slug string `yaml:"slug"`

	// Whether this series is enabled
	Enabled bool `yaml:"enabled"`
}

// DiscoveryConfig contains market discovery settings.
type DiscoveryConfig struct {
	// How often to refresh market list
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Tag slugs to filter events
	Tags []string `yaml:"tags"`

	// Only include active markets
	ActiveOnly bool `yaml:"active_only"`

	// Maximum markets to track
	MaxMarkets int `yaml:"max_markets"`
}

// StorageConfig contains storage settings.
type StorageConfig struct {
	// Storage type: "file" or "none"
	Type string `yaml:"type"`

	// Output directory for file storage
	OutputDir string `yaml:"output_dir"`

	// File rotation interval
	RotationInterval time.Duration `yaml:"rotation_interval"`
}

// MuxConfig contains settings for the market/user subscription
// multiplexer's SubscriptionManager, mirroring spec.md §6's options
// record (`reconnectAndCleanupIntervalMs`, `maxMarketsPerWS`,
// `burstLimiter`).
type MuxConfig struct {
	// Custom market-channel WebSocket URL (optional)
	MarketURL string `yaml:"market_url"`

	// How often the reaper redials DEAD groups and drops empty ones.
	ReconnectAndCleanupInterval time.Duration `yaml:"reconnect_and_cleanup_interval"`

	// Maximum keys per group. 0 means unbounded (the market default).
	MaxMarketsPerWS int `yaml:"max_markets_per_ws"`

	// Dial rate limiter overrides. 0 keeps the package default.
	RateLimitTokensPerSecond float64 `yaml:"rate_limit_tokens_per_second"`
	RateLimitBurst           int     `yaml:"rate_limit_burst"`
	RateLimitMaxConcurrent   int     `yaml:"rate_limit_max_concurrent"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `yaml:"level"`

	// Log format: text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			RefreshInterval: 5 * time.Minute,
			ActiveOnly:      true,
			MaxMarkets:      100,
		},
		Storage: StorageConfig{
			Type:             "file",
			OutputDir:        "data",
			RotationInterval: 1 * time.Hour,
		},
		Mux: MuxConfig{
			ReconnectAndCleanupInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Manager: ManagerConfig{
			ScanInterval: 30 * time.Second,
			GracePeriod:  60 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Storage.Type != "file" && c.Storage.Type != "none" {
		return fmt.Errorf("invalid storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "file" && c.Storage.OutputDir == "" {
		return fmt.Errorf("output_dir required for file storage")
	}
	return nil
}
