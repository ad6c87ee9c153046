// Package common provides shared utilities for Foyer
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Foyer
type Config struct {
	Environment string        `toml:"environment"`
	Storage     StorageConfig `toml:"storage"`
	Queue       QueueConfig   `toml:"queue"`
	Sweeper     SweeperConfig `toml:"sweeper"`
	Logging     LoggingConfig `toml:"logging"`
}

// StorageConfig holds storage backend configuration.
// Backend is "surrealdb" (default) or "memory" (no external dependencies,
// state is lost on restart — development and single-event deployments only).
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// QueueConfig holds queue engine tuning.
type QueueConfig struct {
	ConflictRetries  int    `toml:"conflict_retries"`   // attempts after the first failure
	RetryBaseDelay   string `toml:"retry_base_delay"`   // duration string, default "10ms"
	CategoryCacheTTL string `toml:"category_cache_ttl"` // duration string, default "5m"
}

// GetRetryBaseDelay parses and returns the first retry delay.
func (c *QueueConfig) GetRetryBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.RetryBaseDelay)
	if err != nil {
		return 10 * time.Millisecond
	}
	return d
}

// GetCategoryCacheTTL parses and returns the category cache TTL.
func (c *QueueConfig) GetCategoryCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CategoryCacheTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// SweeperConfig holds consistency sweeper tuning.
type SweeperConfig struct {
	Interval      string  `toml:"interval"`        // duration string, default "30s"
	RepairsPerSec float64 `toml:"repairs_per_sec"` // rate limit on repair transactions
}

// GetInterval parses and returns the sweep interval.
func (c *SweeperConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Backend:   "surrealdb",
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "foyer",
			Database:  "foyer",
		},
		Queue: QueueConfig{
			ConflictRetries:  3,
			RetryBaseDelay:   "10ms",
			CategoryCacheTTL: "5m",
		},
		Sweeper: SweeperConfig{
			Interval:      "30s",
			RepairsPerSec: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOYER_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("FOYER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("FOYER_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	if addr := os.Getenv("FOYER_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if user := os.Getenv("FOYER_STORAGE_USERNAME"); user != "" {
		config.Storage.Username = user
	}

	if pass := os.Getenv("FOYER_STORAGE_PASSWORD"); pass != "" {
		config.Storage.Password = pass
	}

	if ns := os.Getenv("FOYER_STORAGE_NAMESPACE"); ns != "" {
		config.Storage.Namespace = ns
	}

	if db := os.Getenv("FOYER_STORAGE_DATABASE"); db != "" {
		config.Storage.Database = db
	}

	if iv := os.Getenv("FOYER_SWEEP_INTERVAL"); iv != "" {
		config.Sweeper.Interval = iv
	}

	if retries := os.Getenv("FOYER_CONFLICT_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
			config.Queue.ConflictRetries = n
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
