package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/inventory/internal/infra/catalog"
)

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable default.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres storage driver")
		}
	case StorageRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Catalog.MaxAttempts < 1 {
		return fmt.Errorf("catalog.max_attempts must be at least 1")
	}
	if c.Catalog.FailureThreshold < 1 {
		return fmt.Errorf("catalog.failure_threshold must be at least 1")
	}
	if c.Catalog.Timeout < 0 {
		return fmt.Errorf("catalog.timeout must not be negative")
	}
	if c.Catalog.OpenDuration < 0 {
		return fmt.Errorf("catalog.open_duration must not be negative")
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}
	if cfg.Events.PublishTimeout == 0 {
		cfg.Events.PublishTimeout = 2 * time.Second
	}
	if cfg.Storage.ConflictRetries == 0 {
		cfg.Storage.ConflictRetries = 5
	}
	applyCatalogDefaults(&cfg.Catalog)
}

func applyCatalogDefaults(c *catalog.Config) {
	if c.URL == "" {
		c.URL = "http://localhost:5001"
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = time.Minute
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.OpenDuration == 0 {
		c.OpenDuration = 15 * time.Second
	}
}
