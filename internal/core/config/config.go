package config

import (
	"github.com/vietddude/inventory/internal/infra/catalog"
	"github.com/vietddude/inventory/internal/infra/events"
	redisclient "github.com/vietddude/inventory/internal/infra/redis"
	"github.com/vietddude/inventory/internal/infra/storage/postgres"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Catalog  catalog.Config     `yaml:"catalog"`
	Storage  StorageConfig      `yaml:"storage"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Events   events.Config      `yaml:"events"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StorageConfig selects the keyed store backing the ledger.
type StorageConfig struct {
	Driver          string `yaml:"driver"` // memory, postgres, redis
	ConflictRetries uint64 `yaml:"conflict_retries"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
}
