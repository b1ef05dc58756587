package config

import (
	"time"

	"github.com/chainfill/chainfill/internal/indexing/throttle"
	redisclient "github.com/chainfill/chainfill/internal/infra/redis"
	"github.com/chainfill/chainfill/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig             `yaml:"server"`
	Networks map[string]NetworkConfig `yaml:"networks"`
	Backfill BackfillConfig           `yaml:"backfill"`
	Redis    RedisConfig              `yaml:"redis"`
	Logging  LoggingConfig            `yaml:"logging"`
	Database postgres.Config          `yaml:"database"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig holds per-network RPC settings. Networks without an entry
// fall back to the public default endpoint.
type NetworkConfig struct {
	RPCURL  string        `yaml:"rpc_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// BackfillConfig holds execution defaults, overridable per request.
type BackfillConfig struct {
	BatchSize    uint64          `yaml:"batch_size"`
	MaxRetries   uint64          `yaml:"max_retries"`
	RPCTimeout   time.Duration   `yaml:"rpc_timeout"`
	HeadCacheTTL time.Duration   `yaml:"head_cache_ttl"`
	Pacing       throttle.Config `yaml:"pacing"`
}

// RedisConfig wraps the client config with an enable switch. Redis is
// optional: without it head lookups go straight to RPC and run locks are
// skipped.
type RedisConfig struct {
	Enabled            bool `yaml:"enabled"`
	redisclient.Config `yaml:",inline"`
}
