package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. A missing file yields the
// defaults so the CLI works without any config at all.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backfill.BatchSize == 0 {
		cfg.Backfill.BatchSize = 1000
	}
	if cfg.Backfill.MaxRetries == 0 {
		cfg.Backfill.MaxRetries = 3
	}
	if cfg.Backfill.RPCTimeout == 0 {
		cfg.Backfill.RPCTimeout = 30 * time.Second
	}
	if cfg.Backfill.HeadCacheTTL == 0 {
		cfg.Backfill.HeadCacheTTL = 30 * time.Second
	}

	return &cfg, nil
}
