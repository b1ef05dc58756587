package throttle

import "time"

// Config holds configuration for fetch pacing.
type Config struct {
	// Enabled controls whether pacing is active
	Enabled bool `yaml:"enabled"`

	// Delay bounds
	MinDelay time.Duration `yaml:"min_delay"` // Floor between chunks (default: 0)
	MaxDelay time.Duration `yaml:"max_delay"` // Ceiling between chunks (default: 10s)

	// Step is the smallest non-zero delay (default: 100ms)
	Step time.Duration `yaml:"step"`

	// TargetLatency is the fetch latency considered healthy (default: 2s)
	TargetLatency time.Duration `yaml:"target_latency"`
}

func (c Config) withDefaults() Config {
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Step <= 0 {
		c.Step = 100 * time.Millisecond
	}
	if c.TargetLatency <= 0 {
		c.TargetLatency = 2 * time.Second
	}
	return c
}
