// Package throttle paces backfill fetching so that long catch-up runs do
// not saturate shared RPC endpoints.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Pacer computes the delay to insert between fetch chunks based on how the
// upstream endpoint is responding.
type Pacer struct {
	mu     sync.Mutex
	config Config

	// Current state (for metrics)
	currentDelay time.Duration
}

// NewPacer creates a pacer from config, filling in defaults for unset bounds.
func NewPacer(config Config) *Pacer {
	config = config.withDefaults()
	return &Pacer{
		config:       config,
		currentDelay: config.MinDelay,
	}
}

// Observe feeds the latency of a completed fetch into the controller.
//
// Algorithm:
//   - latency > 2x target: double the delay (endpoint is struggling)
//   - latency > target: raise the delay by one step
//   - otherwise: halve the delay back toward the floor
func (p *Pacer) Observe(latency time.Duration) {
	if !p.config.Enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case latency > 2*p.config.TargetLatency:
		p.raise(2 * p.currentDelay)

	case latency > p.config.TargetLatency:
		p.raise(p.currentDelay + p.config.Step)

	default:
		p.currentDelay /= 2
		if p.currentDelay < p.config.MinDelay {
			p.currentDelay = p.config.MinDelay
		}
	}
}

// Backoff doubles the current delay after a failed or rate-limited fetch.
func (p *Pacer) Backoff() {
	if !p.config.Enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raise(2 * p.currentDelay)
}

// Wait sleeps for the current delay, returning early when ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	delay := p.currentDelay
	p.mu.Unlock()

	if !p.config.Enabled || delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CurrentDelay returns the last computed delay (for metrics).
func (p *Pacer) CurrentDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentDelay
}

// raise increases the delay to target, starting from one step when the
// delay is still zero and clamping at the ceiling. Caller holds the lock.
func (p *Pacer) raise(target time.Duration) {
	if target < p.config.Step {
		target = p.config.Step
	}
	if target > p.config.MaxDelay {
		target = p.config.MaxDelay
	}
	p.currentDelay = target
}
