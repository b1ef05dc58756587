// Package executor runs a computed backfill plan: it walks the plan's
// sub-ranges in order, fetches chunk by chunk, reports progress back into the
// plan, and persists the reconciled ledger mutation when the run ends.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/chainfill/chainfill/internal/indexing/metrics"
	"github.com/chainfill/chainfill/internal/indexing/plan"
	"github.com/chainfill/chainfill/internal/indexing/throttle"
	"github.com/chainfill/chainfill/internal/infra/storage"
)

// Fetcher retrieves and stores chain data for one chunk of a plan.
type Fetcher interface {
	FetchRange(ctx context.Context, p *plan.BackfillPlan, fromBlock, toBlock uint64) error
}

// Config configures chunking, per-chunk retry, and fetch pacing.
type Config struct {
	BatchSize  uint64          // blocks per chunk (default: 1000)
	MaxRetries uint64          // retries per chunk before the range fails (default: 3)
	RetryBase  time.Duration   // initial backoff delay (default: 1s)
	Pacing     throttle.Config // inter-chunk pacing (default: disabled)
}

// DefaultConfig returns defaults sized for public RPC endpoints.
func DefaultConfig() Config {
	return Config{
		BatchSize:  1000,
		MaxRetries: 3,
		RetryBase:  time.Second,
	}
}

// Executor drives one BackfillPlan to completion.
type Executor struct {
	cfg     Config
	fetcher Fetcher
	ranges  storage.RangeRepository
	pacer   *throttle.Pacer
	log     *slog.Logger
}

// New creates an executor. Zero config fields fall back to defaults.
func New(cfg Config, fetcher Fetcher, ranges storage.RangeRepository, log *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		cfg:     cfg,
		fetcher: fetcher,
		ranges:  ranges,
		pacer:   throttle.NewPacer(cfg.Pacing),
		log:     log,
	}
}

// Run executes the plan and persists the outcome. A fetch failure or context
// cancellation fails the current range at the last completed block, then the
// partial progress is still persisted. The fetch error is returned after
// persistence so the caller sees why the run stopped.
func (e *Executor) Run(ctx context.Context, p *plan.BackfillPlan) error {
	network, dataType := string(p.Network), string(p.DataType)
	log := e.log.With("network", p.Network, "data_type", p.DataType)

	if p.Empty() {
		log.Info("nothing to backfill, ledger already covers the request")
		return nil
	}

	batchSize := e.batchSize(p)
	var runErr error

	for i, r := range p.Range.Ranges {
		log.Info("backfilling range", "start_block", r.Start, "end_block", r.End, "batch_size", batchSize)

		done, err := e.runRange(ctx, p, r, batchSize)
		if err == nil {
			if err := p.Range.MarkFinalized(i); err != nil {
				return fmt.Errorf("finalize range %d: %w", i, err)
			}
			metrics.RangesFinalized.WithLabelValues(network, dataType).Inc()
			metrics.BlocksBackfilled.WithLabelValues(network, dataType).Add(float64(r.Blocks()))
			metrics.BackfillProgressBlock.WithLabelValues(network, dataType).Set(float64(r.End))
			continue
		}

		log.Error("range failed", "start_block", r.Start, "end_block", r.End,
			"final_block", done, "error", err)
		if failErr := p.Range.MarkFailed(i, done); failErr != nil {
			return errors.Join(err, fmt.Errorf("record failure at block %d: %w", done, failErr))
		}
		metrics.RangesFailed.WithLabelValues(network, dataType).Inc()
		runErr = err
		break
	}

	if err := e.persist(ctx, p); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// runRange fetches [r.Start, r.End) chunk by chunk. It returns the first
// block not fetched: r.End on success, the failed chunk's start otherwise.
func (e *Executor) runRange(ctx context.Context, p *plan.BackfillPlan, r plan.BlockRange, batchSize uint64) (uint64, error) {
	for chunkStart := r.Start; chunkStart < r.End; chunkStart += batchSize {
		chunkEnd := chunkStart + batchSize
		if chunkEnd > r.End {
			chunkEnd = r.End
		}

		if err := ctx.Err(); err != nil {
			return chunkStart, err
		}

		fetchStart := time.Now()
		if err := e.fetchChunk(ctx, p, chunkStart, chunkEnd); err != nil {
			e.pacer.Backoff()
			return chunkStart, err
		}
		e.pacer.Observe(time.Since(fetchStart))

		metrics.BackfillProgressBlock.WithLabelValues(string(p.Network), string(p.DataType)).Set(float64(chunkEnd))

		if chunkEnd < r.End {
			if err := e.pacer.Wait(ctx); err != nil {
				return chunkEnd, err
			}
		}
	}
	return r.End, nil
}

func (e *Executor) fetchChunk(ctx context.Context, p *plan.BackfillPlan, fromBlock, toBlock uint64) error {
	backoff := retry.WithMaxRetries(e.cfg.MaxRetries, retry.NewExponential(e.cfg.RetryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.fetcher.FetchRange(ctx, p, fromBlock, toBlock)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		e.log.Warn("chunk fetch failed, retrying",
			"from_block", fromBlock, "to_block", toBlock, "error", err)
		return retry.RetryableError(err)
	})
}

// persist applies the plan's ledger mutation. Runs detached from the request
// context so a cancelled backfill still records its progress.
func (e *Executor) persist(ctx context.Context, p *plan.BackfillPlan) error {
	add := p.Range.AddBackfill()
	removes := p.Range.RemoveBackfills()
	if add == nil && len(removes) == 0 {
		return nil
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := e.ranges.ApplyPlan(persistCtx, add, removes); err != nil {
		return fmt.Errorf("persist backfill progress: %w", err)
	}

	if add != nil {
		e.log.Info("ledger updated",
			"range_id", add.ID,
			"start_block", add.StartBlock,
			"end_block", add.EndBlock,
			"absorbed", len(removes),
		)
	}
	return nil
}

// batchSize honors a batch_size request parameter when present.
func (e *Executor) batchSize(p *plan.BackfillPlan) uint64 {
	raw, err := p.MetadataValue("batch_size")
	if err != nil {
		return e.cfg.BatchSize
	}
	switch v := raw.(type) {
	case int:
		if v > 0 {
			return uint64(v)
		}
	case uint64:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return uint64(v)
		}
	}
	return e.cfg.BatchSize
}
