// Package control wires storage, redis, RPC, and the executor into the
// backfill service the CLI drives.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainfill/chainfill/internal/core/config"
	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/indexing/executor"
	"github.com/chainfill/chainfill/internal/indexing/plan"
	"github.com/chainfill/chainfill/internal/infra/redis"
	"github.com/chainfill/chainfill/internal/infra/rpc"
	"github.com/chainfill/chainfill/internal/infra/storage"
	"github.com/chainfill/chainfill/internal/infra/storage/memory"
	"github.com/chainfill/chainfill/internal/infra/storage/postgres"
)

const runLockTTL = 10 * time.Minute

// Service owns the wired dependencies for backfill planning and execution.
type Service struct {
	cfg    *config.AppConfig
	db     *postgres.DB
	redis  *redis.Client
	pool   *rpc.Pool
	heads  plan.HeadSource
	ranges storage.RangeRepository
	writer storage.DataWriter
	exec   *executor.Executor
	log    *slog.Logger
}

// NewService builds the service. With no database URL configured, storage is
// in-memory: plans still compute and run, but the ledger does not survive the
// process. Redis is attached only when enabled.
func NewService(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{cfg: cfg, log: log}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		s.ranges = postgres.NewRangeRepo(db)
		s.writer = postgres.NewDataRepo(db)
		log.Info("using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		s.ranges = memory.NewRangeRepo(store)
		s.writer = memory.NewDataRepo(store)
		log.Warn("no database configured, using in-memory storage")
	}

	endpoints := make(map[domain.Network]string, len(cfg.Networks))
	for name, netCfg := range cfg.Networks {
		network, err := domain.ParseNetwork(name)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("config networks: %w", err)
		}
		endpoints[network] = netCfg.RPCURL
	}
	s.pool = rpc.NewPool(endpoints, cfg.Backfill.RPCTimeout, log)
	s.heads = s.pool

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis.Config)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = client
		s.heads = redis.NewCachingHeadSource(client, s.pool, cfg.Backfill.HeadCacheTTL, log)
		log.Info("redis head cache enabled")
	}

	s.exec = executor.New(executor.Config{
		BatchSize:  cfg.Backfill.BatchSize,
		MaxRetries: cfg.Backfill.MaxRetries,
		Pacing:     cfg.Backfill.Pacing,
	}, executor.NewChainFetcher(s.pool, s.writer), s.ranges, log)

	return s, nil
}

// PlanBackfill queries the ledger and computes the range plan for a request.
func (s *Service) PlanBackfill(ctx context.Context, req plan.Request) (*plan.BackfillPlan, error) {
	return plan.NewBackfillPlan(ctx, req, s.ranges, s.heads, s.log)
}

// RunBackfill executes a plan, holding the partition run lock when redis is
// attached so concurrent backfills cannot interleave ledger writes.
func (s *Service) RunBackfill(ctx context.Context, p *plan.BackfillPlan) error {
	if s.redis != nil {
		ok, err := s.redis.AcquireRunLock(ctx, p.DataType, p.Network, runLockTTL)
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another %s backfill is already running on %s", p.DataType, p.Network)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.redis.ReleaseRunLock(releaseCtx, p.DataType, p.Network); err != nil {
				s.log.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	return s.exec.Run(ctx, p)
}

// ListRanges returns the ledger records matching the filter.
func (s *Service) ListRanges(ctx context.Context, filter storage.RangeFilter) ([]*domain.BackfilledRange, error) {
	return s.ranges.List(ctx, filter)
}

// DeleteRange removes one ledger record, forcing a future re-fetch of its
// blocks.
func (s *Service) DeleteRange(ctx context.Context, id string) error {
	return s.ranges.Delete(ctx, id)
}

// Close releases every held connection.
func (s *Service) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn("failed to close redis", "error", err)
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
