package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// Client wraps the Redis operations used by the backfill pipeline: a chain
// head cache and per-partition run locks.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func headKey(network domain.Network) string {
	return fmt.Sprintf("chain_head:%s", network)
}

func runLockKey(dataType domain.BackfillDataType, network domain.Network) string {
	return fmt.Sprintf("backfill_running:%s:%s", network, dataType)
}

// CachedHead returns the cached head block for a network. found is false when
// the key is missing or expired.
func (c *Client) CachedHead(ctx context.Context, network domain.Network) (head uint64, found bool, err error) {
	val, err := c.rdb.Get(ctx, headKey(network)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cached head: %w", err)
	}
	head, err = strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached head %q: %w", val, err)
	}
	return head, true, nil
}

// SetCachedHead stores the head block for a network with a TTL.
func (c *Client) SetCachedHead(ctx context.Context, network domain.Network, head uint64, ttl time.Duration) error {
	return c.rdb.Set(ctx, headKey(network), strconv.FormatUint(head, 10), ttl).Err()
}

// AcquireRunLock claims the single-runner lock for a backfill partition.
// Returns false when another backfill for the same partition holds it.
func (c *Client) AcquireRunLock(
	ctx context.Context,
	dataType domain.BackfillDataType,
	network domain.Network,
	ttl time.Duration,
) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, runLockKey(dataType, network), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshRunLock extends the TTL of a held run lock.
func (c *Client) RefreshRunLock(
	ctx context.Context,
	dataType domain.BackfillDataType,
	network domain.Network,
	ttl time.Duration,
) error {
	return c.rdb.Expire(ctx, runLockKey(dataType, network), ttl).Err()
}

// ReleaseRunLock releases a held run lock.
func (c *Client) ReleaseRunLock(
	ctx context.Context,
	dataType domain.BackfillDataType,
	network domain.Network,
) error {
	return c.rdb.Del(ctx, runLockKey(dataType, network)).Err()
}
