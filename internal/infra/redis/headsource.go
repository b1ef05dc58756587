package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// DefaultHeadTTL bounds how stale a cached chain head may be. Heads only move
// forward, so a slightly stale value just means a slightly conservative clamp.
const DefaultHeadTTL = 30 * time.Second

// HeadSource mirrors the planner's head source collaborator.
type HeadSource interface {
	HeadBlock(ctx context.Context, network domain.Network) (uint64, error)
}

// CachingHeadSource fronts an upstream head source with the Redis head cache.
type CachingHeadSource struct {
	client   *Client
	upstream HeadSource
	ttl      time.Duration
	log      *slog.Logger
}

// NewCachingHeadSource wraps upstream. A zero ttl uses DefaultHeadTTL.
func NewCachingHeadSource(client *Client, upstream HeadSource, ttl time.Duration, log *slog.Logger) *CachingHeadSource {
	if ttl <= 0 {
		ttl = DefaultHeadTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachingHeadSource{client: client, upstream: upstream, ttl: ttl, log: log}
}

// HeadBlock returns the cached head when fresh, otherwise asks upstream and
// caches the answer. Cache write failures are logged, not returned: the head
// itself is still good.
func (s *CachingHeadSource) HeadBlock(ctx context.Context, network domain.Network) (uint64, error) {
	head, found, err := s.client.CachedHead(ctx, network)
	if err != nil {
		s.log.Warn("head cache read failed", "network", network, "error", err)
	} else if found {
		return head, nil
	}

	head, err = s.upstream.HeadBlock(ctx, network)
	if err != nil {
		return 0, err
	}

	if err := s.client.SetCachedHead(ctx, network, head, s.ttl); err != nil {
		s.log.Warn("head cache write failed", "network", network, "error", err)
	}
	return head, nil
}
