package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// Public fallback endpoints, used when no endpoint is configured.
var defaultEndpoints = map[domain.Network]string{
	domain.NetworkEthereum:  "https://eth.public-rpc.com",
	domain.NetworkZkSyncEra: "https://mainnet.era.zksync.io",
	domain.NetworkStarknet:  "https://free-rpc.nethermind.io/mainnet-juno",
}

// Environment variables overriding the configured endpoint per network.
var endpointEnvVars = map[domain.Network]string{
	domain.NetworkEthereum:  "CHAINFILL_ETHEREUM_RPC",
	domain.NetworkZkSyncEra: "CHAINFILL_ZKSYNC_RPC",
	domain.NetworkStarknet:  "CHAINFILL_STARKNET_RPC",
}

// Pool holds one lazily-created client per network. Safe for concurrent use.
type Pool struct {
	endpoints map[domain.Network]string
	timeout   time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	clients map[domain.Network]*Client
}

// NewPool creates a pool from configured endpoints. Resolution order per
// network: environment variable, configured endpoint, public default.
func NewPool(endpoints map[domain.Network]string, timeout time.Duration, log *slog.Logger) *Pool {
	return &Pool{
		endpoints: endpoints,
		timeout:   timeout,
		log:       log,
		clients:   make(map[domain.Network]*Client),
	}
}

// Endpoint resolves the endpoint the pool will use for a network.
func (p *Pool) Endpoint(network domain.Network) (string, error) {
	if env := os.Getenv(endpointEnvVars[network]); env != "" {
		return env, nil
	}
	if url, ok := p.endpoints[network]; ok && url != "" {
		return url, nil
	}
	if url, ok := defaultEndpoints[network]; ok {
		return url, nil
	}
	return "", fmt.Errorf("no rpc endpoint configured for network %s", network)
}

// Client returns the client for a network, creating it on first use.
func (p *Pool) Client(network domain.Network) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[network]; ok {
		return c, nil
	}
	endpoint, err := p.Endpoint(network)
	if err != nil {
		return nil, err
	}
	c := NewClient(network, endpoint, p.timeout, p.log)
	p.clients[network] = c
	return c, nil
}

// HeadBlock implements the planner's head source on top of the pool.
func (p *Pool) HeadBlock(ctx context.Context, network domain.Network) (uint64, error) {
	c, err := p.Client(network)
	if err != nil {
		return 0, err
	}
	return c.HeadBlock(ctx)
}

// Close closes every created client.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.Close()
	}
	return nil
}
