package domain

import "fmt"

// Network enumerates the chains the indexer can backfill.
type Network string

const (
	NetworkEthereum  Network = "ethereum"
	NetworkZkSyncEra Network = "zk_sync_era"
	NetworkStarknet  Network = "starknet"
)

// ParseNetwork validates a CLI string into a Network.
func ParseNetwork(s string) (Network, error) {
	switch n := Network(s); n {
	case NetworkEthereum, NetworkZkSyncEra, NetworkStarknet:
		return n, nil
	default:
		return "", fmt.Errorf("unsupported network: %q", s)
	}
}

// Pretty returns the human-readable network name.
func (n Network) Pretty() string {
	switch n {
	case NetworkStarknet:
		return "StarkNet"
	case NetworkZkSyncEra:
		return "zkSync Era"
	case NetworkEthereum:
		return "Ethereum"
	default:
		return string(n)
	}
}

// EVMCompatible reports whether the network speaks the eth_* JSON-RPC namespace.
func (n Network) EVMCompatible() bool {
	return n == NetworkEthereum || n == NetworkZkSyncEra
}
