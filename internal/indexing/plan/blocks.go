package plan

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// HeadSource resolves the current head block number of a network. Implemented
// by the RPC client, optionally fronted by the redis head cache.
type HeadSource interface {
	HeadBlock(ctx context.Context, network domain.Network) (uint64, error)
}

// ResolveBlockRange turns CLI block inputs (integers or identifiers like
// "latest") into a concrete [from, to) request. Numeric end inputs are clamped
// to the chain head so a request cannot extend past known blocks.
func ResolveBlockRange(
	ctx context.Context,
	fromInput, toInput string,
	network domain.Network,
	heads HeadSource,
) (fromBlock, toBlock uint64, err error) {
	fromBlock, _, err = resolveIdentifier(ctx, fromInput, network, heads)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid from block: %w", err)
	}

	toBlock, numeric, err := resolveIdentifier(ctx, toInput, network, heads)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid to block: %w", err)
	}

	if numeric {
		head, err := heads.HeadBlock(ctx, network)
		if err != nil {
			return 0, 0, fmt.Errorf("fetch %s head block: %w", network, err)
		}
		if toBlock > head {
			toBlock = head
		}
	}

	if toBlock <= fromBlock {
		return 0, 0, fmt.Errorf("invalid block range: from_block %d must be less than to_block %d", fromBlock, toBlock)
	}
	if toBlock == 0 {
		return 0, 0, fmt.Errorf("invalid block range: to_block must be greater than 0")
	}
	return fromBlock, toBlock, nil
}

func resolveIdentifier(
	ctx context.Context,
	input string,
	network domain.Network,
	heads HeadSource,
) (block uint64, numeric bool, err error) {
	if n, parseErr := strconv.ParseUint(input, 10, 64); parseErr == nil {
		return n, true, nil
	}

	switch input {
	case "latest":
		head, err := heads.HeadBlock(ctx, network)
		return head, false, err
	case "pending":
		head, err := heads.HeadBlock(ctx, network)
		return head + 1, false, err
	case "earliest":
		return 0, false, nil
	case "safe", "finalized":
		return 0, false, fmt.Errorf(
			"generalized %s block not implemented, compute it manually and use integer block numbers", input)
	default:
		return 0, false, fmt.Errorf("invalid block identifier: %q", input)
	}
}
