package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/indexing/plan"
	"github.com/chainfill/chainfill/internal/infra/rpc"
	"github.com/chainfill/chainfill/internal/infra/storage"
)

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)").
var erc20TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()

// ChainFetcher implements Fetcher over the JSON-RPC pool, writing fetched
// data through the storage writer.
type ChainFetcher struct {
	pool   *rpc.Pool
	writer storage.DataWriter
}

// NewChainFetcher creates a fetcher backed by the RPC pool.
func NewChainFetcher(pool *rpc.Pool, writer storage.DataWriter) *ChainFetcher {
	return &ChainFetcher{pool: pool, writer: writer}
}

// FetchRange fetches [fromBlock, toBlock) for the plan's data type.
func (f *ChainFetcher) FetchRange(ctx context.Context, p *plan.BackfillPlan, fromBlock, toBlock uint64) error {
	client, err := f.pool.Client(p.Network)
	if err != nil {
		return err
	}

	switch p.DataType {
	case domain.DataTypeBlocks:
		return f.fetchBlocks(ctx, client, fromBlock, toBlock, false, "")
	case domain.DataTypeFullBlocks:
		return f.fetchFullBlocks(ctx, client, fromBlock, toBlock)
	case domain.DataTypeTransactions:
		forAddress, _ := p.FilterParam("for_address")
		return f.fetchBlocks(ctx, client, fromBlock, toBlock, true, forAddress)
	case domain.DataTypeEvents:
		return f.fetchEvents(ctx, client, p, fromBlock, toBlock)
	case domain.DataTypeTransfers:
		return f.fetchTransfers(ctx, client, p, fromBlock, toBlock)
	default:
		return fmt.Errorf("data type %s cannot be fetched over json_rpc", p.DataType)
	}
}

func (f *ChainFetcher) fetchBlocks(
	ctx context.Context,
	client *rpc.Client,
	fromBlock, toBlock uint64,
	withTxns bool,
	forAddress string,
) error {
	blocks := make([]*domain.Block, 0, toBlock-fromBlock)
	var txns []*domain.Transaction

	for number := fromBlock; number < toBlock; number++ {
		block, blockTxns, err := client.BlockByNumber(ctx, number, withTxns)
		if err != nil {
			return err
		}
		blocks = append(blocks, block)

		for _, tx := range blockTxns {
			if forAddress != "" && !txTouches(tx, forAddress) {
				continue
			}
			txns = append(txns, tx)
		}
	}

	if err := f.writer.WriteBlocks(ctx, blocks); err != nil {
		return err
	}
	if withTxns {
		return f.writer.WriteTransactions(ctx, txns)
	}
	return nil
}

func (f *ChainFetcher) fetchFullBlocks(ctx context.Context, client *rpc.Client, fromBlock, toBlock uint64) error {
	if err := f.fetchBlocks(ctx, client, fromBlock, toBlock, true, ""); err != nil {
		return err
	}
	if !client.Network().EVMCompatible() {
		return nil
	}
	logs, err := client.Logs(ctx, fromBlock, toBlock, rpc.LogFilter{})
	if err != nil {
		return err
	}
	return f.writer.WriteEvents(ctx, logs)
}

func (f *ChainFetcher) fetchEvents(
	ctx context.Context,
	client *rpc.Client,
	p *plan.BackfillPlan,
	fromBlock, toBlock uint64,
) error {
	contractAddress, err := p.FilterParam("contract_address")
	if err != nil {
		return err
	}
	abiName, err := p.FilterParam("abi_name")
	if err != nil {
		return err
	}

	var topics []string
	if raw, err := p.MetadataValue("topics"); err == nil {
		if selectors, ok := raw.([]string); ok {
			topics = selectors
		}
	}

	logs, err := client.Logs(ctx, fromBlock, toBlock, rpc.LogFilter{
		Address: contractAddress,
		Topics:  topics,
	})
	if err != nil {
		return err
	}
	for _, log := range logs {
		log.AbiName = abiName
	}
	return f.writer.WriteEvents(ctx, logs)
}

func (f *ChainFetcher) fetchTransfers(
	ctx context.Context,
	client *rpc.Client,
	p *plan.BackfillPlan,
	fromBlock, toBlock uint64,
) error {
	tokenAddress, err := p.FilterParam("token_address")
	if err != nil {
		return err
	}
	fromFilter, _ := p.FilterParam("from_address")
	toFilter, _ := p.FilterParam("to_address")

	logs, err := client.Logs(ctx, fromBlock, toBlock, rpc.LogFilter{
		Address: tokenAddress,
		Topics:  []string{erc20TransferTopic},
	})
	if err != nil {
		return err
	}

	transfers := make([]*domain.Transfer, 0, len(logs))
	for _, log := range logs {
		transfer, ok := decodeTransfer(log, tokenAddress)
		if !ok {
			continue
		}
		if fromFilter != "" && !strings.EqualFold(transfer.From, fromFilter) {
			continue
		}
		if toFilter != "" && !strings.EqualFold(transfer.To, toFilter) {
			continue
		}
		transfers = append(transfers, transfer)
	}
	return f.writer.WriteTransfers(ctx, transfers)
}

// decodeTransfer unpacks an ERC-20 Transfer log. Logs with non-indexed
// from/to (ERC-20 variants with fewer topics) are skipped.
func decodeTransfer(log *domain.EventLog, tokenAddress string) (*domain.Transfer, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != erc20TransferTopic {
		return nil, false
	}
	amount := new(big.Int).SetBytes(log.Data)
	return &domain.Transfer{
		Network:      log.Network,
		BlockNumber:  log.BlockNumber,
		TxHash:       log.TxHash,
		LogIndex:     log.LogIndex,
		TokenAddress: tokenAddress,
		From:         common.HexToAddress(log.Topics[1]).Hex(),
		To:           common.HexToAddress(log.Topics[2]).Hex(),
		Amount:       amount.String(),
	}, true
}

func txTouches(tx *domain.Transaction, address string) bool {
	return strings.EqualFold(tx.From, address) || strings.EqualFold(tx.To, address)
}
