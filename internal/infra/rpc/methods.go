package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/indexing/metrics"
)

// HeadBlock returns the current head block number of the network.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	if c.network.EVMCompatible() {
		raw, err := c.Call(ctx, "eth_blockNumber", nil)
		if err != nil {
			return 0, err
		}
		head, err := parseHexUint(raw)
		if err != nil {
			return 0, err
		}
		metrics.ChainHeadBlock.WithLabelValues(string(c.network)).Set(float64(head))
		return head, nil
	}

	raw, err := c.Call(ctx, "starknet_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	var head uint64
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("parse starknet block number: %w", err)
	}
	metrics.ChainHeadBlock.WithLabelValues(string(c.network)).Set(float64(head))
	return head, nil
}

// BlockByNumber fetches one block. With fullTxs set, the transactions are
// returned alongside the header; otherwise Transactions is empty.
func (c *Client) BlockByNumber(ctx context.Context, number uint64, fullTxs bool) (*domain.Block, []*domain.Transaction, error) {
	if c.network.EVMCompatible() {
		return c.evmBlockByNumber(ctx, number, fullTxs)
	}
	return c.starknetBlockByNumber(ctx, number)
}

func (c *Client) evmBlockByNumber(ctx context.Context, number uint64, fullTxs bool) (*domain.Block, []*domain.Transaction, error) {
	raw, err := c.Call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(number), fullTxs})
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		Number       hexutil.Uint64 `json:"number"`
		Hash         string         `json:"hash"`
		ParentHash   string         `json:"parentHash"`
		Timestamp    hexutil.Uint64 `json:"timestamp"`
		GasUsed      hexutil.Uint64 `json:"gasUsed"`
		GasLimit     hexutil.Uint64 `json:"gasLimit"`
		Transactions []struct {
			Hash             string         `json:"hash"`
			TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
			From             string         `json:"from"`
			To               string         `json:"to"`
			Value            string         `json:"value"`
			Gas              hexutil.Uint64 `json:"gas"`
			GasPrice         string         `json:"gasPrice"`
			Input            hexutil.Bytes  `json:"input"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("parse block %d: %w", number, err)
	}
	if payload.Hash == "" {
		return nil, nil, fmt.Errorf("block %d not found on %s", number, c.network)
	}

	block := &domain.Block{
		Network:    c.network,
		Number:     uint64(payload.Number),
		Hash:       payload.Hash,
		ParentHash: payload.ParentHash,
		Timestamp:  uint64(payload.Timestamp),
		GasUsed:    uint64(payload.GasUsed),
		GasLimit:   uint64(payload.GasLimit),
	}

	txns := make([]*domain.Transaction, 0, len(payload.Transactions))
	for _, tx := range payload.Transactions {
		txns = append(txns, &domain.Transaction{
			Network:     c.network,
			Hash:        tx.Hash,
			BlockNumber: uint64(payload.Number),
			TxIndex:     int(tx.TransactionIndex),
			From:        tx.From,
			To:          tx.To,
			Value:       tx.Value,
			GasUsed:     uint64(tx.Gas),
			GasPrice:    tx.GasPrice,
			Input:       tx.Input,
			Timestamp:   uint64(payload.Timestamp),
		})
	}
	return block, txns, nil
}

func (c *Client) starknetBlockByNumber(ctx context.Context, number uint64) (*domain.Block, []*domain.Transaction, error) {
	raw, err := c.Call(ctx, "starknet_getBlockWithTxs", []any{map[string]any{"block_number": number}})
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		BlockNumber  uint64 `json:"block_number"`
		BlockHash    string `json:"block_hash"`
		ParentHash   string `json:"parent_hash"`
		Timestamp    uint64 `json:"timestamp"`
		Transactions []struct {
			TransactionHash string `json:"transaction_hash"`
			SenderAddress   string `json:"sender_address"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("parse starknet block %d: %w", number, err)
	}
	if payload.BlockHash == "" {
		return nil, nil, fmt.Errorf("block %d not found on %s", number, c.network)
	}

	block := &domain.Block{
		Network:    c.network,
		Number:     payload.BlockNumber,
		Hash:       payload.BlockHash,
		ParentHash: payload.ParentHash,
		Timestamp:  payload.Timestamp,
	}

	txns := make([]*domain.Transaction, 0, len(payload.Transactions))
	for i, tx := range payload.Transactions {
		txns = append(txns, &domain.Transaction{
			Network:     c.network,
			Hash:        tx.TransactionHash,
			BlockNumber: payload.BlockNumber,
			TxIndex:     i,
			From:        tx.SenderAddress,
			Timestamp:   payload.Timestamp,
		})
	}
	return block, txns, nil
}

// LogFilter narrows an eth_getLogs query.
type LogFilter struct {
	Address string
	Topics  []string
}

// Logs fetches contract event logs for the half-open range [fromBlock, toBlock).
func (c *Client) Logs(ctx context.Context, fromBlock, toBlock uint64, filter LogFilter) ([]*domain.EventLog, error) {
	if !c.network.EVMCompatible() {
		return nil, fmt.Errorf("event logs not supported on %s", c.network)
	}

	query := map[string]any{
		"fromBlock": hexutil.EncodeUint64(fromBlock),
		"toBlock":   hexutil.EncodeUint64(toBlock - 1),
	}
	if filter.Address != "" {
		query["address"] = filter.Address
	}
	if len(filter.Topics) > 0 {
		// Any of the selectors in topic position zero.
		query["topics"] = []any{filter.Topics}
	}

	raw, err := c.Call(ctx, "eth_getLogs", []any{query})
	if err != nil {
		return nil, err
	}

	var payload []struct {
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
		TransactionHash string         `json:"transactionHash"`
		LogIndex        hexutil.Uint64 `json:"logIndex"`
		Address         string         `json:"address"`
		Topics          []string       `json:"topics"`
		Data            hexutil.Bytes  `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse logs: %w", err)
	}

	logs := make([]*domain.EventLog, 0, len(payload))
	for _, entry := range payload {
		logs = append(logs, &domain.EventLog{
			Network:         c.network,
			BlockNumber:     uint64(entry.BlockNumber),
			TxHash:          entry.TransactionHash,
			LogIndex:        int(entry.LogIndex),
			ContractAddress: entry.Address,
			Topics:          entry.Topics,
			Data:            entry.Data,
		})
	}
	return logs, nil
}

func parseHexUint(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("parse hex quantity: %w", err)
	}
	n, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return n, nil
}
