package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/chainfill/chainfill/internal/core/domain"
)

func jsonStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return data, nil
}

// DataRepo implements storage.DataWriter using PostgreSQL. Every write is
// insert-or-ignore keyed on the natural identity of the row, so re-fetching
// an overlap is harmless.
type DataRepo struct {
	db *DB
}

// NewDataRepo creates a new PostgreSQL data writer.
func NewDataRepo(db *DB) *DataRepo {
	return &DataRepo{db: db}
}

func (r *DataRepo) writeBatch(ctx context.Context, query string, exec func(stmt *sqlx.Stmt) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if err := exec(stmt); err != nil {
		return err
	}
	return tx.Commit()
}

// WriteBlocks saves block headers.
func (r *DataRepo) WriteBlocks(ctx context.Context, blocks []*domain.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	query := `
		INSERT INTO blocks (network, block_number, block_hash, parent_hash, block_timestamp, gas_used, gas_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (network, block_number) DO NOTHING
	`
	return r.writeBatch(ctx, query, func(stmt *sqlx.Stmt) error {
		for _, b := range blocks {
			if _, err := stmt.ExecContext(ctx,
				string(b.Network), b.Number, b.Hash, b.ParentHash,
				b.Timestamp, b.GasUsed, b.GasLimit,
			); err != nil {
				return fmt.Errorf("failed to save block %d: %w", b.Number, err)
			}
		}
		return nil
	})
}

// WriteTransactions saves transactions.
func (r *DataRepo) WriteTransactions(ctx context.Context, txns []*domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	query := `
		INSERT INTO transactions (network, tx_hash, block_number, tx_index, from_address, to_address,
			value, gas_used, gas_price, input_data, block_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (network, tx_hash) DO NOTHING
	`
	return r.writeBatch(ctx, query, func(stmt *sqlx.Stmt) error {
		for _, t := range txns {
			if _, err := stmt.ExecContext(ctx,
				string(t.Network), t.Hash, t.BlockNumber, t.TxIndex, t.From, t.To,
				t.Value, t.GasUsed, t.GasPrice, t.Input, t.Timestamp,
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", t.Hash, err)
			}
		}
		return nil
	})
}

// WriteEvents saves contract event logs.
func (r *DataRepo) WriteEvents(ctx context.Context, events []*domain.EventLog) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO event_logs (network, block_number, tx_hash, log_index, contract_address,
			topics, data, abi_name, event_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (network, tx_hash, log_index) DO NOTHING
	`
	return r.writeBatch(ctx, query, func(stmt *sqlx.Stmt) error {
		for _, e := range events {
			topics, err := jsonStrings(e.Topics)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				string(e.Network), e.BlockNumber, e.TxHash, e.LogIndex, e.ContractAddress,
				topics, e.Data, e.AbiName, e.EventName,
			); err != nil {
				return fmt.Errorf("failed to save event %s/%d: %w", e.TxHash, e.LogIndex, err)
			}
		}
		return nil
	})
}

// WriteTransfers saves decoded token transfers.
func (r *DataRepo) WriteTransfers(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	query := `
		INSERT INTO transfers (network, block_number, tx_hash, log_index, token_address,
			from_address, to_address, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (network, tx_hash, log_index) DO NOTHING
	`
	return r.writeBatch(ctx, query, func(stmt *sqlx.Stmt) error {
		for _, t := range transfers {
			if _, err := stmt.ExecContext(ctx,
				string(t.Network), t.BlockNumber, t.TxHash, t.LogIndex, t.TokenAddress,
				t.From, t.To, t.Amount,
			); err != nil {
				return fmt.Errorf("failed to save transfer %s/%d: %w", t.TxHash, t.LogIndex, err)
			}
		}
		return nil
	})
}
