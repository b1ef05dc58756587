package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/infra/storage"
)

// RangeRepo implements storage.RangeRepository using PostgreSQL.
type RangeRepo struct {
	db *DB
}

// NewRangeRepo creates a new PostgreSQL backfilled-range repository.
func NewRangeRepo(db *DB) *RangeRepo {
	return &RangeRepo{db: db}
}

type rangeRow struct {
	ID          string `db:"id"`
	DataType    string `db:"data_type"`
	Network     string `db:"network"`
	StartBlock  int64  `db:"start_block"`
	EndBlock    int64  `db:"end_block"`
	FilterData  []byte `db:"filter_data"`
	Metadata    []byte `db:"metadata"`
	DecodedABIs []byte `db:"decoded_abis"`
	UpdatedAt   int64  `db:"updated_at"`
}

const rangeColumns = `id, data_type, network, start_block, end_block, filter_data, metadata, decoded_abis, updated_at`

func (r rangeRow) toDomain() (*domain.BackfilledRange, error) {
	br := &domain.BackfilledRange{
		ID:         r.ID,
		DataType:   domain.BackfillDataType(r.DataType),
		Network:    domain.Network(r.Network),
		StartBlock: uint64(r.StartBlock),
		EndBlock:   uint64(r.EndBlock),
	}
	if len(r.FilterData) > 0 {
		if err := json.Unmarshal(r.FilterData, &br.FilterData); err != nil {
			return nil, fmt.Errorf("decode filter_data for range %s: %w", r.ID, err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &br.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for range %s: %w", r.ID, err)
		}
	}
	if len(r.DecodedABIs) > 0 {
		if err := json.Unmarshal(r.DecodedABIs, &br.DecodedABIs); err != nil {
			return nil, fmt.Errorf("decode decoded_abis for range %s: %w", r.ID, err)
		}
	}
	return br, nil
}

func toRow(br *domain.BackfilledRange) (rangeRow, error) {
	filterData, err := json.Marshal(orEmptyMap(br.FilterData))
	if err != nil {
		return rangeRow{}, fmt.Errorf("encode filter_data: %w", err)
	}
	metadata, err := json.Marshal(orEmptyMap(br.Metadata))
	if err != nil {
		return rangeRow{}, fmt.Errorf("encode metadata: %w", err)
	}
	abis := br.DecodedABIs
	if abis == nil {
		abis = []string{}
	}
	decodedABIs, err := json.Marshal(abis)
	if err != nil {
		return rangeRow{}, fmt.Errorf("encode decoded_abis: %w", err)
	}

	return rangeRow{
		ID:          br.ID,
		DataType:    string(br.DataType),
		Network:     string(br.Network),
		StartBlock:  int64(br.StartBlock),
		EndBlock:    int64(br.EndBlock),
		FilterData:  filterData,
		Metadata:    metadata,
		DecodedABIs: decodedABIs,
		UpdatedAt:   time.Now().Unix(),
	}, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// GetByType retrieves every ledger record for one data type and network.
func (r *RangeRepo) GetByType(
	ctx context.Context,
	dataType domain.BackfillDataType,
	network domain.Network,
) ([]*domain.BackfilledRange, error) {
	query := `
		SELECT ` + rangeColumns + `
		FROM backfilled_ranges
		WHERE data_type = $1 AND network = $2
		ORDER BY start_block
	`

	var rows []rangeRow
	if err := r.db.SelectContext(ctx, &rows, query, string(dataType), string(network)); err != nil {
		return nil, fmt.Errorf("failed to query backfilled ranges: %w", err)
	}
	return rowsToDomain(rows)
}

// GetByID retrieves one ledger record.
func (r *RangeRepo) GetByID(ctx context.Context, id string) (*domain.BackfilledRange, error) {
	query := `SELECT ` + rangeColumns + ` FROM backfilled_ranges WHERE id = $1`

	var row rangeRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRangeNotFound
		}
		return nil, fmt.Errorf("failed to query backfilled range: %w", err)
	}
	return row.toDomain()
}

// List retrieves records matching the filter.
func (r *RangeRepo) List(ctx context.Context, filter storage.RangeFilter) ([]*domain.BackfilledRange, error) {
	query := `
		SELECT ` + rangeColumns + `
		FROM backfilled_ranges
		WHERE ($1 = '' OR data_type = $1)
		  AND ($2 = '' OR network = $2)
		ORDER BY network, data_type, start_block
	`

	var rows []rangeRow
	if err := r.db.SelectContext(ctx, &rows, query, string(filter.DataType), string(filter.Network)); err != nil {
		return nil, fmt.Errorf("failed to list backfilled ranges: %w", err)
	}
	return rowsToDomain(rows)
}

// ApplyPlan atomically deletes the absorbed records and upserts the merged
// record.
func (r *RangeRepo) ApplyPlan(
	ctx context.Context,
	add *domain.BackfilledRange,
	removes []*domain.BackfilledRange,
) error {
	if add == nil && len(removes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, remove := range removes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backfilled_ranges WHERE id = $1`, remove.ID); err != nil {
			return fmt.Errorf("failed to delete absorbed range %s: %w", remove.ID, err)
		}
	}

	if add != nil {
		row, err := toRow(add)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO backfilled_ranges (` + rangeColumns + `)
			VALUES (:id, :data_type, :network, :start_block, :end_block, :filter_data, :metadata, :decoded_abis, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				start_block = EXCLUDED.start_block,
				end_block = EXCLUDED.end_block,
				filter_data = EXCLUDED.filter_data,
				metadata = EXCLUDED.metadata,
				decoded_abis = EXCLUDED.decoded_abis,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to upsert range %s: %w", add.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	return nil
}

// Delete removes one ledger record.
func (r *RangeRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM backfilled_ranges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete range: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrRangeNotFound
	}
	return nil
}

func rowsToDomain(rows []rangeRow) ([]*domain.BackfilledRange, error) {
	ranges := make([]*domain.BackfilledRange, 0, len(rows))
	for _, row := range rows {
		br, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, br)
	}
	return ranges, nil
}
