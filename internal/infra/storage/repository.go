package storage

import (
	"context"
	"errors"

	"github.com/chainfill/chainfill/internal/core/domain"
)

var (
	// ErrRangeNotFound is returned when a backfilled range doesn't exist
	ErrRangeNotFound = errors.New("backfilled range not found")
)

// RangeFilter narrows a ledger listing.
type RangeFilter struct {
	DataType domain.BackfillDataType
	Network  domain.Network
}

// RangeRepository handles the backfilled-range ledger. GetByType satisfies
// the planner's conflict source.
type RangeRepository interface {
	// GetByType retrieves every ledger record for one data type and network,
	// regardless of filters.
	GetByType(
		ctx context.Context,
		dataType domain.BackfillDataType,
		network domain.Network,
	) ([]*domain.BackfilledRange, error)

	// GetByID retrieves one record.
	GetByID(ctx context.Context, id string) (*domain.BackfilledRange, error)

	// List retrieves records matching the filter, sorted by network, data
	// type, start block.
	List(ctx context.Context, filter RangeFilter) ([]*domain.BackfilledRange, error)

	// ApplyPlan atomically deletes the absorbed records and upserts the
	// merged record. A nil add with removes still deletes; a nil add with no
	// removes is a no-op.
	ApplyPlan(
		ctx context.Context,
		add *domain.BackfilledRange,
		removes []*domain.BackfilledRange,
	) error

	// Delete removes one record.
	Delete(ctx context.Context, id string) error
}

// DataWriter persists fetched chain data. Writes are insert-or-ignore so a
// re-fetched overlap never duplicates rows.
type DataWriter interface {
	WriteBlocks(ctx context.Context, blocks []*domain.Block) error
	WriteTransactions(ctx context.Context, txns []*domain.Transaction) error
	WriteEvents(ctx context.Context, events []*domain.EventLog) error
	WriteTransfers(ctx context.Context, transfers []*domain.Transfer) error
}
