package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/infra/storage"
)

// MemoryStorage backs the repositories for dry runs and tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	ranges    map[string]*domain.BackfilledRange
	blocks    []*domain.Block
	txns      []*domain.Transaction
	events    []*domain.EventLog
	transfers []*domain.Transfer
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		ranges: make(map[string]*domain.BackfilledRange),
	}
}

// -----------------------------------------------------------------------------
// Range repository
// -----------------------------------------------------------------------------

type RangeRepo struct {
	store *MemoryStorage
}

func NewRangeRepo(store *MemoryStorage) *RangeRepo {
	return &RangeRepo{store: store}
}

// Seed inserts records directly, bypassing plan application.
func (r *RangeRepo) Seed(ranges ...*domain.BackfilledRange) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, br := range ranges {
		r.store.ranges[br.ID] = br
	}
}

func (r *RangeRepo) GetByType(
	ctx context.Context,
	dataType domain.BackfillDataType,
	network domain.Network,
) ([]*domain.BackfilledRange, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.BackfilledRange
	for _, br := range r.store.ranges {
		if br.DataType == dataType && br.Network == network {
			out = append(out, br)
		}
	}
	sortRanges(out)
	return out, nil
}

func (r *RangeRepo) GetByID(ctx context.Context, id string) (*domain.BackfilledRange, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	br, ok := r.store.ranges[id]
	if !ok {
		return nil, storage.ErrRangeNotFound
	}
	return br, nil
}

func (r *RangeRepo) List(ctx context.Context, filter storage.RangeFilter) ([]*domain.BackfilledRange, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.BackfilledRange
	for _, br := range r.store.ranges {
		if filter.DataType != "" && br.DataType != filter.DataType {
			continue
		}
		if filter.Network != "" && br.Network != filter.Network {
			continue
		}
		out = append(out, br)
	}
	sortRanges(out)
	return out, nil
}

func (r *RangeRepo) ApplyPlan(
	ctx context.Context,
	add *domain.BackfilledRange,
	removes []*domain.BackfilledRange,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, remove := range removes {
		delete(r.store.ranges, remove.ID)
	}
	if add != nil {
		r.store.ranges[add.ID] = add
	}
	return nil
}

func (r *RangeRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.ranges[id]; !ok {
		return storage.ErrRangeNotFound
	}
	delete(r.store.ranges, id)
	return nil
}

func sortRanges(ranges []*domain.BackfilledRange) {
	sort.Slice(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if a.Network != b.Network {
			return a.Network < b.Network
		}
		if a.DataType != b.DataType {
			return a.DataType < b.DataType
		}
		return a.StartBlock < b.StartBlock
	})
}

// -----------------------------------------------------------------------------
// Data writer
// -----------------------------------------------------------------------------

type DataRepo struct {
	store *MemoryStorage
}

func NewDataRepo(store *MemoryStorage) *DataRepo {
	return &DataRepo{store: store}
}

func (r *DataRepo) WriteBlocks(ctx context.Context, blocks []*domain.Block) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.blocks = append(r.store.blocks, blocks...)
	return nil
}

func (r *DataRepo) WriteTransactions(ctx context.Context, txns []*domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.txns = append(r.store.txns, txns...)
	return nil
}

func (r *DataRepo) WriteEvents(ctx context.Context, events []*domain.EventLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.events = append(r.store.events, events...)
	return nil
}

func (r *DataRepo) WriteTransfers(ctx context.Context, transfers []*domain.Transfer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.transfers = append(r.store.transfers, transfers...)
	return nil
}

// Counts reports how many rows of each kind have been written.
func (s *MemoryStorage) Counts() (blocks, txns, events, transfers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks), len(s.txns), len(s.events), len(s.transfers)
}
