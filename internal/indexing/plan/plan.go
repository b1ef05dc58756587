// Package plan computes backfill range reconciliation: given a requested block
// range and the ledger records that already cover parts of it, it decides which
// sub-ranges still need fetching, which records become redundant, and what
// single merged record should represent the new coverage.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// Mode is the shape of the reconciliation problem, determined by how many
// ledger records overlap the requested range.
type Mode int

const (
	// ModeNew covers a range with no overlapping records.
	ModeNew Mode = iota
	// ModeExtend grows a single overlapping record on one or both sides.
	ModeExtend
	// ModeJoin bridges the gaps between two or more overlapping records.
	ModeJoin
	// ModeEmpty means the request is already fully covered.
	ModeEmpty
)

func (m Mode) String() string {
	switch m {
	case ModeNew:
		return "new"
	case ModeExtend:
		return "extend"
	case ModeJoin:
		return "join"
	case ModeEmpty:
		return "empty"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// BlockRange is a half-open [Start, End) span of blocks that still needs fetching.
type BlockRange struct {
	Start uint64
	End   uint64
}

// Blocks returns the number of blocks in the range.
func (r BlockRange) Blocks() uint64 { return r.End - r.Start }

// Contract-violation errors. These indicate planner/executor desynchronization
// and must abort the backfill before a corrupted plan is persisted.
var (
	ErrRangeNotInPlan   = errors.New("range does not exist in the plan")
	ErrNonAdjacentRange = errors.New("cannot join backfill to non-adjacent range")
	ErrBlockOutOfRange  = errors.New("final block outside the failed range")
	ErrOutOfOrder       = errors.New("ranges must be processed in ascending order")
	ErrPlanTerminal     = errors.New("plan already terminated by a failed range")
)

// RangeFactory mints a fresh ledger record spanning [start, end). The planner
// calls it whenever new coverage cannot be folded into an existing record; the
// factory owns id generation and the request's filter/metadata payload.
type RangeFactory func(start, end uint64) *domain.BackfilledRange

// RangePlan is the reconciliation result for one backfill request. It is
// mutated by MarkFinalized/MarkFailed as the fetch progresses and consumed
// exactly once to produce the ledger delta.
type RangePlan struct {
	Ranges []BlockRange
	Mode   Mode

	conflicts []*domain.BackfilledRange
	removes   []*domain.BackfilledRange
	add       *domain.BackfilledRange

	newRange RangeFactory
	next     int
	failed   bool
}

// ComputeRangePlan builds the plan for [fromBlock, toBlock). Conflicting
// records are re-filtered to those actually intersecting the request and
// sorted ascending by start block; that ordering is also the processing order
// for MarkFinalized/MarkFailed, so it is applied here even when the caller
// pre-filtered.
func ComputeRangePlan(
	fromBlock, toBlock uint64,
	conflicting []*domain.BackfilledRange,
	newRange RangeFactory,
) (*RangePlan, error) {
	if fromBlock >= toBlock {
		return nil, fmt.Errorf("invalid block range: from_block %d must be less than to_block %d", fromBlock, toBlock)
	}
	if newRange == nil {
		return nil, errors.New("range factory is required")
	}

	conflicts := make([]*domain.BackfilledRange, 0, len(conflicting))
	for _, c := range conflicting {
		if c.Overlaps(fromBlock, toBlock) {
			conflicts = append(conflicts, c)
		}
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].StartBlock < conflicts[j].StartBlock
	})

	p := &RangePlan{conflicts: conflicts, newRange: newRange}
	switch len(conflicts) {
	case 0:
		p.Ranges = []BlockRange{{Start: fromBlock, End: toBlock}}
		p.Mode = ModeNew
	case 1:
		p.computeExtend(fromBlock, toBlock)
	default:
		p.computeJoin(fromBlock, toBlock)
	}
	return p, nil
}

func (p *RangePlan) computeExtend(fromBlock, toBlock uint64) {
	existing := p.conflicts[0]

	var ranges []BlockRange
	if fromBlock < existing.StartBlock {
		ranges = append(ranges, BlockRange{Start: fromBlock, End: existing.StartBlock})
	}
	if toBlock > existing.EndBlock {
		ranges = append(ranges, BlockRange{Start: existing.EndBlock, End: toBlock})
	}

	p.Ranges = ranges
	if len(ranges) == 0 {
		p.Mode = ModeEmpty
	} else {
		p.Mode = ModeExtend
	}
}

func (p *RangePlan) computeJoin(fromBlock, toBlock uint64) {
	var ranges []BlockRange

	// covered is the running right edge of known coverage. Walking on the max
	// end rather than each record's own end keeps records contained inside an
	// earlier one from re-opening blocks already covered.
	covered := fromBlock
	for _, conflict := range p.conflicts {
		if covered < conflict.StartBlock {
			ranges = append(ranges, BlockRange{Start: covered, End: conflict.StartBlock})
		}
		if conflict.EndBlock > covered {
			covered = conflict.EndBlock
		}
		if covered >= toBlock {
			// Request's right edge lands inside known coverage.
			break
		}
	}
	if covered < toBlock {
		// Request extends past every known record.
		ranges = append(ranges, BlockRange{Start: covered, End: toBlock})
	}

	p.Ranges = ranges
	p.Mode = ModeJoin
}

// MarkFinalized records that sub-range rangeIndex was fetched in full. Ranges
// must be finalized in strictly ascending index order.
func (p *RangePlan) MarkFinalized(rangeIndex int) error {
	if p.failed {
		return ErrPlanTerminal
	}
	if rangeIndex < 0 || rangeIndex >= len(p.Ranges) {
		return fmt.Errorf("%w: plan contains %d range(s), cannot finalize range #%d",
			ErrRangeNotInPlan, len(p.Ranges), rangeIndex+1)
	}
	if rangeIndex != p.next {
		return fmt.Errorf("%w: expected range #%d, got #%d", ErrOutOfOrder, p.next+1, rangeIndex+1)
	}
	p.next++

	finalized := p.Ranges[rangeIndex]

	switch p.Mode {
	case ModeNew:
		p.add = p.newRange(finalized.Start, finalized.End)

	case ModeExtend:
		if p.add == nil {
			p.add = p.popConflict()
		}
		return p.extendAdd(finalized)

	case ModeJoin:
		if p.add == nil {
			p.add = p.popConflict()
			if err := p.extendAdd(finalized); err != nil {
				return err
			}
		} else {
			if finalized.Start != p.add.EndBlock {
				return fmt.Errorf("%w: range (%d, %d) does not continue coverage ending at %d",
					ErrNonAdjacentRange, finalized.Start, finalized.End, p.add.EndBlock)
			}
			p.add.EndBlock = finalized.End
		}
		// Absorb every record now bridged by the merged coverage. Stored
		// records that overlap each other are merged permissively here rather
		// than rejected. A record further right is not an error, it is
		// handled by a later finalize call.
		for len(p.conflicts) > 0 && p.conflicts[0].StartBlock <= p.add.EndBlock {
			next := p.popConflict()
			if next.EndBlock > p.add.EndBlock {
				p.add.EndBlock = next.EndBlock
			}
			p.removes = append(p.removes, next)
		}
	}
	return nil
}

// MarkFailed records that sub-range rangeIndex was only fetched up to
// finalBlock (exclusive). The plan becomes terminal: remaining ranges must not
// be processed and the truncated result should be persisted as-is.
func (p *RangePlan) MarkFailed(rangeIndex int, finalBlock uint64) error {
	if p.failed {
		return ErrPlanTerminal
	}
	if rangeIndex < 0 || rangeIndex >= len(p.Ranges) {
		return fmt.Errorf("%w: plan contains %d range(s), cannot fail range #%d",
			ErrRangeNotInPlan, len(p.Ranges), rangeIndex+1)
	}
	if rangeIndex != p.next {
		return fmt.Errorf("%w: expected range #%d, got #%d", ErrOutOfOrder, p.next+1, rangeIndex+1)
	}

	failRange := p.Ranges[rangeIndex]
	if finalBlock < failRange.Start || finalBlock >= failRange.End {
		return fmt.Errorf("%w: failure at block %d outside expected range (%d, %d)",
			ErrBlockOutOfRange, finalBlock, failRange.Start, failRange.End)
	}

	p.failed = true

	if finalBlock == failRange.Start {
		// Nothing in this range was fetched. Progress from earlier ranges,
		// if any, still stands.
		return nil
	}

	if p.add != nil {
		p.add.EndBlock = finalBlock
		return nil
	}

	// First range of the plan failed partway with no prior coverage adopted.
	if p.Mode == ModeExtend {
		if conflict := p.conflicts[0]; failRange.Start == conflict.EndBlock {
			// Right-extension of the existing record: adopt and truncate it.
			p.add = p.popConflict()
			p.add.EndBlock = finalBlock
			return nil
		}
	}
	p.add = p.newRange(failRange.Start, finalBlock)
	return nil
}

// AddBackfill returns the single record to upsert when the plan is persisted,
// or nil when no new coverage was recorded.
func (p *RangePlan) AddBackfill() *domain.BackfilledRange { return p.add }

// RemoveBackfills returns the records subsumed by the merged coverage. They
// must be deleted in the same transaction that upserts AddBackfill.
func (p *RangePlan) RemoveBackfills() []*domain.BackfilledRange { return p.removes }

// Conflicts returns the overlapping records not yet consumed by finalization.
func (p *RangePlan) Conflicts() []*domain.BackfilledRange { return p.conflicts }

// Empty reports whether the request was already fully covered.
func (p *RangePlan) Empty() bool { return p.Mode == ModeEmpty }

// Failed reports whether a MarkFailed call terminated the plan.
func (p *RangePlan) Failed() bool { return p.failed }

// TotalBlocks returns the number of blocks the plan still needs to fetch.
func (p *RangePlan) TotalBlocks() uint64 {
	var total uint64
	for _, r := range p.Ranges {
		total += r.Blocks()
	}
	return total
}

func (p *RangePlan) popConflict() *domain.BackfilledRange {
	head := p.conflicts[0]
	p.conflicts = p.conflicts[1:]
	return head
}

func (p *RangePlan) extendAdd(finalized BlockRange) error {
	switch {
	case finalized.Start == p.add.EndBlock:
		p.add.EndBlock = finalized.End
	case finalized.End == p.add.StartBlock:
		p.add.StartBlock = finalized.Start
	default:
		return fmt.Errorf("%w: (%d, %d) does not touch (%d, %d)",
			ErrNonAdjacentRange, finalized.Start, finalized.End, p.add.StartBlock, p.add.EndBlock)
	}
	return nil
}
