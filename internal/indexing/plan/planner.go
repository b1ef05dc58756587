package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// ConflictSource supplies the existing ledger records for a partition.
// Implemented by the range repository.
type ConflictSource interface {
	GetByType(ctx context.Context, dataType domain.BackfillDataType, network domain.Network) ([]*domain.BackfilledRange, error)
}

// Request is one backfill request as it arrives from the CLI.
type Request struct {
	DataType domain.BackfillDataType
	Network  domain.Network
	Source   domain.DataSource

	// FromBlock and ToBlock accept integers or block identifiers ("latest",
	// "pending", "earliest").
	FromBlock string
	ToBlock   string

	// Kwargs carries raw request parameters, split into filter params and
	// metadata by the planner.
	Kwargs map[string]any

	// DecodedABIs names the registered ABIs to decode fetched data with.
	DecodedABIs []string
	Decoder     Decoder
}

// BackfillPlan ties a reconciled range plan to the request's filters,
// metadata, and decoding configuration. It is what the CLI prints for
// confirmation and what the executor runs.
type BackfillPlan struct {
	DataType    domain.BackfillDataType
	Network     domain.Network
	Source      domain.DataSource
	Range       *RangePlan
	Filters     map[string]any
	Metadata    map[string]any
	DecodedABIs []string
}

// NewBackfillPlan resolves block inputs, validates filters, queries the
// conflicting ledger records, and computes the range plan. A plan in mode
// empty is a valid result meaning the requested range is already covered.
func NewBackfillPlan(
	ctx context.Context,
	req Request,
	conflicts ConflictSource,
	heads HeadSource,
	log *slog.Logger,
) (*BackfillPlan, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("data_type", req.DataType, "network", req.Network)

	fromBlock, toBlock, err := ResolveBlockRange(ctx, req.FromBlock, req.ToBlock, req.Network, heads)
	if err != nil {
		return nil, err
	}

	filters, metadata := SplitParams(req.DataType, req.Kwargs)

	if req.DataType == domain.DataTypeEvents {
		if err := injectEventTopics(req.Decoder, filters, metadata); err != nil {
			return nil, err
		}
	}

	if err := VerifyFilters(req.DataType, filters); err != nil {
		return nil, err
	}

	stored, err := conflicts.GetByType(ctx, req.DataType, req.Network)
	if err != nil {
		return nil, fmt.Errorf("fetch conflicting backfills: %w", err)
	}
	overlapping, err := FilterConflicts(req.DataType, stored, filters)
	if err != nil {
		return nil, err
	}

	newRange := func(start, end uint64) *domain.BackfilledRange {
		return &domain.BackfilledRange{
			ID:          uuid.NewString(),
			DataType:    req.DataType,
			Network:     req.Network,
			StartBlock:  start,
			EndBlock:    end,
			FilterData:  filters,
			Metadata:    metadata,
			DecodedABIs: req.DecodedABIs,
		}
	}

	rangePlan, err := ComputeRangePlan(fromBlock, toBlock, overlapping, newRange)
	if err != nil {
		return nil, err
	}

	log.Info("computed backfill plan",
		"from_block", fromBlock,
		"to_block", toBlock,
		"mode", rangePlan.Mode,
		"ranges", len(rangePlan.Ranges),
		"conflicts", len(rangePlan.Conflicts()),
	)

	return &BackfillPlan{
		DataType:    req.DataType,
		Network:     req.Network,
		Source:      req.Source,
		Range:       rangePlan,
		Filters:     filters,
		Metadata:    metadata,
		DecodedABIs: req.DecodedABIs,
	}, nil
}

// injectEventTopics requires exactly one loaded ABI for an event backfill,
// records its name as a filter, and caches the derived log topics in metadata.
func injectEventTopics(decoder Decoder, filters, metadata map[string]any) error {
	if decoder == nil {
		return errors.New("event backfill requires an ABI decoder")
	}
	loaded := decoder.LoadedABIs()
	if len(loaded) != 1 {
		return fmt.Errorf("expected 1 ABI for event backfill, but found %d, specify an ABI with --contract-abi", len(loaded))
	}
	abiName := loaded[0]
	filters["abi_name"] = abiName

	var eventNames []string
	if names, ok := filters["event_names"].([]string); ok {
		eventNames = names
	}

	topics, err := EventTopics(decoder, abiName, eventNames)
	if err != nil {
		return err
	}
	metadata["topics"] = topics
	return nil
}

// Empty reports whether there is nothing to fetch.
func (p *BackfillPlan) Empty() bool { return p.Range.Empty() }

// TotalBlocks returns the number of blocks the plan will fetch.
func (p *BackfillPlan) TotalBlocks() uint64 { return p.Range.TotalBlocks() }

// Label renders a short human-readable name for progress reporting.
func (p *BackfillPlan) Label() string {
	if p.DataType == domain.DataTypeEvents {
		if abi, ok := p.Filters["abi_name"].(string); ok {
			return fmt.Sprintf("Backfill %s Events", abi)
		}
	}
	return fmt.Sprintf("Backfill %s %s", p.Network.Pretty(), p.DataType.Pretty())
}

// FilterParam fetches a required filter value by key.
func (p *BackfillPlan) FilterParam(key string) (string, error) {
	value, ok := p.Filters[key]
	if !ok {
		return "", fmt.Errorf("filter key %q expected for %s backfill but not set", key, p.DataType)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("filter key %q is not a string value", key)
	}
	return s, nil
}

// MetadataValue fetches a metadata value by key.
func (p *BackfillPlan) MetadataValue(key string) (any, error) {
	value, ok := p.Metadata[key]
	if !ok {
		return nil, fmt.Errorf("metadata key %q expected for %s backfill but not set", key, p.DataType)
	}
	return value, nil
}

// ProcessFailed reports that the backfill stopped at finalBlock: every range
// fully below it is finalized, the range containing it is failed. Used when a
// caller only knows the final block reached, not which chunk broke.
func (p *BackfillPlan) ProcessFailed(finalBlock uint64) error {
	for i, r := range p.Range.Ranges {
		if finalBlock < r.Start {
			return nil
		}
		if finalBlock < r.End {
			return p.Range.MarkFailed(i, finalBlock)
		}
		if err := p.Range.MarkFinalized(i); err != nil {
			return err
		}
	}
	return nil
}

// Describe writes the plan confirmation printout.
func (p *BackfillPlan) Describe(w io.Writer) {
	fmt.Fprintf(w, "------ %s ------\n", p.Label())

	if len(p.Range.Ranges) == 0 {
		fmt.Fprintln(w, "No blocks to backfill")
		return
	}

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Start Block\tEnd Block\tTotal Blocks")
	for _, r := range p.Range.Ranges {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", r.Start, r.End, r.Blocks())
	}
	tw.Flush()

	if len(p.Filters) > 0 {
		fmt.Fprintln(w, "Filters:")
		for key, value := range p.Filters {
			fmt.Fprintf(w, "  %s = %v\n", key, value)
		}
	}
	if len(p.Metadata) > 0 {
		fmt.Fprintln(w, "Metadata:")
		for key, value := range p.Metadata {
			fmt.Fprintf(w, "  %s = %v\n", key, value)
		}
	}
	if len(p.DecodedABIs) > 0 {
		fmt.Fprintf(w, "Decoding with ABIs: %v\n", p.DecodedABIs)
	}
	fmt.Fprintf(w, "Total: %d blocks across %d range(s), mode %s\n",
		p.TotalBlocks(), len(p.Range.Ranges), p.Range.Mode)
}
