package plan

import (
	"strings"
	"testing"

	"github.com/chainfill/chainfill/internal/core/domain"
)

const (
	addrUSDT  = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	addrUSDC  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	addrUniV3 = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
)

func filteredRange(dt domain.BackfillDataType, start, end uint64, filters map[string]any) *domain.BackfilledRange {
	r := storedRange(start, end)
	r.DataType = dt
	r.FilterData = filters
	return r
}

func TestVerifyFiltersErrors(t *testing.T) {
	tests := []struct {
		name     string
		dataType domain.BackfillDataType
		filters  map[string]any
	}{
		{"invalid address", domain.DataTypeTransactions, map[string]any{"for_address": "0x123456"}},
		{"blocks take no filters", domain.DataTypeBlocks, map[string]any{"from_address": addrUSDT}},
		{"events reject from_address", domain.DataTypeEvents, map[string]any{"from_address": addrUSDT}},
		{"events require contract_address", domain.DataTypeEvents, map[string]any{"abi_name": "ERC20"}},
		{"transactions reject contract_address", domain.DataTypeTransactions, map[string]any{"contract_address": addrUSDC}},
		{"traces reject to_address", domain.DataTypeTraces, map[string]any{"to_address": addrUniV3}},
		{"transfers reject contract_address", domain.DataTypeTransfers, map[string]any{"token_address": addrUniV3, "contract_address": addrUSDC}},
		{"transfers require token_address", domain.DataTypeTransfers, map[string]any{"from_address": addrUniV3}},
		{"transfers from and to exclusive", domain.DataTypeTransfers, map[string]any{
			"token_address": addrUSDT, "from_address": addrUSDC, "to_address": addrUSDC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyFilters(tt.dataType, tt.filters); err == nil {
				t.Errorf("VerifyFilters(%s, %v) = nil, want error", tt.dataType, tt.filters)
			}
		})
	}
}

func TestVerifyFiltersValid(t *testing.T) {
	tests := []struct {
		name     string
		dataType domain.BackfillDataType
		filters  map[string]any
	}{
		{"event filter", domain.DataTypeEvents, map[string]any{
			"contract_address": addrUSDC, "abi_name": "ERC20", "event_names": []string{"Transfer"}}},
		{"transaction filter", domain.DataTypeTransactions, map[string]any{"for_address": addrUSDT}},
		{"trace filter", domain.DataTypeTraces, map[string]any{"from_address": addrUSDT}},
		{"transfer from filter", domain.DataTypeTransfers, map[string]any{
			"token_address": addrUSDT, "from_address": addrUSDC}},
		{"transfer to filter", domain.DataTypeTransfers, map[string]any{
			"token_address": addrUSDT, "to_address": addrUniV3}},
		{"blocks without filters", domain.DataTypeBlocks, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyFilters(tt.dataType, tt.filters); err != nil {
				t.Errorf("VerifyFilters(%s, %v) = %v, want nil", tt.dataType, tt.filters, err)
			}
		})
	}
}

func TestVerifyFiltersChecksumsAddresses(t *testing.T) {
	filters := map[string]any{"for_address": strings.ToLower(addrUSDT)}
	if err := VerifyFilters(domain.DataTypeTransactions, filters); err != nil {
		t.Fatal(err)
	}
	if filters["for_address"] != addrUSDT {
		t.Errorf("address not checksummed: got %v, want %s", filters["for_address"], addrUSDT)
	}
}

func TestFilterConflictsTransactions(t *testing.T) {
	tx1 := filteredRange(domain.DataTypeTransactions, 10_000_000, 12_000_000, map[string]any{"for_address": addrUSDT})
	tx2 := filteredRange(domain.DataTypeTransactions, 13_000_000, 14_000_000, map[string]any{"for_address": addrUSDC})
	tx3 := filteredRange(domain.DataTypeTransactions, 8_000_000, 9_000_000, nil)

	t.Run("matching filter is returned", func(t *testing.T) {
		got, err := FilterConflicts(domain.DataTypeTransactions,
			[]*domain.BackfilledRange{tx1}, map[string]any{"for_address": addrUSDT})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != tx1 {
			t.Fatalf("got %v, want [tx1]", got)
		}
	})

	t.Run("unfiltered request only matches unfiltered records", func(t *testing.T) {
		got, err := FilterConflicts(domain.DataTypeTransactions,
			[]*domain.BackfilledRange{tx1, tx2, tx3}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != tx3 {
			t.Fatalf("got %v, want [tx3]", got)
		}
	})

	t.Run("unmatched filter yields no conflicts", func(t *testing.T) {
		got, err := FilterConflicts(domain.DataTypeTransactions,
			[]*domain.BackfilledRange{tx1, tx2}, map[string]any{"for_address": addrUniV3})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})

	t.Run("results sorted by start block", func(t *testing.T) {
		early := filteredRange(domain.DataTypeTransactions, 8_000_000, 9_000_000, map[string]any{"for_address": addrUSDT})
		got, err := FilterConflicts(domain.DataTypeTransactions,
			[]*domain.BackfilledRange{tx1, early}, map[string]any{"for_address": addrUSDT})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0] != early || got[1] != tx1 {
			t.Fatalf("got %v, want [early, tx1]", got)
		}
	})
}

func TestFilterConflictsUnfilterableTypes(t *testing.T) {
	block1 := filteredRange(domain.DataTypeBlocks, 8_000_000, 9_000_000, nil)
	block2 := filteredRange(domain.DataTypeBlocks, 9_000_000, 10_000_000, nil)

	got, err := FilterConflicts(domain.DataTypeBlocks, []*domain.BackfilledRange{block1, block2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("block backfills always conflict, got %v", got)
	}

	if _, err := FilterConflicts(domain.DataTypeBlocks,
		[]*domain.BackfilledRange{block1}, map[string]any{"for_address": addrUSDT}); err == nil {
		t.Error("filters on an unfilterable type should error")
	}
}

func TestFilterConflictsTransfers(t *testing.T) {
	transfers := []*domain.BackfilledRange{
		filteredRange(domain.DataTypeTransfers, 10_000_000, 12_000_000, map[string]any{"token_address": addrUSDT, "from_address": addrUSDC}),
		filteredRange(domain.DataTypeTransfers, 10_000_000, 14_000_000, map[string]any{"token_address": addrUSDT, "from_address": addrUniV3}),
		filteredRange(domain.DataTypeTransfers, 12_000_000, 14_000_000, map[string]any{"token_address": addrUSDT, "to_address": addrUniV3}),
		filteredRange(domain.DataTypeTransfers, 6_000_000, 8_000_000, map[string]any{"token_address": addrUSDC, "from_address": addrUniV3}),
	}

	tests := []struct {
		name    string
		filters map[string]any
		want    []*domain.BackfilledRange
	}{
		{"from match", map[string]any{"token_address": addrUSDT, "from_address": addrUSDC}, transfers[:1]},
		{"to match", map[string]any{"token_address": addrUSDT, "to_address": addrUniV3}, transfers[2:3]},
		{"to no match", map[string]any{"token_address": addrUSDT, "to_address": addrUSDC}, nil},
		{"token no match", map[string]any{"token_address": addrUniV3, "from_address": addrUSDC}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterConflicts(domain.DataTypeTransfers, transfers, tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d conflicts, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("conflict[%d] mismatch", i)
				}
			}
		})
	}
}

func TestFilterValueEqualJSONRoundTrip(t *testing.T) {
	// JSONB reads return []any; they must still match []string request values.
	if !filterValueEqual([]any{"Transfer", "Approval"}, []string{"Transfer", "Approval"}) {
		t.Error("[]any vs []string should compare equal element-wise")
	}
	if filterValueEqual([]any{"Transfer"}, []string{"Approval"}) {
		t.Error("differing slices should not match")
	}
	if !filterValueEqual(float64(200), 200) {
		t.Error("numeric values should match across JSON decoding")
	}
}

func TestSplitParams(t *testing.T) {
	filters, metadata := SplitParams(domain.DataTypeEvents, map[string]any{
		"contract_address": addrUSDT,
		"abi_name":         "ERC20",
		"event_names":      []string{},
		"batch_size":       100,
		"source":           nil,
	})

	if len(filters) != 2 {
		t.Fatalf("filters = %v, want contract_address and abi_name", filters)
	}
	if _, ok := filters["event_names"]; ok {
		t.Error("empty slices should be dropped")
	}
	if len(metadata) != 1 || metadata["batch_size"] != 100 {
		t.Fatalf("metadata = %v, want batch_size only", metadata)
	}
}
