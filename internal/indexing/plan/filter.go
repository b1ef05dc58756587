package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainfill/chainfill/internal/core/domain"
)

// filterRule describes the valid filter keys for one backfill data type.
type filterRule struct {
	options    []string
	required   []string
	exclusions [][2]string
}

// Data types absent from this table do not support filters at all.
var validFilters = map[domain.BackfillDataType]filterRule{
	domain.DataTypeTransactions: {
		options: []string{"for_address"},
	},
	domain.DataTypeTraces: {
		// to_address cannot be an option: there is no way to query all
		// internal calls into an address.
		options: []string{"from_address"},
	},
	domain.DataTypeEvents: {
		options:  []string{"contract_address", "event_names", "abi_name"},
		required: []string{"contract_address", "abi_name"},
	},
	domain.DataTypeTransfers: {
		options:    []string{"token_address", "from_address", "to_address"},
		required:   []string{"token_address"},
		exclusions: [][2]string{{"from_address", "to_address"}},
	},
	domain.DataTypeSpotPrices: {
		options:  []string{"market_address", "market_protocol"},
		required: []string{"market_address", "market_protocol"},
	},
}

// VerifyFilters validates filter params for a data type and normalizes every
// address value to its EIP-55 checksummed form in place.
func VerifyFilters(dataType domain.BackfillDataType, filters map[string]any) error {
	rule, ok := validFilters[dataType]
	if !ok {
		if len(filters) == 0 {
			return nil
		}
		return fmt.Errorf("%s backfill does not support filters", dataType)
	}

	name := dataType.Pretty()

	for key, value := range filters {
		if !contains(rule.options, key) {
			return fmt.Errorf("%s cannot be filtered by %s, valid filters for %s are %v",
				name, key, name, rule.options)
		}

		s, isString := value.(string)
		if isString && (strings.HasPrefix(s, "0x") || strings.Contains(key, "address")) {
			if !common.IsHexAddress(s) {
				return fmt.Errorf("address %s could not be checksummed, double check that addresses are valid", s)
			}
			filters[key] = common.HexToAddress(s).Hex()
		}
	}

	for _, required := range rule.required {
		if _, present := filters[required]; !present {
			return fmt.Errorf("%q must be set to backfill %s", required, name)
		}
	}

	for _, exclusion := range rule.exclusions {
		_, first := filters[exclusion[0]]
		_, second := filters[exclusion[1]]
		if first && second {
			return fmt.Errorf("%s cannot be filtered by both %s and %s", name, exclusion[0], exclusion[1])
		}
	}
	return nil
}

// FilterConflicts narrows candidate ledger records down to the ones whose
// filter partition matches the request. Unfiltered requests only conflict with
// unfiltered records; filtered requests match on every filter key. The result
// is sorted ascending by start block.
func FilterConflicts(
	dataType domain.BackfillDataType,
	candidates []*domain.BackfilledRange,
	filters map[string]any,
) ([]*domain.BackfilledRange, error) {
	rule, filterable := validFilters[dataType]

	if !filterable {
		if len(filters) != 0 {
			return nil, fmt.Errorf("%s backfill does not support filters", dataType)
		}
		return sortByStart(candidates), nil
	}

	if len(filters) == 0 {
		var matched []*domain.BackfilledRange
		for _, c := range candidates {
			if len(c.FilterData) == 0 {
				matched = append(matched, c)
			}
		}
		return sortByStart(matched), nil
	}

	matched := candidates
	match := func(key string, value any) {
		var keep []*domain.BackfilledRange
		for _, c := range matched {
			if c.FilterData == nil {
				continue
			}
			if stored, ok := c.FilterData[key]; ok && filterValueEqual(stored, value) {
				keep = append(keep, c)
			}
		}
		matched = keep
	}

	// Required keys take priority, then any remaining optional keys.
	for _, key := range rule.required {
		match(key, filters[key])
	}
	for key, value := range filters {
		if contains(rule.required, key) {
			continue
		}
		match(key, value)
	}
	return sortByStart(matched), nil
}

// SplitParams separates raw request kwargs into filter params and metadata for
// a data type. Nil values and empty slices are dropped.
func SplitParams(dataType domain.BackfillDataType, kwargs map[string]any) (filters, metadata map[string]any) {
	rule := validFilters[dataType]
	filters = make(map[string]any)
	metadata = make(map[string]any)

	for key, value := range kwargs {
		if value == nil {
			continue
		}
		if s, ok := value.([]string); ok && len(s) == 0 {
			continue
		}
		if contains(rule.options, key) {
			filters[key] = value
		} else {
			metadata[key] = value
		}
	}
	return filters, metadata
}

func sortByStart(records []*domain.BackfilledRange) []*domain.BackfilledRange {
	sorted := make([]*domain.BackfilledRange, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartBlock < sorted[j].StartBlock
	})
	return sorted
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// filterValueEqual compares stored filter values against request values.
// Values arriving from JSONB come back as []any, so string slices are
// compared element-wise; scalars compare by their string rendering.
func filterValueEqual(a, b any) bool {
	as, aOK := toStringSlice(a)
	bs, bOK := toStringSlice(b)
	if aOK || bOK {
		if !aOK || !bOK || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toStringSlice(v any) ([]string, bool) {
	switch vs := v.(type) {
	case []string:
		return vs, true
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
