package domain

import "fmt"

// BackfillDataType enumerates the kinds of chain data that can be backfilled.
type BackfillDataType string

const (
	DataTypeFullBlocks   BackfillDataType = "full_blocks"
	DataTypeBlocks       BackfillDataType = "blocks"
	DataTypeTransactions BackfillDataType = "transactions"
	DataTypeTransfers    BackfillDataType = "transfers"
	DataTypeSpotPrices   BackfillDataType = "spot_prices"
	DataTypePrices       BackfillDataType = "prices"
	DataTypeEvents       BackfillDataType = "events"
	DataTypeTraces       BackfillDataType = "traces"
)

// ParseDataType validates a CLI string into a BackfillDataType.
func ParseDataType(s string) (BackfillDataType, error) {
	switch dt := BackfillDataType(s); dt {
	case DataTypeFullBlocks, DataTypeBlocks, DataTypeTransactions, DataTypeTransfers,
		DataTypeSpotPrices, DataTypePrices, DataTypeEvents, DataTypeTraces:
		return dt, nil
	default:
		return "", fmt.Errorf("unknown backfill data type: %q", s)
	}
}

// Pretty returns the human-readable name used in plan printouts and labels.
func (dt BackfillDataType) Pretty() string {
	switch dt {
	case DataTypeFullBlocks:
		return "Full Blocks"
	case DataTypeSpotPrices:
		return "Spot-Prices"
	case DataTypeBlocks:
		return "Blocks"
	case DataTypeTransactions:
		return "Transactions"
	case DataTypeTransfers:
		return "Transfers"
	case DataTypePrices:
		return "Prices"
	case DataTypeEvents:
		return "Events"
	case DataTypeTraces:
		return "Traces"
	default:
		return string(dt)
	}
}

// DataSource enumerates the upstream systems a backfill can pull from.
type DataSource string

const (
	DataSourceJSONRPC   DataSource = "json_rpc"
	DataSourceEtherscan DataSource = "etherscan"
)

// ParseDataSource validates a CLI string into a DataSource.
func ParseDataSource(s string) (DataSource, error) {
	switch src := DataSource(s); src {
	case DataSourceJSONRPC, DataSourceEtherscan:
		return src, nil
	default:
		return "", fmt.Errorf("unknown data source: %q", s)
	}
}
