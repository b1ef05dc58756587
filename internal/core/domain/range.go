package domain

// BackfilledRange is the ledger record for one contiguous block range that has
// already been captured for a (data type, network, filter) partition. The range
// is inclusive of StartBlock and exclusive of EndBlock.
type BackfilledRange struct {
	ID          string
	DataType    BackfillDataType
	Network     Network
	StartBlock  uint64
	EndBlock    uint64
	FilterData  map[string]any
	Metadata    map[string]any
	DecodedABIs []string
}

// Contains reports whether the record fully covers [from, to).
func (r *BackfilledRange) Contains(from, to uint64) bool {
	return r.StartBlock <= from && r.EndBlock >= to
}

// Overlaps reports whether the record intersects or touches [from, to).
func (r *BackfilledRange) Overlaps(from, to uint64) bool {
	return r.EndBlock >= from && r.StartBlock <= to
}
