package domain

// Block represents one indexed block header.
type Block struct {
	Network    Network
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  uint64
	GasUsed    uint64
	GasLimit   uint64
}

// Transaction represents one indexed transaction.
type Transaction struct {
	Network     Network
	Hash        string
	BlockNumber uint64
	TxIndex     int
	From        string
	To          string
	Value       string
	GasUsed     uint64
	GasPrice    string
	Input       []byte
	Timestamp   uint64
}

// EventLog represents one raw or decoded contract event.
type EventLog struct {
	Network         Network
	BlockNumber     uint64
	TxHash          string
	LogIndex        int
	ContractAddress string
	Topics          []string
	Data            []byte
	AbiName         string
	EventName       string
	DecodedArgs     map[string]any
}

// Transfer represents one decoded token transfer.
type Transfer struct {
	Network      Network
	BlockNumber  uint64
	TxHash       string
	LogIndex     int
	TokenAddress string
	From         string
	To           string
	Amount       string
}
