package plan

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
)

// Decoder is the ABI decoding dispatcher collaborator. The planner only needs
// to know which ABIs are loaded and the canonical event signatures they carry;
// decoding itself happens downstream of the fetch.
type Decoder interface {
	// LoadedABIs returns the names of every registered ABI.
	LoadedABIs() []string
	// EventSignatures returns event name -> canonical signature
	// (e.g. "Transfer(address,address,uint256)") for one loaded ABI.
	EventSignatures(abiName string) map[string]string
}

// EventTopics derives the log topic selectors for an event backfill. With no
// explicit event names, every event in the ABI is selected. A requested event
// missing from the ABI is a hard error.
func EventTopics(decoder Decoder, abiName string, eventNames []string) ([]string, error) {
	signatures := decoder.EventSignatures(abiName)

	if len(eventNames) == 0 {
		eventNames = make([]string, 0, len(signatures))
		for name := range signatures {
			eventNames = append(eventNames, name)
		}
		sort.Strings(eventNames)
	}

	selectors := make([]string, 0, len(eventNames))
	var missing []string
	for _, name := range eventNames {
		signature, ok := signatures[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		selectors = append(selectors, crypto.Keccak256Hash([]byte(signature)).Hex())
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%s ABI does not contain all events specified in the filter, missing: %v",
			abiName, missing)
	}
	return selectors, nil
}
