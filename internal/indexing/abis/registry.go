// Package abis keeps the registered contract ABIs for a backfill run and
// exposes their event signatures to the planner.
package abis

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Registry holds named contract ABIs.
type Registry struct {
	abis map[string]abi.ABI
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{abis: make(map[string]abi.ABI)}
}

// Load registers an ABI from its JSON encoding. Registering a name twice is
// an error.
func (r *Registry) Load(name string, jsonABI []byte) error {
	if _, exists := r.abis[name]; exists {
		return fmt.Errorf("ABI %q already registered", name)
	}
	parsed, err := abi.JSON(bytes.NewReader(jsonABI))
	if err != nil {
		return fmt.Errorf("parse ABI %q: %w", name, err)
	}
	r.abis[name] = parsed
	return nil
}

// LoadFile registers an ABI from a JSON file, named after the file base
// ("erc20.json" registers as "erc20").
func (r *Registry) LoadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read ABI file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return name, r.Load(name, data)
}

// LoadedABIs returns the registered ABI names, sorted.
func (r *Registry) LoadedABIs() []string {
	names := make([]string, 0, len(r.abis))
	for name := range r.abis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventSignatures returns event name -> canonical signature for one ABI, or
// nil when the ABI is not registered.
func (r *Registry) EventSignatures(abiName string) map[string]string {
	parsed, ok := r.abis[abiName]
	if !ok {
		return nil
	}
	signatures := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		signatures[name] = event.Sig
	}
	return signatures
}
