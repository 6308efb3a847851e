package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

// BuildFunc fetches one guide's records for a period and maps them to rows.
// It must return one row per source record, in a stable order.
type BuildFunc func(ctx context.Context, src RecordSource, req BuildRequest) ([]Row, error)

// BuildRequest is everything a guide needs to produce its rows.
type BuildRequest struct {
	TenantID string
	Period   Period
	Schema   *schema.Schema
	Context  MapContext
}

// GuideDefinition registers one report type.
type GuideDefinition struct {
	Code  string
	Label string

	// NumericDefault fills absent required numeric fields. Guides differ
	// (0 or -1), so each declares its own.
	NumericDefault string

	Exceptions []RequiredException
	Build      BuildFunc
}

var (
	registry   = make(map[string]GuideDefinition)
	registryMu sync.RWMutex
)

// Register adds a guide definition to the registry.
// Panics if the guide is already registered or incomplete.
func Register(def GuideDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	def.Code = strings.ToUpper(def.Code)
	if def.Code == "" || def.Build == nil || def.NumericDefault == "" {
		panic(fmt.Sprintf("incomplete guide definition: %q", def.Code))
	}
	if _, exists := registry[def.Code]; exists {
		panic(fmt.Sprintf("guide already registered: %s", def.Code))
	}

	registry[def.Code] = def
}

// Get returns a guide definition by code, case-insensitively.
func Get(code string) (GuideDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[strings.ToUpper(code)]
	return def, ok
}

// All returns all registered guide definitions sorted by code.
func All() []GuideDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]GuideDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})

	return result
}

// Codes returns the registered guide codes, sorted.
func Codes() []string {
	defs := All()
	codes := make([]string, len(defs))
	for i, def := range defs {
		codes[i] = def.Code
	}
	return codes
}

// Clear removes all registered guides.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]GuideDefinition)
}
