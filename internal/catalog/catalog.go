// Package catalog provides the official code lists the validator checks
// against: countries, regions, establishments, personnel types and
// affiliations.
//
// Three implementations of core.Catalog are available:
//
//   - Static: lists loaded from YAML, including the lists shipped with the binary
//   - Postgres: lists kept in the catalog_* tables
//   - Cached: a Redis-backed read-through cache in front of either
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/giisexport/internal/core"
)

//go:embed default.yaml
var defaultCatalog []byte

// Entry is one code in a list.
type Entry struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// EstablishmentEntry is one registered health establishment.
type EstablishmentEntry struct {
	CLUES       string `yaml:"clues"`
	Name        string `yaml:"name"`
	Operational *bool  `yaml:"operational"`
}

// List names, as used in a document's partial key.
const (
	ListCountries      = "countries"
	ListRegions        = "regions"
	ListPersonnelTypes = "personnelTypes"
	ListAffiliations   = "affiliations"
)

var listNames = []string{ListCountries, ListRegions, ListPersonnelTypes, ListAffiliations}

// File is the YAML layout of a catalog document.
//
// Partial names the lists whose entries are a known subset of the official
// catalog. Partial and empty lists do not constrain codes: every lookup
// against them succeeds.
type File struct {
	Partial        []string             `yaml:"partial"`
	Countries      []Entry              `yaml:"countries"`
	Regions        []Entry              `yaml:"regions"`
	PersonnelTypes []Entry              `yaml:"personnelTypes"`
	Affiliations   []Entry              `yaml:"affiliations"`
	Establishments []EstablishmentEntry `yaml:"establishments"`
}

// Static is an immutable in-memory catalog.
type Static struct {
	countries      map[string]struct{}
	regions        map[string]struct{}
	personnel      map[string]struct{}
	affiliations   map[string]struct{}
	establishments map[string]core.EstablishmentInfo

	// unconstrained holds the partial or empty lists.
	unconstrained map[string]bool
}

var _ core.Catalog = (*Static)(nil)

// Default returns the catalog shipped with the binary.
func Default() (*Static, error) {
	return ParseStatic(defaultCatalog)
}

// LoadStaticFile reads a catalog document from disk.
func LoadStaticFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic decodes a catalog document. Unknown keys and blank codes are
// errors.
func ParseStatic(data []byte) (*Static, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewStatic(f)
}

// NewStatic builds a catalog from decoded lists.
func NewStatic(f File) (*Static, error) {
	s := &Static{
		establishments: make(map[string]core.EstablishmentInfo, len(f.Establishments)),
		unconstrained:  make(map[string]bool),
	}

	for _, name := range f.Partial {
		if !slices.Contains(listNames, name) {
			return nil, fmt.Errorf("parse catalog: partial: unknown list %q", name)
		}
		s.unconstrained[name] = true
	}

	var err error
	if s.countries, err = codeSet(ListCountries, f.Countries); err != nil {
		return nil, err
	}
	if s.regions, err = codeSet(ListRegions, f.Regions); err != nil {
		return nil, err
	}
	if s.personnel, err = codeSet(ListPersonnelTypes, f.PersonnelTypes); err != nil {
		return nil, err
	}
	if s.affiliations, err = codeSet(ListAffiliations, f.Affiliations); err != nil {
		return nil, err
	}
	for name, set := range map[string]map[string]struct{}{
		ListCountries:      s.countries,
		ListRegions:        s.regions,
		ListPersonnelTypes: s.personnel,
		ListAffiliations:   s.affiliations,
	} {
		if len(set) == 0 {
			s.unconstrained[name] = true
		}
	}

	for i, e := range f.Establishments {
		clues := normalizeCLUES(e.CLUES)
		if clues == "" {
			return nil, fmt.Errorf("parse catalog: establishments[%d]: empty clues", i)
		}
		operational := e.Operational == nil || *e.Operational
		s.establishments[clues] = core.EstablishmentInfo{Found: true, Operational: operational}
	}
	return s, nil
}

func codeSet(list string, entries []Entry) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		key := normalizeCode(e.Code)
		if key == "" {
			return nil, fmt.Errorf("parse catalog: %s[%d]: empty code", list, i)
		}
		set[key] = struct{}{}
	}
	return set, nil
}

// normalizeCode makes "09" and "9" the same key.
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if n, err := strconv.Atoi(code); err == nil {
		return strconv.Itoa(n)
	}
	return strings.ToUpper(code)
}

func normalizeCLUES(clues string) string {
	return strings.ToUpper(strings.TrimSpace(clues))
}

func (s *Static) CountryExists(_ context.Context, code string) (bool, error) {
	return s.contains(ListCountries, s.countries, code), nil
}

func (s *Static) RegionExists(_ context.Context, code string) (bool, error) {
	return s.contains(ListRegions, s.regions, code), nil
}

func (s *Static) PersonnelTypeExists(_ context.Context, code string) (bool, error) {
	return s.contains(ListPersonnelTypes, s.personnel, code), nil
}

func (s *Static) AffiliationExists(_ context.Context, code string) (bool, error) {
	return s.contains(ListAffiliations, s.affiliations, code), nil
}

// Constrained reports whether lookups against the named list can fail.
func (s *Static) Constrained(list string) bool {
	return !s.unconstrained[list]
}

func (s *Static) contains(list string, set map[string]struct{}, code string) bool {
	if s.unconstrained[list] {
		return true
	}
	_, ok := set[normalizeCode(code)]
	return ok
}

// Establishment looks up a CLUES code. A catalog without an establishments
// list does not constrain them: every code is reported found and operational.
func (s *Static) Establishment(_ context.Context, clues string) (core.EstablishmentInfo, error) {
	if len(s.establishments) == 0 {
		return core.EstablishmentInfo{Found: true, Operational: true}, nil
	}
	return s.establishments[normalizeCLUES(clues)], nil
}
