// Package schema holds the fixed-layout field definitions of every GIIS guide.
//
// A schema is pure data: an ordered list of fields plus the rendering
// parameters (encoding, delimiters, file extensions) the regulator expects.
// Schemas are loaded once from declarative YAML sources and never mutated.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaInvalid is returned when a schema source is missing or malformed.
var ErrSchemaInvalid = errors.New("schema invalid")

// Kind is the declared data type of a column.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindText    Kind = "text"
)

// Rule names the semantic check the validator applies to a field in
// addition to the generic required/max-length checks.
type Rule string

const (
	RuleNone          Rule = ""
	RuleCURP          Rule = "curp"
	RuleCLUES         Rule = "clues"
	RuleName          Rule = "name"
	RuleDate          Rule = "date"
	RuleTime          Rule = "time"
	RuleCountry       Rule = "country"
	RuleRegion        Rule = "region"
	RulePersonnel     Rule = "personnel"
	RuleAffiliation   Rule = "affiliation"
	RuleNumericList   Rule = "numlist"
	RuleDecimal       Rule = "decimal"
	RuleAge           Rule = "age"
	RuleDiagnosisCode Rule = "cie"
)

var knownRules = map[Rule]bool{
	RuleNone: true, RuleCURP: true, RuleCLUES: true, RuleName: true, RuleDate: true,
	RuleTime: true, RuleCountry: true, RuleRegion: true, RulePersonnel: true,
	RuleAffiliation: true, RuleNumericList: true, RuleDecimal: true, RuleAge: true,
	RuleDiagnosisCode: true,
}

// Field describes one column of a guide.
type Field struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	MaxLength int    `yaml:"maxLength,omitempty"` // 0 means unbounded
	Required  bool   `yaml:"required"`
	Kind      Kind   `yaml:"kind"`
	Rule      Rule   `yaml:"rule,omitempty"`

	// PairedWith names the field a rule depends on: the identifier whose
	// generic value disables name checks, or the country that drives a
	// birth-region check.
	PairedWith string `yaml:"pairedWith,omitempty"`

	// NotAfterPeriod flags event dates that should fall inside the reporting
	// period. Later dates produce a warning.
	NotAfterPeriod bool `yaml:"notAfterPeriod,omitempty"`
}

// Definition is the declarative source of a schema, as decoded from YAML.
type Definition struct {
	Guide         string  `yaml:"guide"`
	Version       string  `yaml:"version"`
	Label         string  `yaml:"label"`
	Encoding      string  `yaml:"encoding"`
	Delimiter     string  `yaml:"delimiter"`
	ListDelimiter string  `yaml:"listDelimiter"`
	TextExt       string  `yaml:"textExt"`
	ContainerExt  string  `yaml:"containerExt"`
	ArchiveExt    string  `yaml:"archiveExt"`
	Fields        []Field `yaml:"fields"`
}

// Schema is the immutable, id-ordered layout of a guide.
type Schema struct {
	guide         string
	version       string
	label         string
	encoding      string
	delimiter     string
	listDelimiter string
	textExt       string
	containerExt  string
	archiveExt    string

	fields []Field
	byName map[string]int
}

// Build validates a definition and returns its immutable schema.
// Fields are sorted by id; duplicate ids or names are rejected.
func Build(def Definition) (*Schema, error) {
	var errs []string

	guide := strings.ToUpper(strings.TrimSpace(def.Guide))
	if guide == "" {
		errs = append(errs, "guide is required")
	}
	if def.Delimiter == "" {
		errs = append(errs, "delimiter is required")
	}
	if def.ListDelimiter == "" {
		errs = append(errs, "listDelimiter is required")
	}
	if def.ListDelimiter != "" && def.ListDelimiter == def.Delimiter {
		errs = append(errs, "listDelimiter must differ from delimiter")
	}
	if len(def.Fields) == 0 {
		errs = append(errs, "at least one field is required")
	}

	fields := make([]Field, len(def.Fields))
	copy(fields, def.Fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })

	byName := make(map[string]int, len(fields))
	seenID := make(map[int]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			errs = append(errs, fmt.Sprintf("field %d: name is required", f.ID))
			continue
		}
		if seenID[f.ID] {
			errs = append(errs, fmt.Sprintf("field %q: duplicate id %d", f.Name, f.ID))
		}
		seenID[f.ID] = true
		if _, dup := byName[f.Name]; dup {
			errs = append(errs, fmt.Sprintf("field %q: duplicate name", f.Name))
		}
		byName[f.Name] = i
		if f.Kind != KindNumeric && f.Kind != KindText {
			errs = append(errs, fmt.Sprintf("field %q: unknown kind %q", f.Name, f.Kind))
		}
		if !knownRules[f.Rule] {
			errs = append(errs, fmt.Sprintf("field %q: unknown rule %q", f.Name, f.Rule))
		}
		if f.MaxLength < 0 {
			errs = append(errs, fmt.Sprintf("field %q: negative maxLength", f.Name))
		}
	}
	for _, f := range fields {
		if f.PairedWith == "" {
			continue
		}
		if _, ok := byName[f.PairedWith]; !ok {
			errs = append(errs, fmt.Sprintf("field %q: pairedWith %q is not a field", f.Name, f.PairedWith))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrSchemaInvalid, guide, strings.Join(errs, "; "))
	}

	return &Schema{
		guide:         guide,
		version:       def.Version,
		label:         def.Label,
		encoding:      orDefault(def.Encoding, "utf-8"),
		delimiter:     def.Delimiter,
		listDelimiter: def.ListDelimiter,
		textExt:       orDefault(def.TextExt, "TXT"),
		containerExt:  orDefault(def.ContainerExt, "CIF"),
		archiveExt:    orDefault(def.ArchiveExt, "ZIP"),
		fields:        fields,
		byName:        byName,
	}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (s *Schema) Guide() string         { return s.guide }
func (s *Schema) Version() string       { return s.version }
func (s *Schema) Label() string         { return s.label }
func (s *Schema) Encoding() string      { return s.encoding }
func (s *Schema) Delimiter() string     { return s.delimiter }
func (s *Schema) ListDelimiter() string { return s.listDelimiter }
func (s *Schema) TextExt() string       { return s.textExt }
func (s *Schema) ContainerExt() string  { return s.containerExt }
func (s *Schema) ArchiveExt() string    { return s.archiveExt }

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the id-ordered field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the column names in rendering order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}
