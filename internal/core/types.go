package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a reporting month.
type Period struct {
	Year  int
	Month int
}

// ParsePeriod parses a period in YYYY-MM form.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	y, m, ok := strings.Cut(s, "-")
	if !ok || len(y) != 4 || len(m) != 2 {
		return Period{}, fmt.Errorf("%w %q: want YYYY-MM", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Period{}, fmt.Errorf("%w %q: %v", ErrInvalidPeriod, s, err)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w %q: month out of range", ErrInvalidPeriod, s)
	}
	return Period{Year: year, Month: month}, nil
}

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last calendar day of the period in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Row is one mapped output line: field name to rendered value.
// Rows are immutable; With returns a modified copy.
type Row struct {
	ref  string
	vals map[string]string
}

// NewRow copies vals into a new row. ref identifies the source record and is
// never rendered.
func NewRow(ref string, vals map[string]string) Row {
	cp := make(map[string]string, len(vals))
	for k, v := range vals {
		cp[k] = v
	}
	return Row{ref: ref, vals: cp}
}

// Ref returns the source record identifier.
func (r Row) Ref() string { return r.ref }

// Get returns the value of a field, or "" when absent.
func (r Row) Get(name string) string { return r.vals[name] }

// Has reports whether the row carries a value (possibly empty) for name.
func (r Row) Has(name string) bool {
	_, ok := r.vals[name]
	return ok
}

// Len returns the number of fields carried.
func (r Row) Len() int { return len(r.vals) }

// With returns a copy of the row with one field replaced.
func (r Row) With(name, value string) Row {
	next := NewRow(r.ref, r.vals)
	next.vals[name] = value
	return next
}

// Map returns a copy of the row's values.
func (r Row) Map() map[string]string {
	cp := make(map[string]string, len(r.vals))
	for k, v := range r.vals {
		cp[k] = v
	}
	return cp
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityBlocker Severity = "blocker"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one finding against one field of one row.
type ValidationIssue struct {
	Guide    string   `json:"guide"`
	RowIndex int      `json:"rowIndex"`
	RecordID string   `json:"recordId,omitempty"`
	Field    string   `json:"field"`
	Value    string   `json:"value,omitempty"`
	Cause    string   `json:"cause"`
	Severity Severity `json:"severity"`
}

// ExcludedRowEntry records one blocker that removed a row from an artifact.
type ExcludedRowEntry struct {
	Guide    string `json:"guide"`
	RowIndex int    `json:"rowIndex"`
	RecordID string `json:"recordId,omitempty"`
	Field    string `json:"field"`
	Value    string `json:"value,omitempty"`
	Cause    string `json:"cause"`
}

// ExcludedRowReport lists every blocker entry; TotalExcluded counts distinct
// (guide, rowIndex) pairs, not entries.
type ExcludedRowReport struct {
	Entries       []ExcludedRowEntry `json:"entries"`
	TotalExcluded int                `json:"totalExcluded"`
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	StatusPending    BatchStatus = "pending"
	StatusGenerating BatchStatus = "generating"
	StatusCompleted  BatchStatus = "completed"
	StatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s BatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidationStatus is the aggregate validation outcome of a batch.
type ValidationStatus string

const (
	ValidationNone        ValidationStatus = ""
	ValidationValidated   ValidationStatus = "validated"
	ValidationHasWarnings ValidationStatus = "has_warnings"
	ValidationHasBlockers ValidationStatus = "has_blockers"
)

// Artifact is one guide's generated text file, and later its sealed archive.
type Artifact struct {
	Guide       string     `json:"guide"`
	FileName    string     `json:"fileName"`
	TextPath    string     `json:"textPath"`
	RowCount    int        `json:"rowCount"`
	Excluded    int        `json:"excluded"`
	Warnings    int        `json:"warnings"`
	GeneratedAt time.Time  `json:"generatedAt"`
	ZipPath     string     `json:"zipPath,omitempty"`
	HashSHA256  string     `json:"hashSha256,omitempty"`
	SealedAt    *time.Time `json:"sealedAt,omitempty"`
}

// Sealed reports whether the deliverable has been built for this artifact.
func (a Artifact) Sealed() bool { return a.ZipPath != "" && a.HashSHA256 != "" }

// Batch is one generation run for a tenant and reporting period.
type Batch struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenantId"`
	EstablishmentCode string             `json:"establishmentCode"`
	Period            Period             `json:"period"`
	Status            BatchStatus        `json:"status"`
	PlannedGuides     []string           `json:"plannedGuides"`
	Artifacts         []Artifact         `json:"artifacts"`
	ValidationStatus  ValidationStatus   `json:"validationStatus,omitempty"`
	ExcludedReport    *ExcludedRowReport `json:"excludedReport,omitempty"`
	Warnings          []ValidationIssue  `json:"warnings,omitempty"`
	StartedAt         time.Time          `json:"startedAt"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty"`
	ErrorMessage      string             `json:"errorMessage,omitempty"`
}

// Artifact returns the artifact for a guide, if generated.
func (b *Batch) Artifact(guide string) (Artifact, bool) {
	for _, a := range b.Artifacts {
		if a.Guide == guide {
			return a, true
		}
	}
	return Artifact{}, false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	cp := *b
	cp.PlannedGuides = append([]string(nil), b.PlannedGuides...)
	cp.Artifacts = make([]Artifact, len(b.Artifacts))
	for i, a := range b.Artifacts {
		cp.Artifacts[i] = a
		if a.SealedAt != nil {
			t := *a.SealedAt
			cp.Artifacts[i].SealedAt = &t
		}
	}
	cp.Warnings = append([]ValidationIssue(nil), b.Warnings...)
	if b.ExcludedReport != nil {
		rep := ExcludedRowReport{
			Entries:       append([]ExcludedRowEntry(nil), b.ExcludedReport.Entries...),
			TotalExcluded: b.ExcludedReport.TotalExcluded,
		}
		cp.ExcludedReport = &rep
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// MapContext carries what mappers need besides the records themselves.
type MapContext struct {
	EstablishmentCode string
	NumericDefault    string
	ListDelimiter     string

	// Exceptions lists required fields the mapper must leave empty, rather
	// than default, when their documented condition holds.
	Exceptions []RequiredException
}

// RequiredException allows a required field to stay empty when When holds
// for the row.
type RequiredException struct {
	Field  string
	Reason string
	When   func(Row) bool
}

func exempt(exceptions []RequiredException, field string, row Row) bool {
	for _, ex := range exceptions {
		if ex.Field == field && ex.When != nil && ex.When(row) {
			return true
		}
	}
	return false
}
