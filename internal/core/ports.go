package core

import (
	"context"

	"github.com/JonMunkholm/giisexport/internal/records"
)

// RecordSource reads the clinical records a batch exports. Persistence of
// the records themselves lives behind this port.
type RecordSource interface {
	InjuryReports(ctx context.Context, tenantID string, p Period) ([]records.InjuryReport, error)
	Screenings(ctx context.Context, tenantID string, p Period) ([]records.Screening, error)
	OutpatientVisits(ctx context.Context, tenantID string, p Period) ([]records.OutpatientVisit, error)
	Patients(ctx context.Context, tenantID string, ids []string) (map[string]records.Patient, error)
	Professionals(ctx context.Context, tenantID string, ids []string) (map[string]records.Professional, error)
}

// EstablishmentInfo is the catalog view of one establishment code.
type EstablishmentInfo struct {
	Found       bool
	Operational bool
}

// Catalog looks up official code lists. A nil Catalog is valid: every
// catalog-backed check is skipped.
type Catalog interface {
	CountryExists(ctx context.Context, code string) (bool, error)
	RegionExists(ctx context.Context, code string) (bool, error)
	Establishment(ctx context.Context, clues string) (EstablishmentInfo, error)
	PersonnelTypeExists(ctx context.Context, code string) (bool, error)
	AffiliationExists(ctx context.Context, code string) (bool, error)
}

// TenantResolver returns the establishment code a tenant has on file.
// An empty code is not an error.
type TenantResolver interface {
	EstablishmentCode(ctx context.Context, tenantID string) (string, error)
}

// BatchStore persists batch records.
type BatchStore interface {
	Create(ctx context.Context, b *Batch) error
	Get(ctx context.Context, id string) (*Batch, error)

	// Update applies fn to the current record and stores the result as one
	// atomic read-modify-write. If fn returns an error nothing is stored.
	Update(ctx context.Context, id string, fn func(*Batch) error) (*Batch, error)
}

// AuditSink stores immutable generation audit entries.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
	ListByBatch(ctx context.Context, batchID string) ([]AuditEntry, error)
}
