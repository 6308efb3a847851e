package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/giisexport/internal/logging"
	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/seal"
)

// Recorder receives generation metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ArtifactGenerated(guide string, accepted, excluded, warnings int, elapsed time.Duration)
	GenerationFailed(guide string)
	DeliverableSealed(guide string)
}

type nopRecorder struct{}

func (nopRecorder) ArtifactGenerated(string, int, int, int, time.Duration) {}
func (nopRecorder) GenerationFailed(string) {}
func (nopRecorder) DeliverableSealed(string) {}

// Options wires a Service to its collaborators. Catalog, Limiter, Metrics
// and Now are optional.
type Options struct {
	Schemas *schema.Registry
	Records RecordSource
	Tenants TenantResolver
	Batches BatchStore
	Audit   AuditSink
	Writer  *ArtifactWriter

	// Key is the 24-byte 3DES key used to seal deliverables.
	Key []byte

	Catalog Catalog
	Limiter *GenerationLimiter
	Metrics Recorder
	Now     func() time.Time
}

// Service runs the export pipeline: batch creation, per-guide generation,
// pre-validation and deliverable sealing.
type Service struct {
	schemas *schema.Registry
	records RecordSource
	tenants TenantResolver
	batches BatchStore
	audit   AuditSink
	writer  *ArtifactWriter
	key     []byte
	catalog Catalog
	limiter *GenerationLimiter
	metrics Recorder
	now     func() time.Time
}

// NewService creates a new Service instance. A key of the wrong length is
// a configuration error reported here, before any work is attempted.
func NewService(opts Options) (*Service, error) {
	var missing []string
	if opts.Schemas == nil {
		missing = append(missing, "Schemas")
	}
	if opts.Records == nil {
		missing = append(missing, "Records")
	}
	if opts.Tenants == nil {
		missing = append(missing, "Tenants")
	}
	if opts.Batches == nil {
		missing = append(missing, "Batches")
	}
	if opts.Audit == nil {
		missing = append(missing, "Audit")
	}
	if opts.Writer == nil {
		missing = append(missing, "Writer")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("core: missing options: %s", strings.Join(missing, ", "))
	}
	if err := seal.CheckKey(opts.Key); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}

	s := &Service{
		schemas: opts.Schemas,
		records: opts.Records,
		tenants: opts.Tenants,
		batches: opts.Batches,
		audit:   opts.Audit,
		writer:  opts.Writer,
		key:     append([]byte(nil), opts.Key...),
		catalog: opts.Catalog,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Guides returns the codes of guides that have both a definition and a schema.
func (s *Service) Guides() []string {
	var out []string
	for _, code := range Codes() {
		if _, ok := s.schemas.Get(code); ok {
			out = append(out, code)
		}
	}
	return out
}

// guide resolves a guide code to its definition and schema.
func (s *Service) guide(code string) (GuideDefinition, *schema.Schema, error) {
	def, ok := Get(code)
	if !ok {
		return GuideDefinition{}, nil, fmt.Errorf("%w: %s", ErrUnknownGuide, code)
	}
	sch, ok := s.schemas.Get(def.Code)
	if !ok {
		return GuideDefinition{}, nil, fmt.Errorf("%w: %s has no schema", ErrUnknownGuide, code)
	}
	return def, sch, nil
}

// planGuides normalizes a requested guide list. Empty means every guide.
func (s *Service) planGuides(requested []string) ([]string, error) {
	if len(requested) == 0 {
		all := s.Guides()
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: none registered", ErrUnknownGuide)
		}
		return all, nil
	}

	seen := make(map[string]bool, len(requested))
	planned := make([]string, 0, len(requested))
	for _, code := range requested {
		def, _, err := s.guide(strings.TrimSpace(code))
		if err != nil {
			return nil, err
		}
		if seen[def.Code] {
			continue
		}
		seen[def.Code] = true
		planned = append(planned, def.Code)
	}
	return planned, nil
}

// establishmentCode resolves a tenant's normalized code, or the sentinel.
func (s *Service) establishmentCode(ctx context.Context, tenantID string) (string, error) {
	code, err := s.tenants.EstablishmentCode(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("resolve establishment code for tenant %s: %w", tenantID, err)
	}
	return NormalizeEstablishmentCode(code), nil
}

// CreateBatch allocates a pending batch for a tenant and period. An empty
// guide list plans every registered guide.
func (s *Service) CreateBatch(ctx context.Context, tenantID string, period Period, guides []string) (*Batch, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, errors.New("create batch: tenant id is required")
	}
	if period.IsZero() {
		return nil, fmt.Errorf("create batch: %w: empty", ErrInvalidPeriod)
	}

	planned, err := s.planGuides(guides)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	code, err := s.establishmentCode(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	b := &Batch{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		EstablishmentCode: code,
		Period:            period,
		Status:            StatusPending,
		PlannedGuides:     planned,
		Artifacts:         []Artifact{},
		StartedAt:         s.now().UTC(),
	}
	if err := s.batches.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	logging.WithFields(ctx, "batch_id", b.ID, "tenant_id", tenantID).
		Info("batch created", "period", period.String(), "guides", planned, "establishment", code)
	return b.Clone(), nil
}

// GetBatch returns a batch by id.
func (s *Service) GetBatch(ctx context.Context, id string) (*Batch, error) {
	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return b, nil
}
