package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of generation event being audited.
type AuditAction string

const (
	ActionArtifactGenerated AuditAction = "artifact_generated"
	ActionDeliverableSealed AuditAction = "deliverable_sealed"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditSummary is the validation outcome recorded with an audit entry.
type AuditSummary struct {
	Accepted int              `json:"accepted"`
	Excluded int              `json:"excluded"`
	Warnings int              `json:"warnings"`
	Status   ValidationStatus `json:"status"`
}

// AuditEntry is one immutable generation event. Entries are created and
// never updated or deleted.
type AuditEntry struct {
	ID         string        `json:"id"`
	BatchID    string        `json:"batchId"`
	TenantID   string        `json:"tenantId"`
	Guide      string        `json:"guide"`
	Action     AuditAction   `json:"action"`
	Severity   AuditSeverity `json:"severity"`
	FileName   string        `json:"fileName"`
	HashSHA256 string        `json:"hashSha256,omitempty"`
	Summary    AuditSummary  `json:"summary"`
	Actor      string        `json:"actor,omitempty"`
	IPAddress  string        `json:"ipAddress,omitempty"`
	UserAgent  string        `json:"userAgent,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action     AuditAction
	Batch      *Batch
	Guide      string
	FileName   string
	HashSHA256 string
	Summary    AuditSummary
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction, summary AuditSummary) AuditSeverity {
	switch {
	case action == ActionDeliverableSealed:
		return SeverityHigh
	case summary.Excluded > 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// logAudit records an audit entry. Request metadata comes from ctx.
func (s *Service) logAudit(ctx context.Context, params AuditLogParams) (AuditEntry, error) {
	entry := AuditEntry{
		ID:         uuid.NewString(),
		BatchID:    params.Batch.ID,
		TenantID:   params.Batch.TenantID,
		Guide:      params.Guide,
		Action:     params.Action,
		Severity:   determineSeverity(params.Action, params.Summary),
		FileName:   params.FileName,
		HashSHA256: params.HashSHA256,
		Summary:    params.Summary,
		Actor:      GetActorFromContext(ctx),
		IPAddress:  GetIPAddressFromContext(ctx),
		UserAgent:  GetUserAgentFromContext(ctx),
		CreatedAt:  s.now().UTC(),
	}

	if err := s.audit.Record(ctx, entry); err != nil {
		return AuditEntry{}, err
	}
	return entry, nil
}

// ListAudit returns the audit entries of a batch, oldest first.
func (s *Service) ListAudit(ctx context.Context, batchID string) ([]AuditEntry, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.audit.ListByBatch(ctx, batchID)
}
