package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/giisexport/internal/logging"
	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/seal"
)

// guideOutput is the result of running one guide through the pipeline.
type guideOutput struct {
	rows   int
	result FilterResult
	text   string
}

// runGuide fetches, maps and validates one guide. It has no side effects.
func (s *Service) runGuide(ctx context.Context, def GuideDefinition, sch *schema.Schema, tenantID, establishment string, period Period) (guideOutput, error) {
	mc := MapContext{
		EstablishmentCode: establishment,
		NumericDefault:    def.NumericDefault,
		ListDelimiter:     sch.ListDelimiter(),
		Exceptions:        def.Exceptions,
	}

	rows, err := def.Build(ctx, s.records, BuildRequest{
		TenantID: tenantID,
		Period:   period,
		Schema:   sch,
		Context:  mc,
	})
	if err != nil {
		return guideOutput{}, fmt.Errorf("build %s rows: %w", def.Code, err)
	}

	res := ValidateAndFilter(ctx, def.Code, sch, rows, ValidateOptions{
		Catalog:    s.catalog,
		Exceptions: def.Exceptions,
		PeriodEnd:  period.End(),
	})

	return guideOutput{
		rows:   len(rows),
		result: res,
		text:   Serialize(sch, res.Accepted),
	}, nil
}

// GenerateArtifact produces one guide's text artifact for a batch and merges
// its validation outcome into the batch record. Regenerating a guide
// replaces its artifact and its excluded-row entries.
func (s *Service) GenerateArtifact(ctx context.Context, batchID, guide string) (*Batch, error) {
	def, sch, err := s.guide(guide)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		release, err := s.limiter.Acquire(ctx, def.Code)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", def.Code, err)
		}
		defer release()
	}

	logger := logging.WithFields(ctx, "batch_id", batchID, "guide", def.Code)
	start := time.Now()

	b, err := s.batches.Update(ctx, batchID, func(b *Batch) error {
		if b.Status == StatusFailed {
			return ErrBatchFailed
		}
		if !slices.Contains(b.PlannedGuides, def.Code) {
			return fmt.Errorf("%w: %s", ErrGuideNotPlanned, def.Code)
		}
		b.Status = NextStatus(b.Status, EventGenerationStarted)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", def.Code, err)
	}

	out, err := s.runGuide(ctx, def, sch, b.TenantID, b.EstablishmentCode, b.Period)
	if err != nil {
		return nil, s.fail(ctx, batchID, def.Code, err)
	}

	data, err := seal.Encode(out.text, sch.Encoding())
	if err != nil {
		return nil, s.fail(ctx, batchID, def.Code, err)
	}

	base := OfficialBaseName(def.Code, b.EstablishmentCode, b.Period.Year, b.Period.Month)
	name := OfficialFileName(base, sch.TextExt())
	path, err := s.writer.Write(ctx, b.TenantID, b.Period, name, data)
	if err != nil {
		return nil, s.fail(ctx, batchID, def.Code, err)
	}

	artifact := Artifact{
		Guide:       def.Code,
		FileName:    name,
		TextPath:    path,
		RowCount:    len(out.result.Accepted),
		Excluded:    out.result.Excluded.TotalExcluded,
		Warnings:    len(out.result.Warnings),
		GeneratedAt: s.now().UTC(),
	}
	guideStatus := validationOf(artifact.Excluded, artifact.Warnings)

	// The file is on disk: recording it must not be cut short by the caller.
	record := context.WithoutCancel(ctx)
	b, err = s.batches.Update(record, batchID, func(b *Batch) error {
		if b.Status == StatusFailed {
			return ErrBatchFailed
		}
		applyArtifact(b, artifact, out.result, guideStatus)
		if allPlannedDone(b) && b.Status != StatusCompleted {
			b.Status = NextStatus(b.Status, EventAllGuidesDone)
			done := s.now().UTC()
			b.CompletedAt = &done
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", def.Code, err)
	}

	elapsed := time.Since(start)
	s.metrics.ArtifactGenerated(def.Code, artifact.RowCount, artifact.Excluded, artifact.Warnings, elapsed)
	logger.Info("artifact generated",
		"rows", out.rows,
		"accepted", artifact.RowCount,
		"excluded", artifact.Excluded,
		"warnings", artifact.Warnings,
		"duration_ms", elapsed.Milliseconds(),
	)

	if _, err := s.logAudit(record, AuditLogParams{
		Action:   ActionArtifactGenerated,
		Batch:    b,
		Guide:    def.Code,
		FileName: name,
		Summary: AuditSummary{
			Accepted: artifact.RowCount,
			Excluded: artifact.Excluded,
			Warnings: artifact.Warnings,
			Status:   guideStatus,
		},
	}); err != nil {
		return nil, fmt.Errorf("generate %s: record audit: %w", def.Code, err)
	}

	return b, nil
}

// applyArtifact merges one guide's outcome into b. The guide's previous
// artifact, excluded entries and warnings are replaced; the aggregate
// validation status only moves toward more severe.
func applyArtifact(b *Batch, a Artifact, res FilterResult, guideStatus ValidationStatus) {
	replaced := false
	for i := range b.Artifacts {
		if b.Artifacts[i].Guide == a.Guide {
			b.Artifacts[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		b.Artifacts = append(b.Artifacts, a)
	}

	if b.ExcludedReport != nil || res.Excluded.TotalExcluded > 0 {
		base := b.ExcludedReport.WithoutGuide(a.Guide)
		merged := base.Merge(res.Excluded)
		b.ExcludedReport = &merged
	}

	warnings := make([]ValidationIssue, 0, len(b.Warnings)+len(res.Warnings))
	for _, w := range b.Warnings {
		if w.Guide != a.Guide {
			warnings = append(warnings, w)
		}
	}
	b.Warnings = append(warnings, res.Warnings...)

	b.ValidationStatus = MergeValidation(b.ValidationStatus, guideStatus)
	b.Status = NextStatus(b.Status, EventGuideDone)
}

// fail records a generation error on the batch and returns err wrapped.
// Completed batches keep their status; their previous artifacts stay valid.
// A cancelled or timed-out generation is not a fault: the batch is left as
// it is and the guide can be generated again.
func (s *Service) fail(ctx context.Context, batchID, guide string, cause error) error {
	logger := logging.WithFields(ctx, "batch_id", batchID, "guide", guide)
	if interrupted(cause) {
		logger.Warn("generation interrupted", "error", cause)
		return fmt.Errorf("generate %s: %w", guide, cause)
	}

	s.metrics.GenerationFailed(guide)
	logger.Error("generation failed", "error", cause)

	_, err := s.batches.Update(context.WithoutCancel(ctx), batchID, func(b *Batch) error {
		next := NextStatus(b.Status, EventFailure)
		if next == StatusFailed && b.Status != StatusFailed {
			b.ErrorMessage = fmt.Sprintf("%s: %v", guide, cause)
		}
		b.Status = next
		return nil
	})
	if err != nil {
		logger.Error("failed to mark batch failed", "error", err)
	}
	return fmt.Errorf("generate %s: %w", guide, cause)
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// GenerateAll generates every planned guide of a batch concurrently.
func (s *Service) GenerateAll(ctx context.Context, batchID string) (*Batch, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusFailed {
		return nil, fmt.Errorf("generate all: %w", ErrBatchFailed)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.limiter != nil {
		g.SetLimit(s.limiter.MaxConcurrent())
	}
	for _, guide := range b.PlannedGuides {
		g.Go(func() error {
			_, err := s.GenerateArtifact(gctx, batchID, guide)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.GetBatch(ctx, batchID)
}

// PreValidation is a dry-run validation report for a tenant and period.
type PreValidation struct {
	TenantID          string            `json:"tenantId"`
	Period            Period            `json:"period"`
	EstablishmentCode string            `json:"establishmentCode"`
	Status            ValidationStatus  `json:"status"`
	Guides            []GuideValidation `json:"guides"`
}

// PreValidate maps and validates the requested guides without writing
// anything: no files, no batch records, no audit entries.
func (s *Service) PreValidate(ctx context.Context, tenantID string, period Period, guides []string) (*PreValidation, error) {
	if period.IsZero() {
		return nil, fmt.Errorf("prevalidate: %w: empty", ErrInvalidPeriod)
	}
	planned, err := s.planGuides(guides)
	if err != nil {
		return nil, fmt.Errorf("prevalidate: %w", err)
	}
	code, err := s.establishmentCode(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("prevalidate: %w", err)
	}

	results := make([]GuideValidation, len(planned))
	g, gctx := errgroup.WithContext(ctx)
	for i, guide := range planned {
		g.Go(func() error {
			def, sch, err := s.guide(guide)
			if err != nil {
				return err
			}
			out, err := s.runGuide(gctx, def, sch, tenantID, code, period)
			if err != nil {
				return err
			}
			results[i] = GuideValidation{
				Guide:    def.Code,
				Rows:     out.rows,
				Accepted: len(out.result.Accepted),
				Excluded: out.result.Excluded,
				Warnings: out.result.Warnings,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prevalidate: %w", err)
	}

	pv := &PreValidation{
		TenantID:          tenantID,
		Period:            period,
		EstablishmentCode: code,
		Status:            ValidationNone,
		Guides:            results,
	}
	for _, r := range results {
		pv.Status = MergeValidation(pv.Status, r.Status())
	}
	return pv, nil
}
