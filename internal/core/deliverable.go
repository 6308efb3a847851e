package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/giisexport/internal/logging"
	"github.com/JonMunkholm/giisexport/internal/seal"
)

type sealedArtifact struct {
	guide    string
	fileName string
	zipPath  string
	hash     string
	summary  AuditSummary
}

// BuildDeliverable seals every text artifact of a completed batch into its
// official archive and records one audit entry per archive.
//
// It refuses, leaving the batch unchanged, when the batch has blockers, or
// has warnings and confirmWarnings is false.
func (s *Service) BuildDeliverable(ctx context.Context, batchID string, confirmWarnings bool) (*Batch, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := deliverableAllowed(b, confirmWarnings); err != nil {
		return nil, fmt.Errorf("build deliverable: %w", err)
	}

	logger := logging.WithFields(ctx, "batch_id", batchID)
	sealedAt := s.now().UTC()

	sealed := make([]sealedArtifact, 0, len(b.Artifacts))
	for _, a := range b.Artifacts {
		sa, err := s.sealArtifact(ctx, b, a, sealedAt)
		if err != nil {
			logger.Error("seal failed", "guide", a.Guide, "error", err)
			return nil, fmt.Errorf("build deliverable: %w", err)
		}
		sealed = append(sealed, sa)
	}

	b, err = s.batches.Update(ctx, batchID, func(cur *Batch) error {
		if err := deliverableAllowed(cur, confirmWarnings); err != nil {
			return err
		}
		for _, sa := range sealed {
			for i := range cur.Artifacts {
				if cur.Artifacts[i].Guide != sa.guide {
					continue
				}
				cur.Artifacts[i].ZipPath = sa.zipPath
				cur.Artifacts[i].HashSHA256 = sa.hash
				t := sealedAt
				cur.Artifacts[i].SealedAt = &t
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build deliverable: %w", err)
	}

	for _, sa := range sealed {
		s.metrics.DeliverableSealed(sa.guide)
		if _, err := s.logAudit(ctx, AuditLogParams{
			Action:     ActionDeliverableSealed,
			Batch:      b,
			Guide:      sa.guide,
			FileName:   sa.fileName,
			HashSHA256: sa.hash,
			Summary:    sa.summary,
		}); err != nil {
			return nil, fmt.Errorf("build deliverable: record audit: %w", err)
		}
		logger.Info("deliverable sealed", "guide", sa.guide, "file", sa.fileName, "sha256", sa.hash)
	}

	return b, nil
}

// deliverableAllowed applies the state rules of BuildDeliverable.
func deliverableAllowed(b *Batch, confirmWarnings bool) error {
	switch {
	case b.Status == StatusFailed:
		return ErrBatchFailed
	case len(b.Artifacts) == 0:
		return ErrNoArtifacts
	case b.Status != StatusCompleted:
		return ErrBatchNotCompleted
	case b.ValidationStatus == ValidationHasBlockers:
		return ErrBlockersPresent
	case b.ValidationStatus == ValidationHasWarnings && !confirmWarnings:
		return ErrWarningsUnconfirmed
	}
	return nil
}

// sealArtifact encrypts one text artifact, packs it and writes the archive.
// Nothing is recorded on the batch here.
func (s *Service) sealArtifact(ctx context.Context, b *Batch, a Artifact, sealedAt time.Time) (sealedArtifact, error) {
	_, sch, err := s.guide(a.Guide)
	if err != nil {
		return sealedArtifact{}, err
	}

	text, err := s.writer.ReadFile(a.TextPath)
	if err != nil {
		return sealedArtifact{}, fmt.Errorf("read %s: %w", a.FileName, err)
	}

	container, err := seal.Seal(text, s.key)
	if err != nil {
		return sealedArtifact{}, fmt.Errorf("seal %s: %w", a.Guide, err)
	}

	base := OfficialBaseName(a.Guide, b.EstablishmentCode, b.Period.Year, b.Period.Month)
	archive, err := seal.Pack(OfficialFileName(base, sch.ContainerExt()), container, sealedAt)
	if err != nil {
		return sealedArtifact{}, fmt.Errorf("pack %s: %w", a.Guide, err)
	}

	zipName := OfficialFileName(base, sch.ArchiveExt())
	zipPath, err := s.writer.Write(ctx, b.TenantID, b.Period, zipName, archive)
	if err != nil {
		return sealedArtifact{}, err
	}

	return sealedArtifact{
		guide:    a.Guide,
		fileName: zipName,
		zipPath:  zipPath,
		hash:     seal.Digest(archive),
		summary: AuditSummary{
			Accepted: a.RowCount,
			Excluded: a.Excluded,
			Warnings: a.Warnings,
			Status:   b.ValidationStatus,
		},
	}, nil
}
