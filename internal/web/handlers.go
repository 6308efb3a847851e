package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/logging"
	"github.com/JonMunkholm/giisexport/internal/report"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// batchRequest is the body of POST /api/batches and POST /api/prevalidate.
type batchRequest struct {
	TenantID string      `json:"tenantId"`
	Period   core.Period `json:"period"`
	Guides   []string    `json:"guides,omitempty"`
}

// deliverableRequest is the body of POST /api/batches/{id}/deliverable.
type deliverableRequest struct {
	ConfirmWarnings bool `json:"confirmWarnings"`
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func (req *batchRequest) validate() error {
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenantId is required", errBadRequest)
	}
	if req.Period.IsZero() {
		return fmt.Errorf("%w: period is required", core.ErrInvalidPeriod)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListGuides returns the guide codes the service can generate.
func (s *Server) handleListGuides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"guides": s.service.Guides()})
}

// handleCreateBatch allocates a pending batch.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	b, err := s.service.CreateBatch(ctx, req.TenantID, req.Period, req.Guides)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleGenerateArtifact generates one guide of a batch.
func (s *Server) handleGenerateArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	b, err := s.service.GenerateArtifact(ctx, chi.URLParam(r, "batchID"), chi.URLParam(r, "guide"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleGenerateAll generates every planned guide of a batch.
func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	b, err := s.service.GenerateAll(ctx, chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleBuildDeliverable seals a completed batch. Blockers and unconfirmed
// warnings are conflicts.
func (s *Server) handleBuildDeliverable(w http.ResponseWriter, r *http.Request) {
	var req deliverableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	b, err := s.service.BuildDeliverable(ctx, chi.URLParam(r, "batchID"), req.ConfirmWarnings)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleExcludedWorkbook streams the excluded-rows review workbook.
func (s *Server) handleExcludedWorkbook(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	f, err := report.ExcludedWorkbook(b)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("excluidos-%s-%s.xlsx", b.EstablishmentCode, b.Period)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		logging.FromContext(r.Context()).Error("workbook write failed", "batch_id", b.ID, "error", err)
	}
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListAudit(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handlePreValidate runs a dry validation for a tenant and period.
func (s *Server) handlePreValidate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, err)
		return
	}

	pv, err := s.service.PreValidate(r.Context(), req.TenantID, req.Period, req.Guides)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}
