package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/giisexport/internal/config"
	"github.com/JonMunkholm/giisexport/internal/core"
	_ "github.com/JonMunkholm/giisexport/internal/core/guides"
	"github.com/JonMunkholm/giisexport/internal/metrics"
	"github.com/JonMunkholm/giisexport/internal/records"
	"github.com/JonMunkholm/giisexport/internal/report"
	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/store"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func newTestServer(t *testing.T, opts Options) (*Server, *store.Memory) {
	t.Helper()

	schemas, err := schema.Embedded()
	require.NoError(t, err)
	writer, err := core.NewArtifactWriter(t.TempDir())
	require.NoError(t, err)

	mem := store.NewMemory()
	mem.PutTenant(records.Tenant{ID: "t1", EstablishmentCode: "DFSSA001234"})
	mem.PutPatients("t1", records.Patient{
		ID: "p1", CURP: "PEGJ900517HDFRRN09", Nombre: "Juan", PrimerApellido: "Perez", SegundoApellido: "Gomez",
		FechaNacimiento: date(1990, 5, 17), PaisNacimiento: records.Int(142), EntidadNacimiento: "09", Sexo: records.Int(1),
	})
	mem.PutProfessionals("t1", records.Professional{
		ID: "d1", CURP: "LOMA800101MDFPRR05", Nombre: "Ana", PrimerApellido: "Lopez",
		TipoPersonal: records.Int(1), CedulaProfesional: "12345678",
	})
	mem.AddScreenings("t1",
		records.Screening{ID: "s1", PatientID: "p1", ProfessionalID: "d1", FechaDeteccion: date(2024, 3, 10)},
		records.Screening{ID: "s2", PatientID: "ghost", ProfessionalID: "d1", FechaDeteccion: date(2024, 3, 11)},
	)

	reg := prometheus.NewRegistry()
	svc, err := core.NewService(core.Options{
		Schemas: schemas, Records: mem, Tenants: mem, Batches: mem, Audit: mem, Writer: writer,
		Key:     []byte("0123456789abcdefghijklmn"),
		Metrics: metrics.New(reg),
	})
	require.NoError(t, err)

	if opts.Metrics == nil {
		opts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	return NewServer(svc, opts), mem
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestBatchLifecycle(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/batches", `{"tenantId":"t1","period":"2024-03","guides":["CDT"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[core.Batch](t, rec)
	assert.Equal(t, core.StatusPending, b.Status)
	assert.Equal(t, core.Period{Year: 2024, Month: 3}, b.Period)

	rec = do(t, s, http.MethodGet, "/api/batches/"+b.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/batches/"+b.ID+"/artifacts/CDT", "", ActorHeader, "ops@clinic")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b = decode[core.Batch](t, rec)
	assert.Equal(t, core.StatusCompleted, b.Status)
	assert.Equal(t, core.ValidationHasBlockers, b.ValidationStatus)
	require.NotNil(t, b.ExcludedReport)
	assert.Equal(t, 1, b.ExcludedReport.TotalExcluded)

	rec = do(t, s, http.MethodPost, "/api/batches/"+b.ID+"/deliverable", `{"confirmWarnings":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "VAL001", errResp.Code)
	assert.NotEmpty(t, errResp.RequestID)

	rec = do(t, s, http.MethodGet, "/api/batches/"+b.ID+"/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]core.AuditEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "ops@clinic", entries[0].Actor)
	assert.Equal(t, "192.0.2.1", entries[0].IPAddress)

	rec = do(t, s, http.MethodGet, "/api/batches/"+b.ID+"/excluded.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "excluidos-DFSSA001234-2024-03.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.SheetExcluded)
	require.NoError(t, err)
	assert.Greater(t, len(rows), 1)

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `giis_artifacts_generated_total{guide="CDT"} 1`)
}

func TestDeliverable_WarningsNeedConfirmation(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	mem.PutTenant(records.Tenant{ID: "t2", EstablishmentCode: "DFSSA001234"})
	mem.PutPatients("t2", records.Patient{
		ID: "anon", CURP: core.GenericCURP, Nombre: "Anonimo", PrimerApellido: "Anonimo", SegundoApellido: "Anonimo",
		FechaNacimiento: date(1980, 1, 1), PaisNacimiento: records.Int(142), EntidadNacimiento: "09", Sexo: records.Int(2),
	})
	mem.PutProfessionals("t2", records.Professional{
		ID: "d1", CURP: "LOMA800101MDFPRR05", Nombre: "Ana", PrimerApellido: "Lopez", TipoPersonal: records.Int(1),
	})
	mem.AddScreenings("t2", records.Screening{ID: "s9", PatientID: "anon", ProfessionalID: "d1", FechaDeteccion: date(2024, 3, 2)})

	rec := do(t, s, http.MethodPost, "/api/batches", `{"tenantId":"t2","period":"2024-03","guides":["CDT"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[core.Batch](t, rec)

	rec = do(t, s, http.MethodPost, "/api/batches/"+b.ID+"/generate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.ValidationHasWarnings, decode[core.Batch](t, rec).ValidationStatus)

	rec = do(t, s, http.MethodPost, "/api/batches/"+b.ID+"/deliverable", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "VAL002", decode[ErrorResponse](t, rec).Code)

	rec = do(t, s, http.MethodPost, "/api/batches/"+b.ID+"/deliverable", `{"confirmWarnings":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sealed := decode[core.Batch](t, rec)
	a, ok := sealed.Artifact("CDT")
	require.True(t, ok)
	assert.True(t, a.Sealed())
}

func TestPreValidate(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/prevalidate", `{"tenantId":"t1","period":"2024-03","guides":["CDT","LES"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pv := decode[core.PreValidation](t, rec)
	assert.Equal(t, core.ValidationHasBlockers, pv.Status)
	require.Len(t, pv.Guides, 2)
	assert.Equal(t, 2, pv.Guides[0].Rows)
	assert.Equal(t, 0, pv.Guides[1].Rows)
}

func TestErrorStatuses(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown batch", http.MethodGet, "/api/batches/nope", "", http.StatusNotFound, "GEN001"},
		{"unknown guide", http.MethodPost, "/api/batches", `{"tenantId":"t1","period":"2024-03","guides":["XYZ"]}`, http.StatusBadRequest, "GEN002"},
		{"bad period", http.MethodPost, "/api/batches", `{"tenantId":"t1","period":"2024-13"}`, http.StatusBadRequest, "GEN003"},
		{"missing period", http.MethodPost, "/api/batches", `{"tenantId":"t1"}`, http.StatusBadRequest, "GEN003"},
		{"missing tenant", http.MethodPost, "/api/prevalidate", `{"period":"2024-03"}`, http.StatusBadRequest, "REQ001"},
		{"unknown field", http.MethodPost, "/api/batches", `{"tenant":"t1"}`, http.StatusBadRequest, "REQ001"},
		{"audit of unknown batch", http.MethodGet, "/api/batches/nope/audit", "", http.StatusNotFound, "GEN001"},
		{"workbook of unknown batch", http.MethodGet, "/api/batches/nope/excluded.xlsx", "", http.StatusNotFound, "GEN001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestGuidesAndHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/api/guides", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"CDT", "CEX", "LES"}, decode[map[string][]string](t, rec)["guides"])

	rec = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPIKeyRequired(t *testing.T) {
	s, _ := newTestServer(t, Options{
		Security: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}},
	})

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/guides", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/guides", "", "X-API-Key", "k1").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code, "health stays open")
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Options{Rate: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(core.ErrTooManyGenerations))
	assert.Equal(t, http.StatusConflict, statusFor(core.ErrBatchNotCompleted))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
