package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

func newBatch(id string) *core.Batch {
	return &core.Batch{
		ID:            id,
		TenantID:      "t1",
		Period:        core.Period{Year: 2024, Month: 3},
		Status:        core.StatusPending,
		PlannedGuides: []string{"LES", "CDT"},
		StartedAt:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemory_CreateGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, newBatch("b1")))
	err := m.Create(ctx, newBatch("b1"))
	assert.True(t, errors.Is(err, ErrDuplicate), "got %v", err)

	got, err := m.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TenantID)

	// Mutating the returned copy does not touch the stored record.
	got.PlannedGuides[0] = "XXX"
	got.Status = core.StatusFailed
	again, err := m.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"LES", "CDT"}, again.PlannedGuides)
	assert.Equal(t, core.StatusPending, again.Status)

	_, err = m.Get(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrBatchNotFound))
}

func TestMemory_UpdateDiscardsOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, newBatch("b1")))

	boom := errors.New("boom")
	_, err := m.Update(ctx, "b1", func(b *core.Batch) error {
		b.Status = core.StatusFailed
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	got, err := m.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)

	_, err = m.Update(ctx, "missing", func(*core.Batch) error { return nil })
	assert.True(t, errors.Is(err, core.ErrBatchNotFound))
}

func TestMemory_UpdateIsAtomic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, newBatch("b1")))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Update(ctx, "b1", func(b *core.Batch) error {
				b.Warnings = append(b.Warnings, core.ValidationIssue{Field: fmt.Sprintf("f%d", i)})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := m.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got.Warnings, writers, "no concurrent append was lost")
}

func TestMemory_Audit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, core.AuditEntry{ID: "a1", BatchID: "b1"}))
	require.NoError(t, m.Record(ctx, core.AuditEntry{ID: "a2", BatchID: "b2"}))
	require.NoError(t, m.Record(ctx, core.AuditEntry{ID: "a3", BatchID: "b1"}))
	assert.True(t, errors.Is(m.Record(ctx, core.AuditEntry{ID: "a1"}), ErrDuplicate))

	got, err := m.ListByBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "a3", got[1].ID)
}

func TestMemory_RecordsByPeriod(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	march := core.Period{Year: 2024, Month: 3}

	m.PutTenant(records.Tenant{ID: "t1", EstablishmentCode: "DFSSA001234"})
	m.PutPatients("t1", records.Patient{ID: "p1", Derechohabiencia: []int{1, 2}})
	m.AddInjuryReports("t1",
		records.InjuryReport{ID: "i1", FechaEvento: date(2024, 2, 28), FechaAtencion: date(2024, 3, 1)},
		records.InjuryReport{ID: "i2", FechaEvento: date(2024, 3, 31)},
		records.InjuryReport{ID: "i3", FechaEvento: date(2024, 3, 31), FechaAtencion: date(2024, 4, 1)},
	)
	m.AddScreenings("t1",
		records.Screening{ID: "s1", FechaDeteccion: date(2024, 3, 15)},
		records.Screening{ID: "s2"},
	)
	m.AddOutpatientVisits("t1", records.OutpatientVisit{ID: "v1", FechaConsulta: date(2023, 3, 15)})

	code, err := m.EstablishmentCode(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "DFSSA001234", code)

	code, err = m.EstablishmentCode(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, code)

	injuries, err := m.InjuryReports(ctx, "t1", march)
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i2"}, ids(injuries, func(r records.InjuryReport) string { return r.ID }))

	screenings, err := m.Screenings(ctx, "t1", march)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(screenings, func(r records.Screening) string { return r.ID }))

	visits, err := m.OutpatientVisits(ctx, "t1", march)
	require.NoError(t, err)
	assert.Empty(t, visits)

	patients, err := m.Patients(ctx, "t1", []string{"p1", "p9"})
	require.NoError(t, err)
	require.Len(t, patients, 1)
	p := patients["p1"]
	p.Derechohabiencia[0] = 99
	again, _ := m.Patients(ctx, "t1", []string{"p1"})
	assert.Equal(t, []int{1, 2}, again["p1"].Derechohabiencia)
}

func TestParseFixtures(t *testing.T) {
	doc := []byte(`
tenants:
  - id: t1
    name: Clinica Norte
    establishmentCode: DFSSA001234
    patients:
      - id: p1
        curp: PEGJ900517HDFRRN09
        nombre: Juan
        primerApellido: Pérez
        fechaNacimiento: 1990-05-17T00:00:00Z
        sexo: 1
    screenings:
      - id: s1
        patientId: p1
        fechaDeteccion: 2024-03-10T00:00:00Z
        peso: 71.5
        referido: true
`)
	f, err := ParseFixtures(doc)
	require.NoError(t, err)
	require.Len(t, f.Tenants, 1)

	tf := f.Tenants[0]
	assert.Equal(t, "DFSSA001234", tf.EstablishmentCode)
	require.Len(t, tf.Patients, 1)
	assert.Equal(t, 1, *tf.Patients[0].Sexo)
	assert.Equal(t, date(1990, 5, 17), tf.Patients[0].FechaNacimiento)
	require.Len(t, tf.Screenings, 1)
	assert.InDelta(t, 71.5, *tf.Screenings[0].Peso, 0.001)

	m := NewMemory()
	m.Seed(f)
	got, err := m.Screenings(context.Background(), "t1", core.Period{Year: 2024, Month: 3})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseFixtures_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "tenants:\n  - id: t1\n    colour: red\n"},
		{"missing id", "tenants:\n  - name: nobody\n"},
		{"not yaml", "tenants: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixtures([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func ids[T any](items []T, key func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, key(it))
	}
	return out
}
