package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

// ErrDuplicate is returned when creating a record whose id already exists.
var ErrDuplicate = errors.New("store: duplicate id")

// Memory is an in-process implementation of every core port except Catalog.
// The zero value is not usable; call NewMemory.
type Memory struct {
	mu      sync.RWMutex
	batches map[string]*core.Batch
	audit   []core.AuditEntry
	data    map[string]*tenantData
}

type tenantData struct {
	tenant        records.Tenant
	patients      map[string]records.Patient
	professionals map[string]records.Professional
	injuries      []records.InjuryReport
	screenings    []records.Screening
	visits        []records.OutpatientVisit
}

var (
	_ core.BatchStore     = (*Memory)(nil)
	_ core.AuditSink      = (*Memory)(nil)
	_ core.RecordSource   = (*Memory)(nil)
	_ core.TenantResolver = (*Memory)(nil)
)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		batches: make(map[string]*core.Batch),
		data:    make(map[string]*tenantData),
	}
}

// ----------------------------------------------------------------------------
// BatchStore
// ----------------------------------------------------------------------------

func (m *Memory) Create(_ context.Context, b *core.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[b.ID]; ok {
		return fmt.Errorf("%w: batch %s", ErrDuplicate, b.ID)
	}
	m.batches[b.ID] = b.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*core.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, core.ErrBatchNotFound
	}
	return b.Clone(), nil
}

// Update runs fn on a copy of the batch under the store lock and keeps the
// copy only if fn succeeds.
func (m *Memory) Update(_ context.Context, id string, fn func(*core.Batch) error) (*core.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.batches[id]
	if !ok {
		return nil, core.ErrBatchNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	m.batches[id] = next
	return next.Clone(), nil
}

// ----------------------------------------------------------------------------
// AuditSink
// ----------------------------------------------------------------------------

func (m *Memory) Record(_ context.Context, e core.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.audit {
		if existing.ID == e.ID {
			return fmt.Errorf("%w: audit entry %s", ErrDuplicate, e.ID)
		}
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListByBatch(_ context.Context, batchID string) ([]core.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.AuditEntry
	for _, e := range m.audit {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Records and tenants
// ----------------------------------------------------------------------------

func (m *Memory) tenantLocked(id string) *tenantData {
	td, ok := m.data[id]
	if !ok {
		td = &tenantData{
			tenant:        records.Tenant{ID: id},
			patients:      make(map[string]records.Patient),
			professionals: make(map[string]records.Professional),
		}
		m.data[id] = td
	}
	return td
}

// PutTenant stores or replaces a tenant.
func (m *Memory) PutTenant(t records.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenantLocked(t.ID).tenant = t
}

// PutPatients stores patients for a tenant.
func (m *Memory) PutPatients(tenantID string, ps ...records.Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenantLocked(tenantID)
	for _, p := range ps {
		td.patients[p.ID] = p
	}
}

// PutProfessionals stores professionals for a tenant.
func (m *Memory) PutProfessionals(tenantID string, ps ...records.Professional) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenantLocked(tenantID)
	for _, p := range ps {
		td.professionals[p.ID] = p
	}
}

// AddInjuryReports appends injury reports for a tenant.
func (m *Memory) AddInjuryReports(tenantID string, rs ...records.InjuryReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenantLocked(tenantID)
	td.injuries = append(td.injuries, rs...)
}

// AddScreenings appends screenings for a tenant.
func (m *Memory) AddScreenings(tenantID string, rs ...records.Screening) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenantLocked(tenantID)
	td.screenings = append(td.screenings, rs...)
}

// AddOutpatientVisits appends outpatient visits for a tenant.
func (m *Memory) AddOutpatientVisits(tenantID string, rs ...records.OutpatientVisit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenantLocked(tenantID)
	td.visits = append(td.visits, rs...)
}

func (m *Memory) EstablishmentCode(_ context.Context, tenantID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if td, ok := m.data[tenantID]; ok {
		return td.tenant.EstablishmentCode, nil
	}
	return "", nil
}

func (m *Memory) InjuryReports(_ context.Context, tenantID string, p core.Period) ([]records.InjuryReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td, ok := m.data[tenantID]
	if !ok {
		return nil, nil
	}
	var out []records.InjuryReport
	for _, r := range td.injuries {
		if inPeriod(InjuryDate(r), p) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Screenings(_ context.Context, tenantID string, p core.Period) ([]records.Screening, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td, ok := m.data[tenantID]
	if !ok {
		return nil, nil
	}
	var out []records.Screening
	for _, r := range td.screenings {
		if inPeriod(r.FechaDeteccion, p) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) OutpatientVisits(_ context.Context, tenantID string, p core.Period) ([]records.OutpatientVisit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td, ok := m.data[tenantID]
	if !ok {
		return nil, nil
	}
	var out []records.OutpatientVisit
	for _, r := range td.visits {
		if inPeriod(r.FechaConsulta, p) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Patients(_ context.Context, tenantID string, ids []string) (map[string]records.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]records.Patient, len(ids))
	td, ok := m.data[tenantID]
	if !ok {
		return out, nil
	}
	for _, id := range ids {
		if p, ok := td.patients[id]; ok {
			p.Derechohabiencia = slices.Clone(p.Derechohabiencia)
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) Professionals(_ context.Context, tenantID string, ids []string) (map[string]records.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]records.Professional, len(ids))
	td, ok := m.data[tenantID]
	if !ok {
		return out, nil
	}
	for _, id := range ids {
		if p, ok := td.professionals[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
