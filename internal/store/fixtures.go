package store

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

// Fixtures is a YAML document of clinical records for one or more tenants,
// used to seed the memory store in development and demos.
type Fixtures struct {
	Tenants []TenantFixture `yaml:"tenants"`
}

// TenantFixture holds one tenant and its records.
type TenantFixture struct {
	records.Tenant   `yaml:",inline"`
	Patients         []records.Patient         `yaml:"patients"`
	Professionals    []records.Professional    `yaml:"professionals"`
	InjuryReports    []records.InjuryReport    `yaml:"injuryReports"`
	Screenings       []records.Screening       `yaml:"screenings"`
	OutpatientVisits []records.OutpatientVisit `yaml:"outpatientVisits"`
}

// ParseFixtures decodes a fixtures document. Unknown keys are errors.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, t := range f.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("parse fixtures: tenant %d has no id", i)
		}
	}
	return &f, nil
}

// LoadFixturesFile reads and applies a fixtures file to m.
func (m *Memory) LoadFixturesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	f, err := ParseFixtures(data)
	if err != nil {
		return err
	}
	m.Seed(f)
	return nil
}

// Seed adds every tenant and record in f.
func (m *Memory) Seed(f *Fixtures) {
	for _, t := range f.Tenants {
		m.PutTenant(t.Tenant)
		m.PutPatients(t.ID, t.Patients...)
		m.PutProfessionals(t.ID, t.Professionals...)
		m.AddInjuryReports(t.ID, t.InjuryReports...)
		m.AddScreenings(t.ID, t.Screenings...)
		m.AddOutpatientVisits(t.ID, t.OutpatientVisits...)
	}
}

// InjuryDate is the date that places an injury report in a period: the
// attention date, or the event date when attention was not recorded.
func InjuryDate(r records.InjuryReport) time.Time {
	if r.FechaAtencion.IsZero() {
		return r.FechaEvento
	}
	return r.FechaAtencion
}

func inPeriod(t time.Time, p core.Period) bool {
	return !t.IsZero() && t.Year() == p.Year && int(t.Month()) == p.Month
}
