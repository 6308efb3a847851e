package guides

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

// patientFields fills the patient block shared by every guide.
func patientFields(vals map[string]string, p *records.Patient, mc core.MapContext) {
	if p == nil {
		return
	}
	vals["curpPaciente"] = core.NormalizeID(p.CURP)
	vals["nombre"] = core.NormalizeName(p.Nombre)
	vals["primerApellido"] = core.NormalizeName(p.PrimerApellido)
	vals["segundoApellido"] = core.NormalizeName(p.SegundoApellido)
	vals["fechaNacimiento"] = core.FormatDate(p.FechaNacimiento)
	vals["paisNacimiento"] = core.FormatInt(p.PaisNacimiento)
	vals["entidadNacimiento"] = birthRegion(p)
	vals["sexo"] = core.FormatInt(p.Sexo)
	vals["derechohabiencia"] = core.JoinInts(mc.ListDelimiter, p.Derechohabiencia)
}

// birthRegion returns the foreign sentinel for persons born abroad.
func birthRegion(p *records.Patient) string {
	if p.PaisNacimiento != nil && *p.PaisNacimiento > 0 && *p.PaisNacimiento != core.CountryMexico {
		return core.RegionForeign
	}
	return NormalizeEntidad(p.EntidadNacimiento)
}

// professionalFields fills a professional block. suffix distinguishes the
// guide's naming ("Prestador", "Responsable").
func professionalFields(vals map[string]string, p *records.Professional, suffix string) {
	if p == nil {
		return
	}
	vals["curp"+suffix] = core.NormalizeID(p.CURP)
	vals["nombre"+suffix] = core.NormalizeName(p.Nombre)
	vals["primerApellido"+suffix] = core.NormalizeName(p.PrimerApellido)
	vals["segundoApellido"+suffix] = core.NormalizeName(p.SegundoApellido)
	vals["tipoPersonal"] = core.FormatInt(p.TipoPersonal)
}

// ageAt returns completed years between birth and at, or "" when either
// date is missing.
func ageAt(birth, at time.Time) string {
	if birth.IsZero() || at.IsZero() {
		return ""
	}
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	return strconv.Itoa(years)
}

// related fetches the patients and professionals a guide's records refer to.
type related struct {
	patients      map[string]records.Patient
	professionals map[string]records.Professional
}

func fetchRelated(ctx context.Context, src core.RecordSource, tenantID string, patientIDs, professionalIDs []string) (related, error) {
	var rel related
	var err error

	rel.patients, err = src.Patients(ctx, tenantID, uniqueIDs(patientIDs))
	if err != nil {
		return related{}, fmt.Errorf("fetch patients: %w", err)
	}
	rel.professionals, err = src.Professionals(ctx, tenantID, uniqueIDs(professionalIDs))
	if err != nil {
		return related{}, fmt.Errorf("fetch professionals: %w", err)
	}
	return rel, nil
}

func (r related) patient(id string) *records.Patient {
	if p, ok := r.patients[id]; ok {
		return &p
	}
	return nil
}

func (r related) professional(id string) *records.Professional {
	if p, ok := r.professionals[id]; ok {
		return &p
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
