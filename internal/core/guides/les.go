package guides

import (
	"context"
	"slices"
	"sort"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

const (
	CodeLES = "LES"

	// LESNumericDefault fills absent required numeric LES fields.
	LESNumericDefault = "-1"
)

func init() {
	registerLES()
}

func registerLES() {
	core.Register(core.GuideDefinition{
		Code:           CodeLES,
		Label:          "Lesiones y causas de violencia",
		NumericDefault: LESNumericDefault,
		Exceptions: []core.RequiredException{
			{
				Field:  "municipioOcurrencia",
				Reason: "event abroad or place not specified",
				When: func(r core.Row) bool {
					return slices.Contains([]string{core.RegionForeign, core.RegionNotSpecified}, r.Get("entidadOcurrencia"))
				},
			},
		},
		Build: buildLES,
	})
}

// MapInjury maps one injury report to a LES row. patient and professional
// may be nil when the related record is missing.
func MapInjury(r records.InjuryReport, patient *records.Patient, professional *records.Professional, req core.BuildRequest) core.Row {
	mc := req.Context
	vals := map[string]string{
		"clues":                mc.EstablishmentCode,
		"folio":                core.FormatInt(r.Folio),
		"fechaEvento":          core.FormatDate(r.FechaEvento),
		"horaEvento":           r.HoraEvento,
		"diaFestivo":           core.FormatInt(r.DiaFestivo),
		"sitioOcurrencia":      core.FormatInt(r.SitioOcurrencia),
		"entidadOcurrencia":    NormalizeEntidad(r.EntidadOcurrencia),
		"municipioOcurrencia":  core.FormatInt(r.MunicipioOcurrencia),
		"intencionalidad":      core.FormatInt(r.Intencionalidad),
		"agenteLesion":         core.FormatInt(r.AgenteLesion),
		"areaAnatomica":        core.FormatInt(r.AreaAnatomica),
		"consecuenciaGravedad": core.FormatInt(r.ConsecuenciaGravedad),
		"fechaAtencion":        core.FormatDate(r.FechaAtencion),
		"servicioAtencion":     core.FormatInt(r.ServicioAtencion),
		"tipoAtencion":         core.JoinInts(mc.ListDelimiter, r.TipoAtencion),
		"destino":              core.FormatInt(r.Destino),
	}

	patientFields(vals, patient, mc)
	if patient != nil {
		at := r.FechaAtencion
		if at.IsZero() {
			at = r.FechaEvento
		}
		vals["edad"] = ageAt(patient.FechaNacimiento, at)
	}
	professionalFields(vals, professional, "Responsable")

	return core.CompleteRow(req.Schema, r.ID, vals, mc)
}

func buildLES(ctx context.Context, src core.RecordSource, req core.BuildRequest) ([]core.Row, error) {
	reports, err := src.InjuryReports(ctx, req.TenantID, req.Period)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].FechaEvento.Equal(reports[j].FechaEvento) {
			return reports[i].FechaEvento.Before(reports[j].FechaEvento)
		}
		return reports[i].ID < reports[j].ID
	})

	patientIDs := make([]string, len(reports))
	professionalIDs := make([]string, len(reports))
	for i, r := range reports {
		patientIDs[i] = r.PatientID
		professionalIDs[i] = r.ProfessionalID
	}
	rel, err := fetchRelated(ctx, src, req.TenantID, patientIDs, professionalIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]core.Row, len(reports))
	for i, r := range reports {
		rows[i] = MapInjury(r, rel.patient(r.PatientID), rel.professional(r.ProfessionalID), req)
	}
	return rows, nil
}
