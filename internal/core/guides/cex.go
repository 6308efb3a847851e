package guides

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

const (
	CodeCEX = "CEX"

	// CEXNumericDefault fills absent required numeric CEX fields.
	CEXNumericDefault = "-1"
)

// Personnel types that hold no professional license.
var unlicensedPersonnel = []string{"30", "31"}

func init() {
	registerCEX()
}

func registerCEX() {
	core.Register(core.GuideDefinition{
		Code:           CodeCEX,
		Label:          "Consulta externa",
		NumericDefault: CEXNumericDefault,
		Exceptions: []core.RequiredException{
			{
				Field:  "cedulaProfesional",
				Reason: "personnel type without professional license",
				When: func(r core.Row) bool {
					return slices.Contains(unlicensedPersonnel, r.Get("tipoPersonal"))
				},
			},
		},
		Build: buildCEX,
	})
}

// MapVisit maps one outpatient visit to a CEX row.
func MapVisit(r records.OutpatientVisit, patient *records.Patient, professional *records.Professional, req core.BuildRequest) core.Row {
	mc := req.Context
	vals := map[string]string{
		"clues":                  mc.EstablishmentCode,
		"fechaConsulta":          core.FormatDate(r.FechaConsulta),
		"tipoConsulta":           core.FormatFlag(r.PrimeraVez),
		"peso":                   core.FormatDecimal(r.Peso),
		"talla":                  core.FormatInt(r.Talla),
		"primeraVezDiagnostico1": core.FormatFlag(r.PrimeraVezDiagnostico1),
		"relacionTemporal":       core.FormatInt(r.RelacionTemporal),
		"referidoPor":            core.FormatInt(r.ReferidoPor),
		"contrarreferido":        core.FormatFlag(r.Contrarreferido),
		"telemedicina":           core.FormatFlag(r.Telemedicina),
	}
	for i, dx := range r.Diagnosticos {
		if i >= 3 {
			break
		}
		vals["diagnostico"+strconv.Itoa(i+1)] = diagnosisCode(dx)
	}

	patientFields(vals, patient, mc)
	professionalFields(vals, professional, "Prestador")
	if professional != nil {
		vals["cedulaProfesional"] = core.NormalizeID(professional.CedulaProfesional)
	}

	return core.CompleteRow(req.Schema, r.ID, vals, mc)
}

// diagnosisCode renders a CIE-10 code without its dot: "J00.X" becomes "J00X".
func diagnosisCode(s string) string {
	return strings.ReplaceAll(core.NormalizeID(s), ".", "")
}

func buildCEX(ctx context.Context, src core.RecordSource, req core.BuildRequest) ([]core.Row, error) {
	visits, err := src.OutpatientVisits(ctx, req.TenantID, req.Period)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(visits, func(i, j int) bool {
		if !visits[i].FechaConsulta.Equal(visits[j].FechaConsulta) {
			return visits[i].FechaConsulta.Before(visits[j].FechaConsulta)
		}
		return visits[i].ID < visits[j].ID
	})

	patientIDs := make([]string, len(visits))
	professionalIDs := make([]string, len(visits))
	for i, v := range visits {
		patientIDs[i] = v.PatientID
		professionalIDs[i] = v.ProfessionalID
	}
	rel, err := fetchRelated(ctx, src, req.TenantID, patientIDs, professionalIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]core.Row, len(visits))
	for i, v := range visits {
		rows[i] = MapVisit(v, rel.patient(v.PatientID), rel.professional(v.ProfessionalID), req)
	}
	return rows, nil
}
