package guides

import (
	"context"
	"sort"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

const (
	CodeCDT = "CDT"

	// CDTNumericDefault fills absent required numeric CDT fields.
	CDTNumericDefault = "0"
)

func init() {
	registerCDT()
}

func registerCDT() {
	core.Register(core.GuideDefinition{
		Code:           CodeCDT,
		Label:          "Detecciones",
		NumericDefault: CDTNumericDefault,
		Exceptions: []core.RequiredException{
			{
				Field:  "segundoApellido",
				Reason: "single-surname person",
				When: func(r core.Row) bool {
					return r.Get("primerApellido") != ""
				},
			},
		},
		Build: buildCDT,
	})
}

// MapScreening maps one screening session to a CDT row.
func MapScreening(r records.Screening, patient *records.Patient, professional *records.Professional, req core.BuildRequest) core.Row {
	mc := req.Context
	vals := map[string]string{
		"clues":                 mc.EstablishmentCode,
		"fechaDeteccion":        core.FormatDate(r.FechaDeteccion),
		"peso":                  core.FormatDecimal(r.Peso),
		"talla":                 core.FormatInt(r.Talla),
		"circunferenciaCintura": core.FormatInt(r.CircunferenciaCintura),
		"tensionSistolica":      core.FormatInt(r.TensionSistolica),
		"tensionDiastolica":     core.FormatInt(r.TensionDiastolica),
		"glucemia":              core.FormatInt(r.Glucemia),
		"deteccionDiabetes":     core.FormatInt(r.DeteccionDiabetes),
		"deteccionHipertension": core.FormatInt(r.DeteccionHipertension),
		"deteccionObesidad":     core.FormatInt(r.DeteccionObesidad),
		"deteccionDepresion":    core.FormatInt(r.DeteccionDepresion),
		"deteccionCancerMama":   core.FormatInt(r.DeteccionCancerMama),
		"deteccionVih":          core.FormatInt(r.DeteccionVih),
		"referido":              core.FormatFlag(r.Referido),
	}

	patientFields(vals, patient, mc)
	professionalFields(vals, professional, "Prestador")

	return core.CompleteRow(req.Schema, r.ID, vals, mc)
}

func buildCDT(ctx context.Context, src core.RecordSource, req core.BuildRequest) ([]core.Row, error) {
	screenings, err := src.Screenings(ctx, req.TenantID, req.Period)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(screenings, func(i, j int) bool {
		if !screenings[i].FechaDeteccion.Equal(screenings[j].FechaDeteccion) {
			return screenings[i].FechaDeteccion.Before(screenings[j].FechaDeteccion)
		}
		return screenings[i].ID < screenings[j].ID
	})

	patientIDs := make([]string, len(screenings))
	professionalIDs := make([]string, len(screenings))
	for i, s := range screenings {
		patientIDs[i] = s.PatientID
		professionalIDs[i] = s.ProfessionalID
	}
	rel, err := fetchRelated(ctx, src, req.TenantID, patientIDs, professionalIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]core.Row, len(screenings))
	for i, s := range screenings {
		rows[i] = MapScreening(s, rel.patient(s.PatientID), rel.professional(s.ProfessionalID), req)
	}
	return rows, nil
}
