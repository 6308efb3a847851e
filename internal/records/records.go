// Package records defines the clinical documents the export pipeline reads.
//
// These are port models: the storage that owns them lives outside this
// module, and they arrive already fetched through core.RecordSource.
// Optional numeric values are pointers so that "not captured" stays
// distinguishable from zero.
package records

import "time"

// Tenant is an organization with its on-file establishment code.
type Tenant struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	EstablishmentCode string `json:"establishmentCode" yaml:"establishmentCode"`
}

// Patient is the person a record refers to.
type Patient struct {
	ID                string    `json:"id" yaml:"id"`
	CURP              string    `json:"curp" yaml:"curp"`
	Nombre            string    `json:"nombre" yaml:"nombre"`
	PrimerApellido    string    `json:"primerApellido" yaml:"primerApellido"`
	SegundoApellido   string    `json:"segundoApellido" yaml:"segundoApellido"`
	FechaNacimiento   time.Time `json:"fechaNacimiento" yaml:"fechaNacimiento"`
	PaisNacimiento    *int      `json:"paisNacimiento,omitempty" yaml:"paisNacimiento,omitempty"`
	EntidadNacimiento string    `json:"entidadNacimiento" yaml:"entidadNacimiento"`
	Sexo              *int      `json:"sexo,omitempty" yaml:"sexo,omitempty"`
	Derechohabiencia  []int     `json:"derechohabiencia,omitempty" yaml:"derechohabiencia,omitempty"`
}

// Professional is the clinician responsible for a record.
type Professional struct {
	ID                string `json:"id" yaml:"id"`
	CURP              string `json:"curp" yaml:"curp"`
	Nombre            string `json:"nombre" yaml:"nombre"`
	PrimerApellido    string `json:"primerApellido" yaml:"primerApellido"`
	SegundoApellido   string `json:"segundoApellido" yaml:"segundoApellido"`
	TipoPersonal      *int   `json:"tipoPersonal,omitempty" yaml:"tipoPersonal,omitempty"`
	CedulaProfesional string `json:"cedulaProfesional" yaml:"cedulaProfesional"`
}

// InjuryReport is one injury or violence event attended by the establishment.
type InjuryReport struct {
	ID                   string    `json:"id" yaml:"id"`
	PatientID            string    `json:"patientId" yaml:"patientId"`
	ProfessionalID       string    `json:"professionalId" yaml:"professionalId"`
	Folio                *int      `json:"folio,omitempty" yaml:"folio,omitempty"`
	FechaEvento          time.Time `json:"fechaEvento" yaml:"fechaEvento"`
	HoraEvento           string    `json:"horaEvento" yaml:"horaEvento"`
	DiaFestivo           *int      `json:"diaFestivo,omitempty" yaml:"diaFestivo,omitempty"`
	SitioOcurrencia      *int      `json:"sitioOcurrencia,omitempty" yaml:"sitioOcurrencia,omitempty"`
	EntidadOcurrencia    string    `json:"entidadOcurrencia" yaml:"entidadOcurrencia"`
	MunicipioOcurrencia  *int      `json:"municipioOcurrencia,omitempty" yaml:"municipioOcurrencia,omitempty"`
	Intencionalidad      *int      `json:"intencionalidad,omitempty" yaml:"intencionalidad,omitempty"`
	AgenteLesion         *int      `json:"agenteLesion,omitempty" yaml:"agenteLesion,omitempty"`
	AreaAnatomica        *int      `json:"areaAnatomica,omitempty" yaml:"areaAnatomica,omitempty"`
	ConsecuenciaGravedad *int      `json:"consecuenciaGravedad,omitempty" yaml:"consecuenciaGravedad,omitempty"`
	FechaAtencion        time.Time `json:"fechaAtencion" yaml:"fechaAtencion"`
	ServicioAtencion     *int      `json:"servicioAtencion,omitempty" yaml:"servicioAtencion,omitempty"`
	TipoAtencion         []int     `json:"tipoAtencion,omitempty" yaml:"tipoAtencion,omitempty"`
	Destino              *int      `json:"destino,omitempty" yaml:"destino,omitempty"`
}

// Screening is one detection (screening) session.
type Screening struct {
	ID                    string    `json:"id" yaml:"id"`
	PatientID             string    `json:"patientId" yaml:"patientId"`
	ProfessionalID        string    `json:"professionalId" yaml:"professionalId"`
	FechaDeteccion        time.Time `json:"fechaDeteccion" yaml:"fechaDeteccion"`
	Peso                  *float64  `json:"peso,omitempty" yaml:"peso,omitempty"`
	Talla                 *int      `json:"talla,omitempty" yaml:"talla,omitempty"`
	CircunferenciaCintura *int      `json:"circunferenciaCintura,omitempty" yaml:"circunferenciaCintura,omitempty"`
	TensionSistolica      *int      `json:"tensionSistolica,omitempty" yaml:"tensionSistolica,omitempty"`
	TensionDiastolica     *int      `json:"tensionDiastolica,omitempty" yaml:"tensionDiastolica,omitempty"`
	Glucemia              *int      `json:"glucemia,omitempty" yaml:"glucemia,omitempty"`
	DeteccionDiabetes     *int      `json:"deteccionDiabetes,omitempty" yaml:"deteccionDiabetes,omitempty"`
	DeteccionHipertension *int      `json:"deteccionHipertension,omitempty" yaml:"deteccionHipertension,omitempty"`
	DeteccionObesidad     *int      `json:"deteccionObesidad,omitempty" yaml:"deteccionObesidad,omitempty"`
	DeteccionDepresion    *int      `json:"deteccionDepresion,omitempty" yaml:"deteccionDepresion,omitempty"`
	DeteccionCancerMama   *int      `json:"deteccionCancerMama,omitempty" yaml:"deteccionCancerMama,omitempty"`
	DeteccionVih          *int      `json:"deteccionVih,omitempty" yaml:"deteccionVih,omitempty"`
	Referido              *bool     `json:"referido,omitempty" yaml:"referido,omitempty"`
}

// OutpatientVisit is one outpatient consultation.
type OutpatientVisit struct {
	ID                     string    `json:"id" yaml:"id"`
	PatientID              string    `json:"patientId" yaml:"patientId"`
	ProfessionalID         string    `json:"professionalId" yaml:"professionalId"`
	FechaConsulta          time.Time `json:"fechaConsulta" yaml:"fechaConsulta"`
	PrimeraVez             *bool     `json:"primeraVez,omitempty" yaml:"primeraVez,omitempty"`
	Peso                   *float64  `json:"peso,omitempty" yaml:"peso,omitempty"`
	Talla                  *int      `json:"talla,omitempty" yaml:"talla,omitempty"`
	Diagnosticos           []string  `json:"diagnosticos,omitempty" yaml:"diagnosticos,omitempty"`
	PrimeraVezDiagnostico1 *bool     `json:"primeraVezDiagnostico1,omitempty" yaml:"primeraVezDiagnostico1,omitempty"`
	RelacionTemporal       *int      `json:"relacionTemporal,omitempty" yaml:"relacionTemporal,omitempty"`
	ReferidoPor            *int      `json:"referidoPor,omitempty" yaml:"referidoPor,omitempty"`
	Contrarreferido        *bool     `json:"contrarreferido,omitempty" yaml:"contrarreferido,omitempty"`
	Telemedicina           *bool     `json:"telemedicina,omitempty" yaml:"telemedicina,omitempty"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
