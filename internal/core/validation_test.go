package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

func TestValidateRow(t *testing.T) {
	text := func(name string, rule schema.Rule) schema.Field {
		return schema.Field{Name: name, Kind: schema.KindText, Rule: rule}
	}
	num := func(name string, maxLen int, rule schema.Rule) schema.Field {
		return schema.Field{Name: name, Kind: schema.KindNumeric, MaxLength: maxLen, Rule: rule}
	}
	required := func(f schema.Field) schema.Field {
		f.Required = true
		return f
	}
	paired := func(f schema.Field, with string) schema.Field {
		f.PairedWith = with
		return f
	}

	periodEnd := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	eventDate := schema.Field{Name: "fecha", Kind: schema.KindText, Rule: schema.RuleDate, NotAfterPeriod: true}

	tests := []struct {
		name   string
		fields []schema.Field
		row    map[string]string
		nilCat bool
		want   []string
	}{
		// Required and length.
		{"required empty", []schema.Field{required(text("a", schema.RuleNone))}, map[string]string{"a": " "}, false,
			[]string{"a:required field empty:blocker"}},
		{"optional empty", []schema.Field{text("a", schema.RuleNone)}, map[string]string{}, false, nil},
		{"text too long", []schema.Field{{Name: "a", Kind: schema.KindText, MaxLength: 4}}, map[string]string{"a": "ÑAÑAS"}, false,
			[]string{"a:max length exceeded:blocker"}},
		{"text at limit counts runes", []schema.Field{{Name: "a", Kind: schema.KindText, MaxLength: 4}}, map[string]string{"a": "ÑAÑA"}, false, nil},
		{"negative default fits one digit", []schema.Field{num("a", 1, schema.RuleNone)}, map[string]string{"a": "-1"}, false, nil},
		{"numeric too long", []schema.Field{num("a", 2, schema.RuleNone)}, map[string]string{"a": "123"}, false,
			[]string{"a:max length exceeded:blocker"}},
		{"numeric not a number", []schema.Field{num("a", 0, schema.RuleNone)}, map[string]string{"a": "12a"}, false,
			[]string{"a:not a number:blocker"}},

		// CURP.
		{"curp valid", []schema.Field{text("curp", schema.RuleCURP)}, map[string]string{"curp": "PEGJ900517HDFRRN09"}, false, nil},
		{"curp generic", []schema.Field{text("curp", schema.RuleCURP)}, map[string]string{"curp": GenericCURP}, false,
			[]string{"curp:generic CURP used:warning"}},
		{"curp short", []schema.Field{text("curp", schema.RuleCURP)}, map[string]string{"curp": "PEGJ9005"}, false,
			[]string{"curp:invalid length:blocker"}},
		{"curp malformed", []schema.Field{text("curp", schema.RuleCURP)}, map[string]string{"curp": "123456789012345678"}, false,
			[]string{"curp:invalid format:blocker"}},

		// CLUES.
		{"clues sentinel", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": NoEstablishmentCode}, false, nil},
		{"clues operational", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": "DFSSA001234"}, false, nil},
		{"clues wrong length", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": "DFSSA00123"}, false,
			[]string{"clues:invalid length:blocker"}},
		{"clues malformed", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": "DF5SA001234"}, false,
			[]string{"clues:invalid format:blocker"}},
		{"clues unknown", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": "DFSSA000001"}, false,
			[]string{"clues:establishment not in catalog:blocker"}},
		{"clues not operational", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": "DFSSA009999"}, false,
			[]string{"clues:establishment not operational:warning"}},
		{"clues without catalog", []schema.Field{text("clues", schema.RuleCLUES)}, map[string]string{"clues": "DFSSA000001"}, true, nil},

		// Names.
		{"name with accents", []schema.Field{text("nombre", schema.RuleName)}, map[string]string{"nombre": "MARÍA JOSÉ"}, false,
			[]string{"nombre:invalid characters in name:blocker"}},
		{"name with Ñ", []schema.Field{text("nombre", schema.RuleName)}, map[string]string{"nombre": "NUÑEZ O'BRIEN"}, false, nil},
		{"name placeholder", []schema.Field{text("nombre", schema.RuleName)}, map[string]string{"nombre": NamePlaceholder}, false, nil},
		{"name too short", []schema.Field{text("nombre", schema.RuleName)}, map[string]string{"nombre": "J"}, false,
			[]string{"nombre:name too short:blocker"}},
		{"name digits", []schema.Field{text("nombre", schema.RuleName)}, map[string]string{"nombre": "JUAN2"}, false,
			[]string{"nombre:invalid characters in name:blocker"}},
		{"name repeated punctuation", []schema.Field{text("nombre", schema.RuleName)}, map[string]string{"nombre": "JUAN--PABLO"}, false,
			[]string{"nombre:repeated punctuation in name:blocker"}},
		{"name skipped for generic curp",
			[]schema.Field{text("curp", schema.RuleCURP), paired(text("nombre", schema.RuleName), "curp")},
			map[string]string{"curp": GenericCURP, "nombre": "J"}, false,
			[]string{"curp:generic CURP used:warning"}},

		// Dates and times.
		{"date valid", []schema.Field{eventDate}, map[string]string{"fecha": "15/03/2024"}, false, nil},
		{"date iso", []schema.Field{eventDate}, map[string]string{"fecha": "2024-03-15"}, false,
			[]string{"fecha:date must be dd/mm/yyyy:blocker"}},
		{"date impossible", []schema.Field{eventDate}, map[string]string{"fecha": "31/02/2024"}, false,
			[]string{"fecha:date does not exist:blocker"}},
		{"date after period", []schema.Field{eventDate}, map[string]string{"fecha": "01/04/2024"}, false,
			[]string{"fecha:date after reporting period:warning"}},
		{"birth date after period is fine", []schema.Field{text("nacimiento", schema.RuleDate)}, map[string]string{"nacimiento": "01/04/2024"}, false, nil},
		{"time valid", []schema.Field{text("hora", schema.RuleTime)}, map[string]string{"hora": "08:30"}, false, nil},
		{"time invalid", []schema.Field{text("hora", schema.RuleTime)}, map[string]string{"hora": "25:00"}, false,
			[]string{"hora:time must be HH:MM:blocker"}},

		// Catalog codes.
		{"country known", []schema.Field{num("pais", 3, schema.RuleCountry)}, map[string]string{"pais": "142"}, false, nil},
		{"country unknown", []schema.Field{num("pais", 3, schema.RuleCountry)}, map[string]string{"pais": "999"}, false,
			[]string{"pais:code not in catalog:blocker"}},
		{"country not applicable", []schema.Field{num("pais", 3, schema.RuleCountry)}, map[string]string{"pais": "-1"}, false, nil},
		{"country without catalog", []schema.Field{num("pais", 3, schema.RuleCountry)}, map[string]string{"pais": "999"}, true, nil},
		{"personnel unknown", []schema.Field{num("tipo", 2, schema.RulePersonnel)}, map[string]string{"tipo": "77"}, false,
			[]string{"tipo:code not in catalog:blocker"}},

		// Regions.
		{"region foreign country needs 88",
			[]schema.Field{num("pais", 3, schema.RuleCountry), paired(text("entidad", schema.RuleRegion), "pais")},
			map[string]string{"pais": "840", "entidad": "09"}, false,
			[]string{"entidad:birth region must be 88 for foreign country:blocker"}},
		{"region foreign ok",
			[]schema.Field{num("pais", 3, schema.RuleCountry), paired(text("entidad", schema.RuleRegion), "pais")},
			map[string]string{"pais": "840", "entidad": RegionForeign}, false, nil},
		{"region national",
			[]schema.Field{num("pais", 3, schema.RuleCountry), paired(text("entidad", schema.RuleRegion), "pais")},
			map[string]string{"pais": "142", "entidad": "09"}, false, nil},
		{"region unknown", []schema.Field{text("entidad", schema.RuleRegion)}, map[string]string{"entidad": "45"}, false,
			[]string{"entidad:code not in catalog:blocker"}},
		{"region not specified", []schema.Field{text("entidad", schema.RuleRegion)}, map[string]string{"entidad": RegionNotSpecified}, false, nil},

		// Lists.
		{"affiliation list", []schema.Field{text("der", schema.RuleAffiliation)}, map[string]string{"der": "1&2"}, false, nil},
		{"affiliation not numeric", []schema.Field{text("der", schema.RuleAffiliation)}, map[string]string{"der": "1&x"}, false,
			[]string{"der:not a number:blocker"}},
		{"affiliation unknown", []schema.Field{text("der", schema.RuleAffiliation)}, map[string]string{"der": "1&77&88"}, false,
			[]string{"der:code not in catalog:blocker"}},
		{"numeric list", []schema.Field{text("tipos", schema.RuleNumericList)}, map[string]string{"tipos": "1&2&3"}, false, nil},
		{"numeric list bad", []schema.Field{text("tipos", schema.RuleNumericList)}, map[string]string{"tipos": "1&&3"}, false,
			[]string{"tipos:not a number:blocker"}},

		// Numbers.
		{"decimal", []schema.Field{num("peso", 6, schema.RuleDecimal)}, map[string]string{"peso": "71.5"}, false, nil},
		{"decimal comma", []schema.Field{num("peso", 6, schema.RuleDecimal)}, map[string]string{"peso": "71,5"}, false,
			[]string{"peso:not a decimal number:blocker"}},
		{"age unknown", []schema.Field{num("edad", 3, schema.RuleAge)}, map[string]string{"edad": "-1"}, false, nil},
		{"age out of range", []schema.Field{num("edad", 3, schema.RuleAge)}, map[string]string{"edad": "130"}, false,
			[]string{"edad:age outside 0-120:warning"}},
		{"diagnosis", []schema.Field{text("dx", schema.RuleDiagnosisCode)}, map[string]string{"dx": "J06X"}, false, nil},
		{"diagnosis dotted", []schema.Field{text("dx", schema.RuleDiagnosisCode)}, map[string]string{"dx": "J06.9"}, false,
			[]string{"dx:invalid diagnosis code:blocker"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sch := testSchema(t, tt.fields...)
			opts := ValidateOptions{Catalog: newFakeCatalog(), PeriodEnd: periodEnd}
			if tt.nilCat {
				opts.Catalog = nil
			}
			issues := ValidateRow(context.Background(), "TST", sch, NewRow("r1", tt.row), 4, opts)
			if tt.want == nil {
				assert.Empty(t, causes(issues))
				return
			}
			assert.Equal(t, tt.want, causes(issues))
		})
	}
}

func TestValidateRow_IssueCarriesPosition(t *testing.T) {
	sch := testSchema(t, schema.Field{Name: "a", Kind: schema.KindText, Required: true})
	issues := ValidateRow(context.Background(), "LES", sch, NewRow("rec-9", nil), 7, ValidateOptions{})

	assert.Equal(t, []ValidationIssue{{
		Guide:    "LES",
		RowIndex: 7,
		RecordID: "rec-9",
		Field:    "a",
		Cause:    CauseRequired,
		Severity: SeverityBlocker,
	}}, issues)
}

func TestValidateRow_Exceptions(t *testing.T) {
	sch := testSchema(t,
		schema.Field{Name: "primer", Kind: schema.KindText},
		schema.Field{Name: "segundo", Kind: schema.KindText, Required: true},
	)
	exceptions := []RequiredException{{
		Field: "segundo",
		When:  func(r Row) bool { return r.Get("primer") != "" },
	}}
	opts := ValidateOptions{Exceptions: exceptions}

	issues := ValidateRow(context.Background(), "TST", sch, NewRow("", map[string]string{"primer": "PEREZ"}), 0, opts)
	assert.Empty(t, issues)

	issues = ValidateRow(context.Background(), "TST", sch, NewRow("", nil), 0, opts)
	assert.Equal(t, []string{"segundo:required field empty:blocker"}, causes(issues))
}

func TestValidateRow_CatalogFailureIsWarning(t *testing.T) {
	sch := testSchema(t,
		schema.Field{Name: "clues", Kind: schema.KindText, Rule: schema.RuleCLUES},
		schema.Field{Name: "pais", Kind: schema.KindNumeric, Rule: schema.RuleCountry},
		schema.Field{Name: "der", Kind: schema.KindText, Rule: schema.RuleAffiliation},
	)
	cat := newFakeCatalog()
	cat.err = errCatalogDown

	row := NewRow("", map[string]string{"clues": "DFSSA001234", "pais": "142", "der": "1&2"})
	issues := ValidateRow(context.Background(), "TST", sch, row, 0, ValidateOptions{Catalog: cat})

	assert.Equal(t, []string{
		"clues:" + CauseCatalogFailure + ":warning",
		"pais:" + CauseCatalogFailure + ":warning",
		"der:" + CauseCatalogFailure + ":warning",
	}, causes(issues), "one warning per field, lookups stop after the first failure")
}
