package core

// validation.go checks mapped rows against their guide schema.
//
// Every field goes through up to three independent checks:
//  1. Required: empty required fields are blockers unless a guide exception holds
//  2. Max length: runes for text, digits for numeric values
//  3. Rule: the semantic check named by the field's schema rule
//
// Findings are returned as ValidationIssue values tagged blocker or warning.
// Nothing here returns an error: catalog failures degrade to warnings and a
// nil catalog skips catalog checks entirely.

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

// Issue causes. Stable strings: they end up in excluded-row reports.
const (
	CauseRequired        = "required field empty"
	CauseMaxLength       = "max length exceeded"
	CauseNotNumber       = "not a number"
	CauseNotDecimal      = "not a decimal number"
	CauseLength          = "invalid length"
	CauseFormat          = "invalid format"
	CauseGenericCURP     = "generic CURP used"
	CauseNameTooShort    = "name too short"
	CauseNameCharset     = "invalid characters in name"
	CauseNamePunctuation = "repeated punctuation in name"
	CauseDateFormat      = "date must be dd/mm/yyyy"
	CauseDateInvalid     = "date does not exist"
	CauseDateAfterPeriod = "date after reporting period"
	CauseTimeFormat      = "time must be HH:MM"
	CauseUnknownCode     = "code not in catalog"
	CauseEstablishment   = "establishment not in catalog"
	CauseNotOperational  = "establishment not operational"
	CauseCatalogFailure  = "catalog unavailable, check skipped"
	CauseForeignRegion   = "birth region must be 88 for foreign country"
	CauseAgeRange        = "age outside 0-120"
	CauseDiagnosisFormat = "invalid diagnosis code"
)

var (
	curpPattern      = regexp.MustCompile(`^[A-Z][AEIOUX][A-Z]{2}\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])[HMX](AS|BC|BS|CC|CL|CM|CS|CH|DF|DG|GT|GR|HG|JC|MC|MN|MS|NT|NL|OC|PL|QT|QR|SP|SL|SR|TC|TS|TL|VZ|YN|ZS|NE)[B-DF-HJ-NP-TV-Z]{3}[0-9A-Z]\d$`)
	cluesPattern     = regexp.MustCompile(`^[A-Z]{5}\d{6}$`)
	datePattern      = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	timePattern      = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	diagnosisPattern = regexp.MustCompile(`^[A-Z]\d{2}[0-9X]?$`)
)

const (
	curpLength    = 18
	nameMinLength = 2
	maxAge        = 120
)

// ValidateOptions carries the optional collaborators of ValidateRow.
type ValidateOptions struct {
	Catalog    Catalog
	Exceptions []RequiredException

	// PeriodEnd enables the date-after-period warning when set.
	PeriodEnd time.Time
}

// ValidateRow returns every issue found in row, in schema field order.
// rowIndex is the row's 0-based position in the guide's mapped rows.
func ValidateRow(ctx context.Context, guide string, sch *schema.Schema, row Row, rowIndex int, opts ValidateOptions) []ValidationIssue {
	v := rowValidator{
		ctx:   ctx,
		guide: guide,
		sch:   sch,
		row:   row,
		index: rowIndex,
		opts:  opts,
	}
	for _, f := range sch.Fields() {
		v.field(f)
	}
	return v.issues
}

type rowValidator struct {
	ctx    context.Context
	guide  string
	sch    *schema.Schema
	row    Row
	index  int
	opts   ValidateOptions
	issues []ValidationIssue
}

func (v *rowValidator) add(f schema.Field, value, cause string, sev Severity) {
	v.issues = append(v.issues, ValidationIssue{
		Guide:    v.guide,
		RowIndex: v.index,
		RecordID: v.row.Ref(),
		Field:    f.Name,
		Value:    value,
		Cause:    cause,
		Severity: sev,
	})
}

func (v *rowValidator) blocker(f schema.Field, value, cause string) {
	v.add(f, value, cause, SeverityBlocker)
}

func (v *rowValidator) warning(f schema.Field, value, cause string) {
	v.add(f, value, cause, SeverityWarning)
}

func (v *rowValidator) field(f schema.Field) {
	value := strings.TrimSpace(v.row.Get(f.Name))

	if value == "" {
		if f.Required && !exempt(v.opts.Exceptions, f.Name, v.row) {
			v.blocker(f, value, CauseRequired)
		}
		return
	}

	if f.MaxLength > 0 && valueLength(f, value) > f.MaxLength {
		v.blocker(f, value, CauseMaxLength)
	}

	if f.Kind == schema.KindNumeric && f.Rule != schema.RuleDecimal {
		if _, err := strconv.Atoi(value); err != nil {
			v.blocker(f, value, CauseNotNumber)
			return
		}
	}

	switch f.Rule {
	case schema.RuleCURP:
		v.curp(f, value)
	case schema.RuleCLUES:
		v.clues(f, value)
	case schema.RuleName:
		v.name(f, value)
	case schema.RuleDate:
		v.date(f, value)
	case schema.RuleTime:
		if !timePattern.MatchString(value) {
			v.blocker(f, value, CauseTimeFormat)
		}
	case schema.RuleCountry:
		v.country(f, value)
	case schema.RuleRegion:
		v.region(f, value)
	case schema.RulePersonnel:
		v.lookup(f, value, v.catalogPersonnel)
	case schema.RuleAffiliation:
		v.affiliation(f, value)
	case schema.RuleNumericList:
		v.numericList(f, value)
	case schema.RuleDecimal:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			v.blocker(f, value, CauseNotDecimal)
		}
	case schema.RuleAge:
		v.age(f, value)
	case schema.RuleDiagnosisCode:
		if !diagnosisPattern.MatchString(value) {
			v.blocker(f, value, CauseDiagnosisFormat)
		}
	}
}

// valueLength counts runes for text and digits for numbers, so a negative
// default such as -1 fits a one-digit column.
func valueLength(f schema.Field, value string) int {
	if f.Kind == schema.KindNumeric {
		value = strings.TrimPrefix(value, "-")
	}
	return utf8.RuneCountInString(value)
}

func (v *rowValidator) curp(f schema.Field, value string) {
	if value == GenericCURP {
		v.warning(f, value, CauseGenericCURP)
		return
	}
	if len(value) != curpLength {
		v.blocker(f, value, CauseLength)
		return
	}
	if !curpPattern.MatchString(value) {
		v.blocker(f, value, CauseFormat)
	}
}

func (v *rowValidator) clues(f schema.Field, value string) {
	if value == NoEstablishmentCode {
		return
	}
	if len(value) != EstablishmentCodeLength {
		v.blocker(f, value, CauseLength)
		return
	}
	if !cluesPattern.MatchString(value) {
		v.blocker(f, value, CauseFormat)
		return
	}
	if v.opts.Catalog == nil {
		return
	}
	info, err := v.opts.Catalog.Establishment(v.ctx, value)
	switch {
	case err != nil:
		v.warning(f, value, CauseCatalogFailure)
	case !info.Found:
		v.blocker(f, value, CauseEstablishment)
	case !info.Operational:
		v.warning(f, value, CauseNotOperational)
	}
}

func (v *rowValidator) name(f schema.Field, value string) {
	if f.PairedWith != "" && strings.TrimSpace(v.row.Get(f.PairedWith)) == GenericCURP {
		return
	}
	if value == NamePlaceholder {
		return
	}
	if utf8.RuneCountInString(value) < nameMinLength {
		v.blocker(f, value, CauseNameTooShort)
		return
	}

	var prev rune
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z', r == 'Ñ', r == ' ':
		case isNamePunct(r):
			if r == prev {
				v.blocker(f, value, CauseNamePunctuation)
				return
			}
		default:
			v.blocker(f, value, CauseNameCharset)
			return
		}
		prev = r
	}
}

func isNamePunct(r rune) bool {
	return r == '.' || r == '-' || r == '\'' || r == '/'
}

func (v *rowValidator) date(f schema.Field, value string) {
	if !datePattern.MatchString(value) {
		v.blocker(f, value, CauseDateFormat)
		return
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		v.blocker(f, value, CauseDateInvalid)
		return
	}
	if f.NotAfterPeriod && !v.opts.PeriodEnd.IsZero() && t.After(v.opts.PeriodEnd) {
		v.warning(f, value, CauseDateAfterPeriod)
	}
}

// notApplicable reports values that stand for "unknown" in coded numeric
// fields and never go to the catalog.
func notApplicable(value string) bool {
	return value == "-1" || value == "0"
}

func (v *rowValidator) country(f schema.Field, value string) {
	if notApplicable(value) {
		return
	}
	v.lookup(f, value, v.catalogCountry)
}

func (v *rowValidator) region(f schema.Field, value string) {
	if f.PairedWith != "" {
		country := strings.TrimSpace(v.row.Get(f.PairedWith))
		if n, err := strconv.Atoi(country); err == nil && n > 0 && n != CountryMexico && value != RegionForeign {
			v.blocker(f, value, CauseForeignRegion)
			return
		}
	}
	if value == RegionForeign || value == RegionNotSpecified {
		return
	}
	v.lookup(f, value, v.catalogRegion)
}

func (v *rowValidator) affiliation(f schema.Field, value string) {
	for _, part := range strings.Split(value, v.sch.ListDelimiter()) {
		if _, err := strconv.Atoi(part); err != nil {
			v.blocker(f, value, CauseNotNumber)
			return
		}
	}
	for _, part := range strings.Split(value, v.sch.ListDelimiter()) {
		if notApplicable(part) {
			continue
		}
		if !v.lookup(f, part, v.catalogAffiliation) {
			return
		}
	}
}

func (v *rowValidator) numericList(f schema.Field, value string) {
	for _, part := range strings.Split(value, v.sch.ListDelimiter()) {
		if _, err := strconv.Atoi(part); err != nil {
			v.blocker(f, value, CauseNotNumber)
			return
		}
	}
}

func (v *rowValidator) age(f schema.Field, value string) {
	n, err := strconv.Atoi(value)
	if err != nil || n == -1 {
		return
	}
	if n < 0 || n > maxAge {
		v.warning(f, value, CauseAgeRange)
	}
}

type catalogCheck func(ctx context.Context, code string) (bool, error)

func (v *rowValidator) catalogCountry(ctx context.Context, code string) (bool, error) {
	return v.opts.Catalog.CountryExists(ctx, code)
}

func (v *rowValidator) catalogRegion(ctx context.Context, code string) (bool, error) {
	return v.opts.Catalog.RegionExists(ctx, code)
}

func (v *rowValidator) catalogPersonnel(ctx context.Context, code string) (bool, error) {
	return v.opts.Catalog.PersonnelTypeExists(ctx, code)
}

func (v *rowValidator) catalogAffiliation(ctx context.Context, code string) (bool, error) {
	return v.opts.Catalog.AffiliationExists(ctx, code)
}

// lookup runs a catalog check and records its outcome. It reports whether
// further lookups for the same field are worthwhile.
func (v *rowValidator) lookup(f schema.Field, value string, check catalogCheck) bool {
	if v.opts.Catalog == nil || notApplicable(value) {
		return true
	}
	ok, err := check(v.ctx, value)
	if err != nil {
		v.warning(f, value, CauseCatalogFailure)
		return false
	}
	if !ok {
		v.blocker(f, value, CauseUnknownCode)
		return false
	}
	return true
}
