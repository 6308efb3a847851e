package core

// format.go holds the value formatting shared by every guide mapper.
// All helpers are pure and return "" for absent input so that the
// defaulting in CompleteRow can tell absent from present.

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

const (
	// GenericCURP is the reserved identifier for persons without one.
	GenericCURP = "XXXX999999XXXXXX99"

	// NamePlaceholder fills required name fields that were not captured.
	NamePlaceholder = "XX"

	// TextPlaceholder fills any other required text field that was not captured.
	TextPlaceholder = "XX"

	// RegionNotSpecified fills a required region that was not captured.
	RegionNotSpecified = "99"

	// RegionForeign is the region value for persons born abroad.
	RegionForeign = "88"

	// CountryMexico is the catalog code of the reporting country.
	CountryMexico = 142

	DateLayout = "02/01/2006"
	TimeLayout = "15:04"
)

// FormatDate renders a date as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatInt renders an optional integer.
func FormatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// FormatDecimal renders an optional decimal in its shortest exact form.
func FormatDecimal(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// FormatFlag renders an optional yes/no answer as 1/0.
func FormatFlag(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "1"
	}
	return "0"
}

// JoinInts joins multi-value codes with the list delimiter.
func JoinInts(delim string, vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, delim)
}

// JoinList joins non-empty values with the list delimiter.
func JoinList(delim string, vs []string) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, delim)
}

// NormalizeID uppercases and trims an identifier.
func NormalizeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// NormalizeName uppercases a person name, removes accents other than the Ñ
// and collapses runs of whitespace.
func NormalizeName(s string) string {
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 'Ñ' {
			b.WriteRune(r)
			continue
		}
		if r < unicode.MaxASCII {
			b.WriteRune(r)
			continue
		}
		plain, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), string(r))
		if err != nil {
			b.WriteRune(r)
			continue
		}
		b.WriteString(plain)
	}
	return b.String()
}

// DefaultFor returns the documented substitute for a required field that
// has no source value.
func DefaultFor(f schema.Field, mc MapContext) string {
	if f.Kind == schema.KindNumeric {
		return mc.NumericDefault
	}
	switch f.Rule {
	case schema.RuleNumericList, schema.RuleAffiliation:
		return mc.NumericDefault
	case schema.RuleCURP:
		return GenericCURP
	case schema.RuleCLUES:
		if mc.EstablishmentCode == "" {
			return NoEstablishmentCode
		}
		return mc.EstablishmentCode
	case schema.RuleRegion:
		return RegionNotSpecified
	case schema.RuleName:
		return NamePlaceholder
	default:
		return TextPlaceholder
	}
}

// CompleteRow builds a row holding every schema field. Source values are
// trimmed; absent required fields get DefaultFor unless one of the
// context's exceptions holds for the source values, absent optional fields
// render empty. Keys in src that are not schema fields are dropped.
func CompleteRow(sch *schema.Schema, ref string, src map[string]string, mc MapContext) Row {
	source := make(map[string]string, sch.Len())
	for _, f := range sch.Fields() {
		source[f.Name] = strings.TrimSpace(src[f.Name])
	}
	raw := Row{ref: ref, vals: source}

	vals := make(map[string]string, sch.Len())
	for _, f := range sch.Fields() {
		v := source[f.Name]
		if v == "" && f.Required && !exempt(mc.Exceptions, f.Name, raw) {
			v = DefaultFor(f, mc)
		}
		vals[f.Name] = v
	}
	return Row{ref: ref, vals: vals}
}
