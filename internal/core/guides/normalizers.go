package guides

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entidades maps federal entity names to their two-digit INEGI code.
var Entidades = map[string]string{
	"aguascalientes":      "01",
	"baja california":     "02",
	"baja california sur": "03",
	"campeche":            "04",
	"coahuila":            "05",
	"colima":              "06",
	"chiapas":             "07",
	"chihuahua":           "08",
	"ciudad de mexico":    "09",
	"cdmx":                "09",
	"distrito federal":    "09",
	"durango":             "10",
	"guanajuato":          "11",
	"guerrero":            "12",
	"hidalgo":             "13",
	"jalisco":             "14",
	"mexico":              "15",
	"estado de mexico":    "15",
	"michoacan":           "16",
	"morelos":             "17",
	"nayarit":             "18",
	"nuevo leon":          "19",
	"oaxaca":              "20",
	"puebla":              "21",
	"queretaro":           "22",
	"quintana roo":        "23",
	"san luis potosi":     "24",
	"sinaloa":             "25",
	"sonora":              "26",
	"tabasco":             "27",
	"tamaulipas":          "28",
	"tlaxcala":            "29",
	"veracruz":            "30",
	"yucatan":             "31",
	"zacatecas":           "32",
	"extranjero":          "88",
	"no especificado":     "99",
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeEntidad converts a federal entity name or code to its two-digit
// code. Numeric input is zero-padded. Unknown names return "" so the
// required-field default applies.
func NormalizeEntidad(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 99 {
			return ""
		}
		return padCode(n)
	}

	key, _, err := transform.String(foldAccents, strings.ToLower(strings.Join(strings.Fields(s), " ")))
	if err != nil {
		return ""
	}
	return Entidades[key]
}

func padCode(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
