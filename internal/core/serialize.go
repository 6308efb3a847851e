package core

import (
	"strings"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

// Serialize renders rows in the official text layout: a header line of field
// names followed by one line per row, all joined by the schema delimiter in
// schema order. Missing fields render as empty cells. Delimiters and line
// breaks inside values are replaced by spaces so every line keeps exactly
// one cell per field.
func Serialize(sch *schema.Schema, rows []Row) string {
	delim := sch.Delimiter()
	names := sch.Names()

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(names, delim))

	for _, row := range rows {
		cells := row.Values(sch)
		for i := range cells {
			cells[i] = cleanCell(cells[i], delim)
		}
		lines = append(lines, strings.Join(cells, delim))
	}

	return strings.Join(lines, "\n")
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func cleanCell(v, delim string) string {
	if v == "" {
		return v
	}
	v = lineBreaks.Replace(v)
	if strings.Contains(v, delim) {
		v = strings.ReplaceAll(v, delim, " ")
	}
	return v
}

// Values returns the row's cells in schema order. Keys the schema does not
// name are not returned.
func (r Row) Values(sch *schema.Schema) []string {
	names := sch.Names()
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = r.vals[name]
	}
	return out
}
