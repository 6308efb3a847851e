package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/giisexport/internal/schema"
)

// fakeCatalog answers from fixed sets. err, when set, fails every lookup.
type fakeCatalog struct {
	countries      map[string]bool
	regions        map[string]bool
	personnel      map[string]bool
	affiliations   map[string]bool
	establishments map[string]EstablishmentInfo
	err            error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		countries:    map[string]bool{"142": true, "840": true},
		regions:      map[string]bool{"09": true, "15": true},
		personnel:    map[string]bool{"1": true, "30": true},
		affiliations: map[string]bool{"1": true, "2": true},
		establishments: map[string]EstablishmentInfo{
			"DFSSA001234": {Found: true, Operational: true},
			"DFSSA009999": {Found: true, Operational: false},
		},
	}
}

func (c *fakeCatalog) CountryExists(_ context.Context, code string) (bool, error) {
	return c.countries[code], c.err
}

func (c *fakeCatalog) RegionExists(_ context.Context, code string) (bool, error) {
	return c.regions[code], c.err
}

func (c *fakeCatalog) PersonnelTypeExists(_ context.Context, code string) (bool, error) {
	return c.personnel[code], c.err
}

func (c *fakeCatalog) AffiliationExists(_ context.Context, code string) (bool, error) {
	return c.affiliations[code], c.err
}

func (c *fakeCatalog) Establishment(_ context.Context, clues string) (EstablishmentInfo, error) {
	return c.establishments[clues], c.err
}

var errCatalogDown = errors.New("catalog down")

// testSchema builds a schema from fields, numbering them in order.
func testSchema(t *testing.T, fields ...schema.Field) *schema.Schema {
	t.Helper()
	for i := range fields {
		fields[i].ID = i + 1
	}
	s, err := schema.Build(schema.Definition{
		Guide:         "TST",
		Delimiter:     "|",
		ListDelimiter: "&",
		Fields:        fields,
	})
	require.NoError(t, err)
	return s
}

// causes flattens issues to "field:cause:severity" for compact assertions.
func causes(issues []ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Field+":"+is.Cause+":"+string(is.Severity))
	}
	return out
}
