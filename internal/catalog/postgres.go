package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/giisexport/internal/core"
)

// Querier is the subset of *pgxpool.Pool the catalog needs.
type Querier interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Postgres reads the catalog_* tables created by the store migrations.
type Postgres struct {
	db Querier
}

var _ core.Catalog = (*Postgres)(nil)

// NewPostgres creates a catalog over db.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CountryExists(ctx context.Context, code string) (bool, error) {
	return p.exists(ctx, "catalog_countries", code)
}

func (p *Postgres) RegionExists(ctx context.Context, code string) (bool, error) {
	return p.exists(ctx, "catalog_regions", code)
}

func (p *Postgres) PersonnelTypeExists(ctx context.Context, code string) (bool, error) {
	return p.exists(ctx, "catalog_personnel_types", code)
}

func (p *Postgres) AffiliationExists(ctx context.Context, code string) (bool, error) {
	return p.exists(ctx, "catalog_affiliations", code)
}

func (p *Postgres) Establishment(ctx context.Context, clues string) (core.EstablishmentInfo, error) {
	var operational bool
	err := p.db.QueryRow(ctx,
		`SELECT operational FROM catalog_establishments WHERE clues = $1`,
		normalizeCLUES(clues)).Scan(&operational)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.EstablishmentInfo{}, nil
	}
	if err != nil {
		return core.EstablishmentInfo{}, fmt.Errorf("catalog establishment: %w", err)
	}
	return core.EstablishmentInfo{Found: true, Operational: operational}, nil
}

// exists ignores leading zeros, so "09" matches a stored "9". An empty table
// does not constrain codes. table is always a package constant.
func (p *Postgres) exists(ctx context.Context, table, code string) (bool, error) {
	var ok bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE ltrim(upper(code), '0') = ltrim($1::text, '0'))
			OR NOT EXISTS (SELECT 1 FROM `+table+`)`,
		normalizeCode(code)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("catalog %s: %w", table, err)
	}
	return ok, nil
}
