package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/records"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Migrate applies the embedded schema files in name order.
func Migrate(ctx context.Context, db DBTX) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Postgres implements the core persistence ports on PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ core.BatchStore     = (*Postgres)(nil)
	_ core.AuditSink      = (*Postgres)(nil)
	_ core.RecordSource   = (*Postgres)(nil)
	_ core.TenantResolver = (*Postgres)(nil)
)

// NewPostgres creates a store on an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ----------------------------------------------------------------------------
// BatchStore
// ----------------------------------------------------------------------------

func (p *Postgres) Create(ctx context.Context, b *core.Batch) error {
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return fmt.Errorf("batch id: %w", err)
	}
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO export_batches (id, tenant_id, period, status, doc) VALUES ($1, $2, $3, $4, $5)`,
		id, b.TenantID, b.Period.String(), string(b.Status), doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: batch %s", ErrDuplicate, b.ID)
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*core.Batch, error) {
	return getBatch(ctx, p.pool, id, false)
}

// Update locks the batch row for the duration of fn, so concurrent guide
// generations serialize their merges.
func (p *Postgres) Update(ctx context.Context, id string, fn func(*core.Batch) error) (*core.Batch, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	b, err := getBatch(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE export_batches SET status = $2, doc = $3, updated_at = now() WHERE id = $1`,
		toPgUUID(id), string(b.Status), doc); err != nil {
		return nil, fmt.Errorf("update batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

func getBatch(ctx context.Context, db DBTX, id string, forUpdate bool) (*core.Batch, error) {
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return nil, core.ErrBatchNotFound
	}

	q := `SELECT doc FROM export_batches WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}

	var doc []byte
	if err := db.QueryRow(ctx, q, pgID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrBatchNotFound
		}
		return nil, fmt.Errorf("select batch: %w", err)
	}

	var b core.Batch
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

// ----------------------------------------------------------------------------
// AuditSink
// ----------------------------------------------------------------------------

func (p *Postgres) Record(ctx context.Context, e core.AuditEntry) error {
	summary, err := json.Marshal(e.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO export_audit_log
			(id, batch_id, tenant_id, guide, action, severity, file_name, hash_sha256,
			 summary, actor, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		toPgUUID(e.ID), toPgUUID(e.BatchID), e.TenantID, e.Guide, string(e.Action), string(e.Severity),
		e.FileName, toPgText(e.HashSHA256), summary, toPgText(e.Actor), toPgText(e.IPAddress),
		toPgText(e.UserAgent), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (p *Postgres) ListByBatch(ctx context.Context, batchID string) ([]core.AuditEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, batch_id, tenant_id, guide, action, severity, file_name, hash_sha256,
		       summary, actor, ip_address, user_agent, created_at
		FROM export_audit_log
		WHERE batch_id = $1
		ORDER BY created_at, id`, toPgUUID(batchID))
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e                      core.AuditEntry
			id, bid                pgtype.UUID
			action, severity       string
			hash, actor, ip, agent pgtype.Text
			summary                []byte
		)
		if err := rows.Scan(&id, &bid, &e.TenantID, &e.Guide, &action, &severity, &e.FileName,
			&hash, &summary, &actor, &ip, &agent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = uuidToString(id)
		e.BatchID = uuidToString(bid)
		e.Action = core.AuditAction(action)
		e.Severity = core.AuditSeverity(severity)
		e.HashSHA256 = hash.String
		e.Actor = actor.String
		e.IPAddress = ip.String
		e.UserAgent = agent.String
		if err := json.Unmarshal(summary, &e.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ----------------------------------------------------------------------------
// Records and tenants
// ----------------------------------------------------------------------------

func (p *Postgres) EstablishmentCode(ctx context.Context, tenantID string) (string, error) {
	var code string
	err := p.pool.QueryRow(ctx, `SELECT establishment_code FROM tenants WHERE id = $1`, tenantID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select tenant: %w", err)
	}
	return code, nil
}

func (p *Postgres) InjuryReports(ctx context.Context, tenantID string, period core.Period) ([]records.InjuryReport, error) {
	return selectPeriod[records.InjuryReport](ctx, p.pool, "injury_reports", tenantID, period)
}

func (p *Postgres) Screenings(ctx context.Context, tenantID string, period core.Period) ([]records.Screening, error) {
	return selectPeriod[records.Screening](ctx, p.pool, "screenings", tenantID, period)
}

func (p *Postgres) OutpatientVisits(ctx context.Context, tenantID string, period core.Period) ([]records.OutpatientVisit, error) {
	return selectPeriod[records.OutpatientVisit](ctx, p.pool, "outpatient_visits", tenantID, period)
}

func (p *Postgres) Patients(ctx context.Context, tenantID string, ids []string) (map[string]records.Patient, error) {
	return selectByID(ctx, p.pool, "patients", tenantID, ids, func(r records.Patient) string { return r.ID })
}

func (p *Postgres) Professionals(ctx context.Context, tenantID string, ids []string) (map[string]records.Professional, error) {
	return selectByID(ctx, p.pool, "professionals", tenantID, ids, func(r records.Professional) string { return r.ID })
}

// selectPeriod reads the JSON documents of one record table for a month.
// table is always a package constant, never caller input.
func selectPeriod[T any](ctx context.Context, db DBTX, table, tenantID string, period core.Period) ([]T, error) {
	start := period.Start()
	end := start.AddDate(0, 1, 0)

	rows, err := db.Query(ctx,
		`SELECT doc FROM `+table+` WHERE tenant_id = $1 AND event_date >= $2 AND event_date < $3 ORDER BY event_date, id`,
		tenantID, pgtype.Date{Time: start, Valid: true}, pgtype.Date{Time: end, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return decodeDocs[T](table, docs)
}

func selectByID[T any](ctx context.Context, db DBTX, table, tenantID string, ids []string, key func(T) string) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := db.Query(ctx,
		`SELECT doc FROM `+table+` WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	items, err := decodeDocs[T](table, docs)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[key(it)] = it
	}
	return out, nil
}

func decodeDocs[T any](table string, docs [][]byte) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Helper functions for type conversion

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// Seed upserts every tenant and record in f in one round trip.
func (p *Postgres) Seed(ctx context.Context, f *Fixtures) error {
	batch := &pgx.Batch{}
	queue := func(table, tenantID, id string, eventDate *time.Time, v any) error {
		doc, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", table, id, err)
		}
		if eventDate == nil {
			batch.Queue(`INSERT INTO `+table+` (tenant_id, id, doc) VALUES ($1, $2, $3)
				ON CONFLICT (tenant_id, id) DO UPDATE SET doc = EXCLUDED.doc`, tenantID, id, doc)
			return nil
		}
		batch.Queue(`INSERT INTO `+table+` (tenant_id, id, event_date, doc) VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, id) DO UPDATE SET event_date = EXCLUDED.event_date, doc = EXCLUDED.doc`,
			tenantID, id, pgtype.Date{Time: *eventDate, Valid: true}, doc)
		return nil
	}

	for _, t := range f.Tenants {
		batch.Queue(`INSERT INTO tenants (id, name, establishment_code) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, establishment_code = EXCLUDED.establishment_code`,
			t.ID, t.Name, t.EstablishmentCode)

		for _, r := range t.Patients {
			if err := queue("patients", t.ID, r.ID, nil, r); err != nil {
				return err
			}
		}
		for _, r := range t.Professionals {
			if err := queue("professionals", t.ID, r.ID, nil, r); err != nil {
				return err
			}
		}
		for _, r := range t.InjuryReports {
			d := InjuryDate(r)
			if err := queue("injury_reports", t.ID, r.ID, &d, r); err != nil {
				return err
			}
		}
		for _, r := range t.Screenings {
			if err := queue("screenings", t.ID, r.ID, &r.FechaDeteccion, r); err != nil {
				return err
			}
		}
		for _, r := range t.OutpatientVisits {
			if err := queue("outpatient_visits", t.ID, r.ID, &r.FechaConsulta, r); err != nil {
				return err
			}
		}
	}

	if batch.Len() == 0 {
		return nil
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
