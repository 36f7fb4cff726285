// Package postgres is the pgx-backed storage backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/storage"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Kind is the registered backend kind.
const Kind = "postgres"

// measurementChunk keeps one INSERT well under the 65535 bind-parameter cap.
const measurementChunk = 1000

/*
Repo implements storage.Repository for Postgres.

Identity conflicts are resolved with INSERT ... ON CONFLICT DO NOTHING, and
merges of existing rows read them with SELECT ... FOR UPDATE so concurrent
ingests for the same client serialize on the row instead of losing updates.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register(Kind, New)
}

// New creates a pool for cfg.DSN and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	for _, f := range vocab.QualityFlags() {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO quality_flags (quality_flag_id, code, label, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (quality_flag_id) DO UPDATE SET
				code = EXCLUDED.code, label = EXCLUDED.label, description = EXCLUDED.description`,
			f.ID(), f.Code(), f.Label(), f.Description())
		if err != nil {
			return fmt.Errorf("seed quality flag %s: %w", f.Code(), err)
		}
	}
	return nil
}

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgTx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) UpsertClient(ctx context.Context, c storage.Client) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO clients (client_id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = COALESCE(EXCLUDED.display_name, clients.display_name)`,
		c.ID, c.Email, nullString(c.DisplayName))
	return err
}

func (t *tx) InsertWaterbody(ctx context.Context, wb entity.Waterbody) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO waterbodies (waterbody_id, client_id, name, type, confidence, provenance)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, name, type) DO NOTHING`,
		wb.ID, wb.ClientID, wb.Name, string(wb.Type), wb.Confidence, nonNil(wb.Provenance))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *tx) LockWaterbody(ctx context.Context, clientID, name string, typ vocab.WaterbodyType) (entity.Waterbody, error) {
	wb := entity.Waterbody{ClientID: clientID, Name: name, Type: typ}
	err := t.tx.QueryRow(ctx, `
		SELECT waterbody_id, confidence, provenance FROM waterbodies
		WHERE client_id = $1 AND name = $2 AND type = $3
		FOR UPDATE`,
		clientID, name, string(typ)).Scan(&wb.ID, &wb.Confidence, &wb.Provenance)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Waterbody{}, apperrors.ErrNotFound
	}
	return wb, err
}

func (t *tx) UpdateWaterbody(ctx context.Context, wb entity.Waterbody) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE waterbodies SET confidence = $1, provenance = $2 WHERE waterbody_id = $3`,
		wb.Confidence, nonNil(wb.Provenance), wb.ID)
	return err
}

func (t *tx) InsertSamplingPoint(ctx context.Context, sp entity.SamplingPoint) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO sampling_points
			(sampling_point_id, client_id, waterbody_id, code, name, lat, lon, depth_m)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (client_id, code) DO NOTHING`,
		sp.ID, sp.ClientID, nullString(sp.WaterbodyID), sp.Code, nullString(sp.Name),
		sp.Lat, sp.Lon, sp.Depth)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *tx) LockSamplingPoint(ctx context.Context, clientID, code string) (entity.SamplingPoint, error) {
	sp := entity.SamplingPoint{ClientID: clientID, Code: code}
	var wbID, name *string
	err := t.tx.QueryRow(ctx, `
		SELECT sampling_point_id, waterbody_id, name, lat, lon, depth_m
		FROM sampling_points WHERE client_id = $1 AND code = $2
		FOR UPDATE`,
		clientID, code).Scan(&sp.ID, &wbID, &name, &sp.Lat, &sp.Lon, &sp.Depth)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.SamplingPoint{}, apperrors.ErrNotFound
	}
	if err != nil {
		return entity.SamplingPoint{}, err
	}
	if wbID != nil {
		sp.WaterbodyID = *wbID
	}
	if name != nil {
		sp.Name = *name
	}
	return sp, nil
}

func (t *tx) UpdateSamplingPoint(ctx context.Context, sp entity.SamplingPoint) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sampling_points
		SET waterbody_id = $1, name = $2, lat = $3, lon = $4, depth_m = $5
		WHERE sampling_point_id = $6`,
		nullString(sp.WaterbodyID), nullString(sp.Name), sp.Lat, sp.Lon, sp.Depth, sp.ID)
	return err
}

func (t *tx) InsertDataset(ctx context.Context, d storage.Dataset) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO datasets
			(dataset_id, client_id, waterbody_id, file_name, sheet_name, row_count, col_count, content_hash, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (content_hash) DO NOTHING`,
		d.ID, d.ClientID, nullString(d.WaterbodyID), d.FileName, nullString(d.SheetName),
		d.RowCount, d.ColCount, nullString(d.Fingerprint), d.UploadedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *tx) DatasetByFingerprint(ctx context.Context, clientID, fp string) (string, error) {
	return t.oneID(ctx, `SELECT dataset_id FROM datasets WHERE content_hash = $1 AND client_id = $2 FOR UPDATE`, fp, clientID)
}

func (t *tx) LatestDataset(ctx context.Context, clientID, waterbodyID string) (string, error) {
	return t.oneID(ctx, `
		SELECT dataset_id FROM datasets
		WHERE client_id = $1 AND waterbody_id = $2
		ORDER BY uploaded_at DESC
		LIMIT 1
		FOR UPDATE`, clientID, waterbodyID)
}

func (t *tx) DatasetExists(ctx context.Context, clientID, id string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM datasets WHERE dataset_id = $1 AND client_id = $2)`,
		id, clientID).Scan(&ok)
	return ok, err
}

func (t *tx) TouchDataset(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE datasets SET uploaded_at = $1 WHERE dataset_id = $2`, at, id)
	return err
}

func (t *tx) UpsertParameters(ctx context.Context, ps []vocab.Parameter) error {
	if len(ps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range ps {
		batch.Queue(`
			INSERT INTO parameters (code, display_name, standard_unit, allowed_units, category)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				allowed_units = EXCLUDED.allowed_units,
				category = EXCLUDED.category`,
			p.Code, p.DisplayName(), p.StandardUnit, nonNil(p.AllowedUnits), string(p.Category))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *tx) ParameterIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT code, parameter_id FROM parameters WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		out[code] = id
	}
	return out, rows.Err()
}

func (t *tx) EnsureMetaFields(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO non_parameters (code)
		SELECT DISTINCT unnest($1::text[])
		ON CONFLICT (code) DO NOTHING`, codes)
	return err
}

var measurementColumns = []string{
	"dataset_id", "sampling_point_id", "parameter_id", "ts", "value", "unit",
	"value_qualifier", "source_column", "method", "quality_flag_id", "row_hash",
}

func (t *tx) InsertMeasurements(ctx context.Context, ms []storage.Measurement) (int64, error) {
	var total int64
	for start := 0; start < len(ms); start += measurementChunk {
		end := min(start+measurementChunk, len(ms))
		rows := make([][]any, 0, end-start)
		for _, m := range ms[start:end] {
			rows = append(rows, []any{
				m.DatasetID, nullString(m.SamplingPointID), m.ParameterID, m.TS, m.Value,
				nullString(m.Unit), nullString(m.ValueQualifier), nullString(m.SourceColumn),
				nullString(m.Method), int16(m.QualityFlag.ID()), m.RowHash,
			})
		}
		q, args := buildInsertSQL("measurements", measurementColumns, rows, []string{"row_hash"})
		tag, err := t.tx.Exec(ctx, q, args...)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
//
// Constraints:
//   - every row has len(columns) values.
//   - when conflictColumns is non-empty the statement ends with
//     ON CONFLICT (...) DO NOTHING, so RowsAffected counts only new rows.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
		args = append(args, row...)
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}
	return b.String(), args
}

func (t *tx) Counts(ctx context.Context, clientID string) (storage.Counts, error) {
	var c storage.Counts
	err := t.tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM waterbodies WHERE client_id = $1),
			(SELECT COUNT(*) FROM sampling_points WHERE client_id = $1),
			(SELECT COUNT(*) FROM datasets WHERE client_id = $1),
			(SELECT COUNT(*) FROM measurements m JOIN datasets d ON d.dataset_id = m.dataset_id WHERE d.client_id = $1)`,
		clientID).Scan(&c.Waterbodies, &c.SamplingPoints, &c.Datasets, &c.Measurements)
	return c, err
}

func (t *tx) oneID(ctx context.Context, q string, args ...any) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, q, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	return id, err
}

// pgIdent quotes an identifier, doubling embedded quotes.
func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
