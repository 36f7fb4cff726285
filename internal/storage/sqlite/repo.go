// Package sqlite is the embedded storage backend (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/storage"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Kind is the registered backend kind.
const Kind = "sqlite"

// measurementChunk bounds rows per INSERT; 11 columns each stays far below
// SQLite's bound-parameter limit.
const measurementChunk = 500

// Repo implements storage.Repository for SQLite.
//
// SQLite serializes writers, so the pool is limited to one connection. That
// also keeps a ":memory:" database alive and shared for the Repo's lifetime.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register(Kind, New)
}

// New opens cfg.DSN (a file path or ":memory:") and enables foreign keys.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSchema creates all tables if missing and upserts the quality flags.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	for _, f := range vocab.QualityFlags() {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO quality_flags (quality_flag_id, code, label, description)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (quality_flag_id) DO UPDATE SET
				code = excluded.code, label = excluded.label, description = excluded.description`,
			f.ID(), f.Code(), f.Label(), f.Description())
		if err != nil {
			return fmt.Errorf("seed quality flag %s: %w", f.Code(), err)
		}
	}
	return nil
}

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) UpsertClient(ctx context.Context, c storage.Client) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO clients (client_id, email, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			email = excluded.email,
			display_name = COALESCE(excluded.display_name, clients.display_name)`,
		c.ID, c.Email, nullString(c.DisplayName), formatTime(time.Now()))
	return err
}

func (t *tx) InsertWaterbody(ctx context.Context, wb entity.Waterbody) (bool, error) {
	prov, err := json.Marshal(nonNil(wb.Provenance))
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO waterbodies (waterbody_id, client_id, name, type, confidence, provenance)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, name, type) DO NOTHING`,
		wb.ID, wb.ClientID, wb.Name, string(wb.Type), wb.Confidence, string(prov))
	return affected(res, err)
}

// LockWaterbody relies on the transaction's write lock; SQLite has no row locks.
func (t *tx) LockWaterbody(ctx context.Context, clientID, name string, typ vocab.WaterbodyType) (entity.Waterbody, error) {
	wb := entity.Waterbody{ClientID: clientID, Name: name, Type: typ}
	var prov string
	err := t.tx.QueryRowContext(ctx, `
		SELECT waterbody_id, confidence, provenance FROM waterbodies
		WHERE client_id = ? AND name = ? AND type = ?`,
		clientID, name, string(typ)).Scan(&wb.ID, &wb.Confidence, &prov)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Waterbody{}, apperrors.ErrNotFound
	}
	if err != nil {
		return entity.Waterbody{}, err
	}
	if err := json.Unmarshal([]byte(prov), &wb.Provenance); err != nil {
		return entity.Waterbody{}, fmt.Errorf("decode provenance of %s: %w", wb.ID, err)
	}
	return wb, nil
}

func (t *tx) UpdateWaterbody(ctx context.Context, wb entity.Waterbody) error {
	prov, err := json.Marshal(nonNil(wb.Provenance))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE waterbodies SET confidence = ?, provenance = ? WHERE waterbody_id = ?`,
		wb.Confidence, string(prov), wb.ID)
	return err
}

func (t *tx) InsertSamplingPoint(ctx context.Context, sp entity.SamplingPoint) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO sampling_points
			(sampling_point_id, client_id, waterbody_id, code, name, lat, lon, depth_m)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, code) DO NOTHING`,
		sp.ID, sp.ClientID, nullString(sp.WaterbodyID), sp.Code, nullString(sp.Name),
		nullFloat(sp.Lat), nullFloat(sp.Lon), nullFloat(sp.Depth))
	return affected(res, err)
}

func (t *tx) LockSamplingPoint(ctx context.Context, clientID, code string) (entity.SamplingPoint, error) {
	sp := entity.SamplingPoint{ClientID: clientID, Code: code}
	var (
		wbID, name     sql.NullString
		lat, lon, dpth sql.NullFloat64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT sampling_point_id, waterbody_id, name, lat, lon, depth_m
		FROM sampling_points WHERE client_id = ? AND code = ?`,
		clientID, code).Scan(&sp.ID, &wbID, &name, &lat, &lon, &dpth)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.SamplingPoint{}, apperrors.ErrNotFound
	}
	if err != nil {
		return entity.SamplingPoint{}, err
	}
	sp.WaterbodyID, sp.Name = wbID.String, name.String
	sp.Lat, sp.Lon, sp.Depth = floatPtr(lat), floatPtr(lon), floatPtr(dpth)
	return sp, nil
}

func (t *tx) UpdateSamplingPoint(ctx context.Context, sp entity.SamplingPoint) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE sampling_points
		SET waterbody_id = ?, name = ?, lat = ?, lon = ?, depth_m = ?
		WHERE sampling_point_id = ?`,
		nullString(sp.WaterbodyID), nullString(sp.Name),
		nullFloat(sp.Lat), nullFloat(sp.Lon), nullFloat(sp.Depth), sp.ID)
	return err
}

func (t *tx) InsertDataset(ctx context.Context, d storage.Dataset) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO datasets
			(dataset_id, client_id, waterbody_id, file_name, sheet_name, row_count, col_count, content_hash, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING`,
		d.ID, d.ClientID, nullString(d.WaterbodyID), d.FileName, nullString(d.SheetName),
		d.RowCount, d.ColCount, nullString(d.Fingerprint), formatTime(d.UploadedAt))
	return affected(res, err)
}

func (t *tx) DatasetByFingerprint(ctx context.Context, clientID, fp string) (string, error) {
	return t.oneID(ctx, `SELECT dataset_id FROM datasets WHERE content_hash = ? AND client_id = ?`, fp, clientID)
}

func (t *tx) LatestDataset(ctx context.Context, clientID, waterbodyID string) (string, error) {
	return t.oneID(ctx, `
		SELECT dataset_id FROM datasets
		WHERE client_id = ? AND waterbody_id = ?
		ORDER BY uploaded_at DESC, rowid DESC
		LIMIT 1`, clientID, waterbodyID)
}

func (t *tx) DatasetExists(ctx context.Context, clientID, id string) (bool, error) {
	_, err := t.oneID(ctx, `SELECT dataset_id FROM datasets WHERE dataset_id = ? AND client_id = ?`, id, clientID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *tx) TouchDataset(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE datasets SET uploaded_at = ? WHERE dataset_id = ?`, formatTime(at), id)
	return err
}

func (t *tx) UpsertParameters(ctx context.Context, ps []vocab.Parameter) error {
	for _, p := range ps {
		allowed, err := json.Marshal(nonNil(p.AllowedUnits))
		if err != nil {
			return err
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO parameters (code, display_name, standard_unit, allowed_units, category)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (code) DO UPDATE SET
				display_name = excluded.display_name,
				allowed_units = excluded.allowed_units,
				category = excluded.category`,
			p.Code, p.DisplayName(), p.StandardUnit, string(allowed), string(p.Category))
		if err != nil {
			return fmt.Errorf("upsert parameter %s: %w", p.Code, err)
		}
	}
	return nil
}

func (t *tx) ParameterIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	q := `SELECT code, parameter_id FROM parameters WHERE code IN (` + placeholders(len(codes)) + `)`
	rows, err := t.tx.QueryContext(ctx, q, args...)
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
	for _, c := range codes {
		if _, err := t.tx.ExecContext(ctx, `INSERT INTO non_parameters (code) VALUES (?) ON CONFLICT (code) DO NOTHING`, c); err != nil {
			return fmt.Errorf("insert meta field %s: %w", c, err)
		}
	}
	return nil
}

var measurementColumns = []string{
	"dataset_id", "sampling_point_id", "parameter_id", "ts", "value", "unit",
	"value_qualifier", "source_column", "method", "quality_flag_id", "row_hash",
}

func (t *tx) InsertMeasurements(ctx context.Context, ms []storage.Measurement) (int64, error) {
	var total int64
	for start := 0; start < len(ms); start += measurementChunk {
		end := min(start+measurementChunk, len(ms))
		q, args := buildInsertMeasurementsSQL(ms[start:end])
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildInsertMeasurementsSQL builds one multi-row INSERT; rows whose row_hash
// exists are skipped. Any other constraint failure is an error.
func buildInsertMeasurementsSQL(ms []storage.Measurement) (string, []any) {
	row := "(" + placeholders(len(measurementColumns)) + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO measurements (")
	b.WriteString(strings.Join(measurementColumns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(ms)*len(measurementColumns))
	for i, m := range ms {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		var ts any
		if m.TS != nil {
			ts = formatTime(*m.TS)
		}
		args = append(args,
			m.DatasetID, nullString(m.SamplingPointID), m.ParameterID, ts, nullFloat(m.Value),
			nullString(m.Unit), nullString(m.ValueQualifier), nullString(m.SourceColumn),
			nullString(m.Method), m.QualityFlag.ID(), m.RowHash)
	}
	b.WriteString(" ON CONFLICT (row_hash) DO NOTHING")
	return b.String(), args
}

func (t *tx) Counts(ctx context.Context, clientID string) (storage.Counts, error) {
	var c storage.Counts
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM waterbodies WHERE client_id = ?1),
			(SELECT COUNT(*) FROM sampling_points WHERE client_id = ?1),
			(SELECT COUNT(*) FROM datasets WHERE client_id = ?1),
			(SELECT COUNT(*) FROM measurements m JOIN datasets d ON d.dataset_id = m.dataset_id WHERE d.client_id = ?1)`,
		clientID).Scan(&c.Waterbodies, &c.SamplingPoints, &c.Datasets, &c.Measurements)
	return c, err
}

func (t *tx) oneID(ctx context.Context, q string, args ...any) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, q, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	return id, err
}

/* ---------- helpers ---------- */

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func placeholders(n int) string {
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
