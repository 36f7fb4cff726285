// Package ingest runs one upload through the pipeline: read, map,
// harmonize, resolve the waterbody, then persist everything in a single
// transaction.
//
// Prepare never writes. Persist checks every precondition before opening the
// transaction, so a rejected request leaves the store untouched, and any
// failure inside the transaction rolls the whole ingest back.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/harmonize"
	"github.com/VishalVarwani/waterproject/internal/mapping"
	"github.com/VishalVarwani/waterproject/internal/melt"
	"github.com/VishalVarwani/waterproject/internal/metrics"
	"github.com/VishalVarwani/waterproject/internal/quality"
	"github.com/VishalVarwani/waterproject/internal/storage"
	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/units"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Mode selects how an ingest picks its dataset.
type Mode string

const (
	// ModeNew registers a dataset for the upload (reused on an identical
	// fingerprint).
	ModeNew Mode = "new"
	// ModeAppendAuto appends to the client's most recent dataset for the
	// resolved waterbody, or registers a new one when there is none.
	ModeAppendAuto Mode = "append_auto"
	// ModeAppendTo appends to Request.TargetDatasetID, which must exist.
	ModeAppendTo Mode = "append_to"
)

// ParseMode parses s case-insensitively. Empty means ModeNew.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeNew, nil
	case ModeNew, ModeAppendAuto, ModeAppendTo:
		return m, nil
	default:
		return "", fmt.Errorf("mode %q: want new|append_auto|append_to: %w", s, apperrors.ErrPrecondition)
	}
}

// DefaultEmail is stored for clients that supply none.
const DefaultEmail = "unknown@example.com"

// MethodHarmonized is the method recorded on every measurement.
const MethodHarmonized = "harmonized"

// Request is one batch-ingest call.
type Request struct {
	ClientID    string
	Email       string
	DisplayName string

	FileName string
	Raw      []byte
	// Sheet selects an HTML table; empty reads the first. Ignored for CSV.
	Sheet string

	Mode            Mode
	TargetDatasetID string
	// ValueQualifier is applied to every measurement when non-empty.
	ValueQualifier string
	// NoFingerprint disables re-upload detection; every ModeNew ingest then
	// registers a fresh dataset.
	NoFingerprint bool
	// UnitOverrides assigns units to bare parameter columns, keyed by
	// harmonized label.
	UnitOverrides map[string]string
}

// Response is the batch-ingest result.
type Response struct {
	DatasetID          string `json:"dataset_id"`
	WaterbodyID        string `json:"waterbody_id"`
	RowsIn             int64  `json:"rows_in"`
	RowsInserted       int64  `json:"rows_inserted"`
	RowsSkipped        int64  `json:"rows_skipped"`
	RowsDropped        int64  `json:"rows_dropped"`
	Mode               Mode   `json:"mode"`
	AppendedToExisting bool   `json:"appended_to_existing"`
}

// Prepared is an upload after everything that does not touch the store.
type Prepared struct {
	Source    *table.Source
	Mappings  []mapping.Mapping
	Frame     *table.Frame
	Report    harmonize.Report
	Waterbody entity.Waterbody
	// Overridden lists parameter codes whose unit came from UnitOverrides.
	Overridden []string
}

// Options tune a Service.
type Options struct {
	// OracleTimeout bounds each oracle call. Zero means no extra bound.
	OracleTimeout time.Duration
	// RequireSite rejects frames without a site column.
	RequireSite bool
}

// Service wires the pipeline components over one Repository.
type Service struct {
	repo       storage.Repository
	reg        *vocab.Registry
	classifier mapping.HeaderClassifier
	validator  *mapping.Validator
	builder    *harmonize.Builder
	resolver   *entity.Resolver
	flags      *quality.Engine
	opts       Options
	log        *zap.Logger
	now        func() time.Time
}

// NewService returns a Service. hc and id may be nil; mapping then degrades
// to all-unknown and waterbodies come from the heuristic alone. repo may be
// nil for a Service that only prepares (previews) uploads.
func NewService(repo storage.Repository, reg *vocab.Registry, hc mapping.HeaderClassifier, id entity.Identifier, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		reg:        reg,
		classifier: hc,
		validator:  mapping.NewValidator(reg, log.Named("mapping")),
		builder:    harmonize.NewBuilder(reg, units.Default(reg)),
		resolver:   entity.NewResolver(id, log),
		flags:      quality.NewEngine(reg),
		opts:       opts,
		log:        log.Named("ingest"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest runs Prepare then Persist.
func (s *Service) Ingest(ctx context.Context, req Request) (Response, error) {
	if err := checkRequest(req); err != nil {
		return Response{}, err
	}
	p, err := s.Prepare(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return s.Persist(ctx, req, p)
}

// Prepare reads the requested sheet, maps and harmonizes its columns, applies
// unit overrides and resolves the waterbody. Oracle failures only lower
// confidence; errors come from reading the file.
func (s *Service) Prepare(ctx context.Context, req Request) (p *Prepared, err error) {
	done := metrics.Step("prepare")
	defer func() { done(err) }()

	start := time.Now()
	src, err := table.Read(req.FileName, req.Raw, req.Sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.FileName, err)
	}
	s.stage("read", start,
		zap.String("kind", string(src.Kind)), zap.String("sheet", src.Sheet),
		zap.Int("rows", src.Table.Len()), zap.Int("cols", src.Table.Width()))

	start = time.Now()
	mctx, cancel := s.oracleContext(ctx)
	ms := s.validator.Map(mctx, s.classifier, src.Table.Headers)
	cancel()
	nParam, nMeta, nUnknown := mapping.Counts(ms)
	s.stage("map", start, zap.Int("parameters", nParam), zap.Int("meta", nMeta), zap.Int("unknown", nUnknown))

	start = time.Now()
	frame, rep := s.builder.Build(src.Table, ms)
	overridden := s.builder.OverrideUnits(frame, req.UnitOverrides)
	s.stage("harmonize", start,
		zap.Int("columns", len(frame.Columns)), zap.Int("converted", rep.Converted()),
		zap.Int("dropped", len(rep.Dropped)), zap.Strings("overridden", overridden))

	start = time.Now()
	rctx, cancel := s.oracleContext(ctx)
	wb := s.resolver.Resolve(rctx, entity.NewSnippet(req.FileName, src.Sheets, src.Table))
	cancel()
	s.stage("resolve", start,
		zap.String("waterbody", wb.Name), zap.String("type", string(wb.Type)),
		zap.Float64("confidence", wb.Confidence), zap.Bool("needs_confirmation", wb.NeedsConfirmation))

	return &Prepared{
		Source:     src,
		Mappings:   ms,
		Frame:      frame,
		Report:     rep,
		Waterbody:  wb,
		Overridden: overridden,
	}, nil
}

// Persist writes p in one transaction and reports the row accounting.
//
// rows_in counts every melted record; records whose parameter is not in the
// registry are dropped (rows_dropped); of the rest, rows already stored or
// repeated within the batch are skipped (rows_skipped).
func (s *Service) Persist(ctx context.Context, req Request, p *Prepared) (resp Response, err error) {
	done := metrics.Step("persist")
	defer func() { done(err) }()

	if err := checkRequest(req); err != nil {
		return Response{}, err
	}
	if p == nil || p.Frame == nil {
		return Response{}, fmt.Errorf("nothing prepared: %w", apperrors.ErrPrecondition)
	}
	if s.repo == nil {
		return Response{}, errors.New("ingest: no repository configured")
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Response{}, err
	}
	target := strings.TrimSpace(req.TargetDatasetID)
	if mode == ModeAppendTo && target == "" {
		return Response{}, fmt.Errorf("mode append_to needs a target dataset: %w", apperrors.ErrPrecondition)
	}
	if _, ok := harmonize.SiteColumn(p.Frame); s.opts.RequireSite && !ok {
		return Response{}, fmt.Errorf("no site column in %s: %w", req.FileName, apperrors.ErrPrecondition)
	}

	start := time.Now()
	records, layout := melt.Melt(p.Frame)
	flags, err := s.flags.Assign(ctx, records)
	if err != nil {
		return Response{}, err
	}
	s.stage("melt", start,
		zap.Int("records", len(records)), zap.String("timestamp_column", layout.Timestamp),
		zap.String("site_column", layout.Site), zap.Bool("day_first", layout.DayFirst))

	resp = Response{Mode: mode, RowsIn: int64(len(records))}
	sheet := sheetName(p.Source)

	start = time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		clientID := strings.TrimSpace(req.ClientID)
		if err := tx.UpsertClient(ctx, clientRow(clientID, req.Email, req.DisplayName)); err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}

		wb := p.Waterbody
		wb.ID = ""
		wb.ClientID = clientID
		wb, err := storage.UpsertWaterbody(ctx, tx, wb)
		if err != nil {
			return err
		}
		resp.WaterbodyID = wb.ID

		sites := make(map[string]string)
		for _, sp := range harmonize.SamplingPoints(p.Frame) {
			sp.ClientID = clientID
			sp.WaterbodyID = wb.ID
			stored, err := storage.UpsertSamplingPoint(ctx, tx, entity.FillPreset(s.reg, sp))
			if err != nil {
				return err
			}
			sites[stored.Code] = stored.ID
		}

		dataset := storage.Dataset{
			ClientID:    clientID,
			WaterbodyID: wb.ID,
			FileName:    req.FileName,
			SheetName:   sheet,
			RowCount:    p.Frame.Rows,
			ColCount:    len(p.Frame.Columns),
			UploadedAt:  s.now(),
		}
		if !req.NoFingerprint {
			dataset.Fingerprint = Fingerprint(clientID, req.Raw, sheet)
		}
		resp.DatasetID, resp.AppendedToExisting, err = s.pickDataset(ctx, tx, mode, target, dataset)
		if err != nil {
			return err
		}

		paramIDs, err := s.ensureVocabulary(ctx, tx, p.Frame, records)
		if err != nil {
			return err
		}

		ms := make([]storage.Measurement, 0, len(records))
		for i, r := range records {
			pid, ok := paramIDs[r.Parameter]
			if !ok {
				resp.RowsDropped++
				continue
			}
			ms = append(ms, storage.Measurement{
				DatasetID:       resp.DatasetID,
				SamplingPointID: sites[entity.SiteCode(r.Site)],
				ParameterID:     pid,
				TS:              r.TS,
				Value:           r.Value,
				Unit:            r.Unit,
				ValueQualifier:  strings.TrimSpace(req.ValueQualifier),
				SourceColumn:    r.SourceColumn,
				SourceRow:       r.Row,
				Method:          MethodHarmonized,
				QualityFlag:     flags[i],
			})
		}
		considered := int64(len(ms))
		resp.RowsInserted, err = tx.InsertMeasurements(ctx, storage.WithRowHash(ms))
		if err != nil {
			return fmt.Errorf("insert measurements: %w", err)
		}
		resp.RowsSkipped = considered - resp.RowsInserted
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	s.stage("persist", start,
		zap.String("dataset_id", resp.DatasetID), zap.String("mode", string(mode)),
		zap.Bool("appended_to_existing", resp.AppendedToExisting),
		zap.Int64("rows_in", resp.RowsIn), zap.Int64("rows_inserted", resp.RowsInserted),
		zap.Int64("rows_skipped", resp.RowsSkipped), zap.Int64("rows_dropped", resp.RowsDropped))

	metrics.RecordRecords("in", resp.RowsIn)
	metrics.RecordRecords("inserted", resp.RowsInserted)
	metrics.RecordRecords("skipped", resp.RowsSkipped)
	metrics.RecordRecords("dropped", resp.RowsDropped)
	return resp, nil
}

// pickDataset returns the dataset the measurements go to and whether it
// already held data before this ingest.
func (s *Service) pickDataset(ctx context.Context, tx storage.Tx, mode Mode, target string, d storage.Dataset) (string, bool, error) {
	switch mode {
	case ModeAppendTo:
		ok, err := tx.DatasetExists(ctx, d.ClientID, target)
		if err != nil {
			return "", false, fmt.Errorf("find dataset %s: %w", target, err)
		}
		if !ok {
			return "", false, fmt.Errorf("dataset %s does not exist for client %s: %w", target, d.ClientID, apperrors.ErrPrecondition)
		}
		if err := tx.TouchDataset(ctx, target, d.UploadedAt); err != nil {
			return "", false, fmt.Errorf("touch dataset: %w", err)
		}
		return target, true, nil

	case ModeAppendAuto:
		latest, err := tx.LatestDataset(ctx, d.ClientID, d.WaterbodyID)
		switch {
		case err == nil:
			if err := tx.TouchDataset(ctx, latest, d.UploadedAt); err != nil {
				return "", false, fmt.Errorf("touch dataset: %w", err)
			}
			return latest, true, nil
		case !storage.IsNotFound(err):
			return "", false, fmt.Errorf("latest dataset: %w", err)
		}
	}

	id, created, err := storage.RegisterDataset(ctx, tx, d)
	if err != nil {
		return "", false, err
	}
	if !created {
		s.log.Info("dataset fingerprint seen before; reusing", zap.String("dataset_id", id))
	}
	return id, false, nil
}

// ensureVocabulary upserts the descriptors of every registered parameter in
// records, records the frame's meta codes, and returns parameter ids by code.
func (s *Service) ensureVocabulary(ctx context.Context, tx storage.Tx, f *table.Frame, records []melt.Record) (map[string]int64, error) {
	var (
		codes []string
		ps    []vocab.Parameter
		seen  = make(map[string]bool)
	)
	for _, r := range records {
		if seen[r.Parameter] {
			continue
		}
		seen[r.Parameter] = true
		if p, ok := s.reg.Parameter(r.Parameter); ok {
			codes = append(codes, p.Code)
			ps = append(ps, p)
		}
	}

	var metaCodes []string
	for _, c := range f.Columns {
		if c.Kind != table.KindMeta {
			continue
		}
		if code, _ := melt.ParseHeader(c.Label); s.reg.IsMetaField(code) {
			metaCodes = append(metaCodes, code)
		}
	}
	if len(metaCodes) > 0 {
		if err := tx.EnsureMetaFields(ctx, metaCodes); err != nil {
			return nil, fmt.Errorf("ensure meta fields: %w", err)
		}
	}

	if len(ps) == 0 {
		return map[string]int64{}, nil
	}
	if err := tx.UpsertParameters(ctx, ps); err != nil {
		return nil, fmt.Errorf("upsert parameters: %w", err)
	}
	ids, err := tx.ParameterIDs(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("parameter ids: %w", err)
	}
	return ids, nil
}

func (s *Service) oracleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OracleTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.OracleTimeout)
}

func (s *Service) stage(name string, start time.Time, fields ...zap.Field) {
	s.log.Info("stage done", append([]zap.Field{
		zap.String("stage", name),
		zap.Duration("duration", time.Since(start)),
	}, fields...)...)
}

func checkRequest(req Request) error {
	switch {
	case strings.TrimSpace(req.ClientID) == "":
		return fmt.Errorf("client id is required: %w", apperrors.ErrPrecondition)
	case strings.TrimSpace(req.FileName) == "":
		return fmt.Errorf("file name is required: %w", apperrors.ErrPrecondition)
	case len(req.Raw) == 0:
		return fmt.Errorf("upload %s is empty: %w", req.FileName, apperrors.ErrPrecondition)
	}
	return nil
}

func clientRow(id, email, displayName string) storage.Client {
	email = strings.TrimSpace(email)
	if email == "" {
		email = DefaultEmail
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	return storage.Client{ID: id, Email: email, DisplayName: displayName}
}

func sheetName(src *table.Source) string {
	if src == nil || src.Sheet == "" {
		return table.CSVSheet
	}
	return src.Sheet
}

// Fingerprint is the content hash of an upload: SHA-256 over the client id,
// the raw bytes and the sheet name, NUL separated, as lowercase hex. The same
// file read through a different sheet, or uploaded by another client, is a
// different dataset.
func Fingerprint(clientID string, raw []byte, sheet string) string {
	h := sha256.New()
	h.Write([]byte(clientID))
	h.Write([]byte{0})
	h.Write(raw)
	h.Write([]byte{0})
	h.Write([]byte(sheet))
	return hex.EncodeToString(h.Sum(nil))
}
