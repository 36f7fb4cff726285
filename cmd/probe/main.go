// Command probe previews how a water-quality file would be harmonized,
// without writing anything.
//
// It reads the file (a sheet of an HTML export, or a CSV), asks the
// configured oracle to classify the headers, builds the harmonized frame and
// resolves the waterbody, exactly as cmd/ingest does before persisting.
//
// Output modes
//
//   - Default mode: prints a JSON preview to stdout (mappings, harmonized
//     columns, sampling points, waterbody and the first -rows rows).
//   - Report mode (-report): prints a plain-text mapping report instead.
//
// Oracle, storage and metrics settings come from the same configuration as
// cmd/ingest; storage is never opened.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/config"
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/harmonize"
	"github.com/VishalVarwani/waterproject/internal/ingest"
	"github.com/VishalVarwani/waterproject/internal/logging"
	"github.com/VishalVarwani/waterproject/internal/mapping"
	"github.com/VishalVarwani/waterproject/internal/oracle"
	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

func main() {
	var (
		flagFile   = flag.String("file", "", "CSV or HTML-table file to preview")
		flagSheet  = flag.String("sheet", "", "sheet (HTML table) to read; default first")
		flagConfig = flag.String("config", "", "YAML config path")
		flagRows   = flag.Int("rows", 5, "harmonized rows to include in the preview")
		flagPretty = flag.Bool("pretty", true, "pretty-print JSON output")
		flagReport = flag.Bool("report", false, "print a text mapping report (suppresses JSON output)")
	)
	flag.Parse()

	if strings.TrimSpace(*flagFile) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*flagFile)
	if err != nil {
		log.Fatalf("read file: %v", err)
	}

	path := *flagConfig
	if path == "" && config.Exists("config.yaml") {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	hc, id, err := oracles(cfg.Oracle, logger)
	if err != nil {
		log.Fatalf("oracle: %v", err)
	}

	// Bound the whole run; each oracle call is bounded separately by config.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	svc := ingest.NewService(nil, vocab.Default(), hc, id, ingest.Options{OracleTimeout: cfg.Oracle.Timeout}, logger)
	p, err := svc.Prepare(ctx, ingest.Request{FileName: *flagFile, Raw: raw, Sheet: *flagSheet})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	pv := newPreview(*flagFile, p, *flagRows)
	if *flagReport {
		writeReport(os.Stdout, pv)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(pv); err != nil {
		log.Fatalf("encode preview: %v", err)
	}
}

func oracles(cfg config.OracleConfig, logger *zap.Logger) (mapping.HeaderClassifier, entity.Identifier, error) {
	c, err := oracle.New(oracle.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
	}, logger)
	if err != nil || c == nil {
		return nil, nil, err
	}
	return oracle.NewHeaderClassifier(c, logger), oracle.NewWaterbodyIdentifier(c, logger), nil
}

type columnMapping struct {
	Header         string  `json:"header"`
	Kind           string  `json:"kind"`
	Field          string  `json:"field"`
	Confidence     float64 `json:"confidence"`
	Unit           string  `json:"unit"`
	UnitConfidence float64 `json:"unit_confidence"`
}

type harmonizedColumn struct {
	Source    string `json:"source"`
	Label     string `json:"label"`
	FromUnit  string `json:"from_unit,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Converted bool   `json:"converted"`
	Reason    string `json:"reason,omitempty"`
}

type samplingPoint struct {
	Code  string   `json:"code"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Depth *float64 `json:"depth"`
}

type waterbody struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Confidence        float64  `json:"confidence"`
	Provenance        []string `json:"provenance"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Evidence          []string `json:"evidence,omitempty"`
}

type preview struct {
	File           string             `json:"file"`
	Kind           table.Kind         `json:"kind"`
	Sheet          string             `json:"sheet,omitempty"`
	Sheets         []string           `json:"sheets"`
	SourceRows     int                `json:"source_rows"`
	Mappings       []columnMapping    `json:"mappings"`
	Columns        []harmonizedColumn `json:"columns"`
	Dropped        []string           `json:"dropped"`
	Waterbody      waterbody          `json:"waterbody"`
	SamplingPoints []samplingPoint    `json:"sampling_points"`
	Labels         []string           `json:"labels"`
	Rows           [][]string         `json:"rows"`
}

func newPreview(file string, p *ingest.Prepared, rows int) preview {
	pv := preview{
		File:       file,
		Kind:       p.Source.Kind,
		Sheet:      p.Source.Sheet,
		Sheets:     p.Source.Sheets,
		SourceRows: p.Source.Table.Len(),
		Dropped:    nonNil(p.Report.Dropped),
		Labels:     p.Frame.Labels(),
		Waterbody: waterbody{
			Name:              p.Waterbody.Name,
			Type:              string(p.Waterbody.Type),
			Confidence:        p.Waterbody.Confidence,
			Provenance:        p.Waterbody.Provenance,
			NeedsConfirmation: p.Waterbody.NeedsConfirmation,
			Evidence:          p.Waterbody.Evidence,
		},
	}
	for _, m := range p.Mappings {
		pv.Mappings = append(pv.Mappings, columnMapping{
			Header:         m.Header,
			Kind:           string(m.Kind),
			Field:          m.Field,
			Confidence:     m.Confidence,
			Unit:           m.Unit,
			UnitConfidence: m.UnitConfidence,
		})
	}
	for _, c := range p.Report.Columns {
		pv.Columns = append(pv.Columns, harmonizedColumn{
			Source:    c.Source,
			Label:     c.Label,
			FromUnit:  c.FromUnit,
			Unit:      c.Unit,
			Converted: c.Converted,
			Reason:    string(c.Reason),
		})
	}
	for _, sp := range harmonize.SamplingPoints(p.Frame) {
		pv.SamplingPoints = append(pv.SamplingPoints, samplingPoint{Code: sp.Code, Lat: sp.Lat, Lon: sp.Lon, Depth: sp.Depth})
	}
	pv.Rows = frameRows(p.Frame, rows)
	return pv
}

// frameRows renders the first n rows of f as text; absent numbers are "".
func frameRows(f *table.Frame, n int) [][]string {
	n = min(max(n, 0), f.Rows)
	out := make([][]string, n)
	for r := range out {
		row := make([]string, len(f.Columns))
		for i, c := range f.Columns {
			switch {
			case c.Kind == table.KindMeta && r < len(c.Text):
				row[i] = c.Text[r]
			case c.Kind == table.KindParameter && r < len(c.Values) && c.Values[r] != nil:
				row[i] = strconv.FormatFloat(*c.Values[r], 'g', -1, 64)
			}
		}
		out[r] = row
	}
	return out
}

func writeReport(w io.Writer, pv preview) {
	fmt.Fprintf(w, "mapping report: %s (%s", pv.File, pv.Kind)
	if pv.Sheet != "" {
		fmt.Fprintf(w, ", sheet %s", pv.Sheet)
	}
	fmt.Fprintf(w, ", %d rows)\n", pv.SourceRows)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "header\tkind\tfield\tconf\tunit\tunit_conf")
	for _, m := range pv.Mappings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%.2f\n", m.Header, m.Kind, m.Field, m.Confidence, m.Unit, m.UnitConfidence)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "harmonized: %s\n", strings.Join(pv.Labels, " | "))
	if len(pv.Dropped) > 0 {
		fmt.Fprintf(w, "dropped: %s\n", strings.Join(pv.Dropped, ", "))
	}
	fmt.Fprintf(w, "waterbody: %s (%s) confidence=%.2f provenance=%s\n",
		pv.Waterbody.Name, pv.Waterbody.Type, pv.Waterbody.Confidence, strings.Join(pv.Waterbody.Provenance, ","))
	fmt.Fprintf(w, "sampling points: %d\n", len(pv.SamplingPoints))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
