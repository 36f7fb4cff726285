package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/config"
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/ingest"
	"github.com/VishalVarwani/waterproject/internal/logging"
	"github.com/VishalVarwani/waterproject/internal/mapping"
	"github.com/VishalVarwani/waterproject/internal/metrics"
	"github.com/VishalVarwani/waterproject/internal/metrics/datadog"
	"github.com/VishalVarwani/waterproject/internal/metrics/prompush"
	"github.com/VishalVarwani/waterproject/internal/oracle"
	"github.com/VishalVarwani/waterproject/internal/storage"
	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/vocab"

	// register all backends with the storage factory; config picks one.
	_ "github.com/VishalVarwani/waterproject/internal/storage/all"
)

const usage = "usage: ingest -file path -client id [-sheet name] [-mode new|append_auto|append_to] [-target dataset_id]"

// defaultConfigPath is read when -config is not given and the file exists.
const defaultConfigPath = "config.yaml"

type ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Response, error)
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	readFile    func(string) ([]byte, error)
	loadConfig  func(string) (*config.Config, error)
	newLogger   func(level string) (*zap.Logger, error)
	initMetrics func(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) (func(), error)
	newIngester func(ctx context.Context, cfg *config.Config, log *zap.Logger) (ingester, func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:    os.ReadFile,
		loadConfig:  config.Load,
		newLogger:   logging.New,
		initMetrics: initMetrics,
		newIngester: newIngester,
	}
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}

// overrides collects repeated -override label=unit flags.
type overrides map[string]string

func (o overrides) String() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + o[k]
	}
	return strings.Join(parts, ",")
}

func (o overrides) Set(v string) error {
	label, unit, ok := strings.Cut(v, "=")
	label, unit = strings.TrimSpace(label), strings.TrimSpace(unit)
	if !ok || label == "" || unit == "" {
		return fmt.Errorf("want label=unit, got %q", v)
	}
	o[label] = unit
	return nil
}

// runMain returns the process exit code: 0 on success, 2 on usage errors,
// 1 on everything else.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath, filePath, sheet  string
		clientID, email, name     string
		mode, target, qualifier   string
		noFingerprint, listSheets bool
		verbose                   bool
		units                     = overrides{}
	)
	fs.StringVar(&cfgPath, "config", "", "YAML config path (default ./config.yaml when present)")
	fs.StringVar(&filePath, "file", "", "CSV or HTML-table file to ingest")
	fs.StringVar(&sheet, "sheet", "", "sheet (HTML table) to read; default first")
	fs.StringVar(&clientID, "client", "", "owning client id")
	fs.StringVar(&email, "email", "", "client email")
	fs.StringVar(&name, "name", "", "client display name")
	fs.StringVar(&mode, "mode", "", "new, append_auto or append_to (default from config)")
	fs.StringVar(&target, "target", "", "dataset id for -mode append_to")
	fs.StringVar(&qualifier, "qualifier", "", "value qualifier applied to every measurement")
	fs.BoolVar(&noFingerprint, "no-fingerprint", false, "always register a new dataset")
	fs.BoolVar(&listSheets, "list-sheets", false, "print the file's sheets and exit")
	fs.Var(units, "override", "assign a unit to a bare parameter column: label=unit (repeatable)")
	fs.BoolVar(&verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	filePath = strings.TrimSpace(filePath)
	if filePath == "" || (!listSheets && strings.TrimSpace(clientID) == "") {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	raw, err := deps.readFile(filePath)
	if err != nil {
		fmt.Fprintf(stderr, "read file: %v\n", err)
		return 1
	}

	if listSheets {
		kind, sheets, err := table.ListSheets(filePath, raw)
		if err != nil {
			fmt.Fprintf(stderr, "list sheets: %v\n", err)
			return 1
		}
		return writeJSON(stdout, stderr, struct {
			Kind   table.Kind `json:"kind"`
			Sheets []string   `json:"sheets"`
		}{kind, sheets})
	}

	if cfgPath == "" && config.Exists(defaultConfigPath) {
		cfgPath = defaultConfigPath
	}
	cfg, err := deps.loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if mode == "" {
		mode = cfg.Ingest.Mode
	}
	m, err := ingest.ParseMode(mode)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n%s\n", err, usage)
		return 2
	}

	log, err := deps.newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	cleanupMetrics, err := deps.initMetrics(ctx, cfg.Metrics, log)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanupMetrics()

	svc, closeSvc, err := deps.newIngester(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer closeSvc()

	resp, err := svc.Ingest(ctx, ingest.Request{
		ClientID:        clientID,
		Email:           email,
		DisplayName:     name,
		FileName:        filePath,
		Raw:             raw,
		Sheet:           sheet,
		Mode:            m,
		TargetDatasetID: target,
		ValueQualifier:  qualifier,
		NoFingerprint:   noFingerprint || !cfg.Ingest.UseFingerprint,
		UnitOverrides:   units,
	})
	if err != nil {
		fmt.Fprintf(stderr, "ingest: %v\n", err)
		return 1
	}
	return writeJSON(stdout, stderr, resp)
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "write result: %v\n", err)
		return 1
	}
	return 0
}

// newIngester opens the configured store, ensures its schema and wires the
// oracles. The returned func closes the store.
func newIngester(ctx context.Context, cfg *config.Config, log *zap.Logger) (ingester, func(), error) {
	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, nil, fmt.Errorf("open storage %s: %w", cfg.Storage.Kind, err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}

	completer, err := oracle.New(oracle.Config{
		Provider: cfg.Oracle.Provider,
		APIKey:   cfg.Oracle.APIKey,
		BaseURL:  cfg.Oracle.BaseURL,
		Model:    cfg.Oracle.Model,
	}, log)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	var (
		hc mapping.HeaderClassifier
		id entity.Identifier
	)
	if completer != nil {
		hc = oracle.NewHeaderClassifier(completer, log)
		id = oracle.NewWaterbodyIdentifier(completer, log)
	} else {
		log.Info("oracle disabled; headers map to unknown and waterbodies come from the heuristic")
	}

	svc := ingest.NewService(repo, vocab.Default(), hc, id, ingest.Options{
		OracleTimeout: cfg.Oracle.Timeout,
		RequireSite:   cfg.Ingest.RequireSite,
	}, log)
	return svc, repo.Close, nil
}

// metricsBackend is the slice of a backend initMetrics needs to shut it down.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string, grouping map[string]string) (metrics.Backend, error) {
		return prompush.NewBackend(job, url, grouping)
	}
	setMetricsBackend = metrics.SetBackend
)

// initMetrics installs the configured metrics backend. The returned cleanup
// is never nil and flushes (or closes) the backend.
func initMetrics(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) (func(), error) {
	nop := func() {}
	tags := datadog.ParseTagsCSV(cfg.Tags)

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none", "noop":
		return nop, nil

	case "pushgateway":
		b, err := newPushBackend(cfg.Job, cfg.PushgatewayURL, tagsToGrouping(tags))
		if err != nil {
			return nop, fmt.Errorf("pushgateway backend: %w", err)
		}
		log.Info("metrics enabled", zap.String("backend", "pushgateway"),
			zap.String("url", cfg.PushgatewayURL), zap.String("job", cfg.Job))
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				log.Warn("metrics: pushgateway flush error", zap.Error(err))
			}
		}, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    cfg.Job,
			Tags:       tags,
			FlushEvery: cfg.FlushEvery,
		})
		if err != nil {
			return nop, fmt.Errorf("datadog backend: %w", err)
		}
		log.Info("metrics enabled", zap.String("backend", "datadog"),
			zap.String("job", cfg.Job), zap.Strings("tags", tags))
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close error", zap.Error(err))
			}
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", cfg.Backend)
	}
}

// tagsToGrouping turns "key:value" tags into Pushgateway grouping labels.
// Tags without a value are ignored.
func tagsToGrouping(tags []string) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		k, v, ok := strings.Cut(t, ":")
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
