package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Client owns waterbodies, sampling points and datasets.
type Client struct {
	ID          string
	Email       string
	DisplayName string
}

// Dataset is one ingested upload (or an append target).
//
// Fingerprint is empty when fingerprinting is disabled; such datasets never
// collide with each other.
type Dataset struct {
	ID          string
	ClientID    string
	WaterbodyID string
	FileName    string
	SheetName   string
	RowCount    int
	ColCount    int
	Fingerprint string
	UploadedAt  time.Time
}

// Measurement is one long record ready to be written.
//
// SamplingPointID is "" when the record has no site. SourceRow is the
// 0-based data row of the upload; it is not stored. RowHash is the natural
// key digest; see MeasurementKey.
type Measurement struct {
	DatasetID       string
	SamplingPointID string
	ParameterID     int64
	TS              *time.Time
	Value           *float64
	Unit            string
	ValueQualifier  string
	SourceColumn    string
	SourceRow       int
	Method          string
	QualityFlag     vocab.QualityFlag
	RowHash         string
}

// Counts is a per-client row census.
type Counts struct {
	Waterbodies    int64
	SamplingPoints int64
	Datasets       int64
	Measurements   int64
}

// Repository is the backend-agnostic persistence contract.
//
// Each backend implements these semantics in its own idiomatic way (Postgres
// ON CONFLICT and SELECT ... FOR UPDATE, SQLite OR IGNORE, SQL Server
// NOT EXISTS guards).
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureSchema creates tables and constraints if missing and seeds the
	// quality_flags table. It is idempotent.
	EnsureSchema(ctx context.Context) error

	// WithTx runs fn inside one transaction.
	//
	// When to use:
	//   - Every write of an ingest goes through a single WithTx call so that
	//     a failure leaves nothing committed.
	//
	// Errors:
	//   - If fn returns an error the transaction is rolled back and that error
	//     is returned as is.
	//   - Commit failures are returned wrapped.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx holds the row-level primitives of one transaction. Merge policy is not
// implemented here; see UpsertWaterbody and UpsertSamplingPoint.
type Tx interface {
	// UpsertClient inserts the client or refreshes its email; a non-empty
	// display name replaces the stored one.
	UpsertClient(ctx context.Context, c Client) error

	// InsertWaterbody inserts wb unless (client, name, type) exists.
	InsertWaterbody(ctx context.Context, wb entity.Waterbody) (inserted bool, err error)
	// LockWaterbody loads and locks the row for (client, name, type).
	// Returns apperrors.ErrNotFound when absent.
	LockWaterbody(ctx context.Context, clientID, name string, typ vocab.WaterbodyType) (entity.Waterbody, error)
	UpdateWaterbody(ctx context.Context, wb entity.Waterbody) error

	// InsertSamplingPoint inserts sp unless (client, code) exists.
	InsertSamplingPoint(ctx context.Context, sp entity.SamplingPoint) (inserted bool, err error)
	// LockSamplingPoint loads and locks the row for (client, code).
	// Returns apperrors.ErrNotFound when absent.
	LockSamplingPoint(ctx context.Context, clientID, code string) (entity.SamplingPoint, error)
	UpdateSamplingPoint(ctx context.Context, sp entity.SamplingPoint) error

	// InsertDataset inserts d unless its non-empty fingerprint exists.
	InsertDataset(ctx context.Context, d Dataset) (inserted bool, err error)
	// DatasetByFingerprint returns the id of the client's dataset carrying fp,
	// or apperrors.ErrNotFound.
	DatasetByFingerprint(ctx context.Context, clientID, fp string) (string, error)
	// LatestDataset returns the most recently uploaded dataset of the client
	// for the waterbody, or apperrors.ErrNotFound.
	LatestDataset(ctx context.Context, clientID, waterbodyID string) (string, error)
	// DatasetExists reports whether id exists and belongs to clientID.
	DatasetExists(ctx context.Context, clientID, id string) (bool, error)
	// TouchDataset sets uploaded_at of id.
	TouchDataset(ctx context.Context, id string, at time.Time) error

	// UpsertParameters inserts descriptors and refreshes display name,
	// allowed units and category of existing ones. Code and standard unit of
	// an existing row are never changed.
	UpsertParameters(ctx context.Context, ps []vocab.Parameter) error
	// ParameterIDs maps codes to parameter ids; unknown codes are absent.
	ParameterIDs(ctx context.Context, codes []string) (map[string]int64, error)
	// EnsureMetaFields records meta codes seen in an ingest.
	EnsureMetaFields(ctx context.Context, codes []string) error

	// InsertMeasurements inserts rows, silently skipping any whose row_hash
	// already exists. It returns the number actually inserted.
	InsertMeasurements(ctx context.Context, ms []Measurement) (int64, error)

	// Counts reports how many rows the client owns.
	Counts(ctx context.Context, clientID string) (Counts, error)
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
