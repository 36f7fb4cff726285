// Package metrics is the backend-neutral instrumentation surface.
//
// Pipeline code records through the package-level helpers; a process picks a
// Backend once at startup with SetBackend. The default backend drops
// everything, so tests and library callers need no setup.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	StepTotal             = "ingest_step_total"
	StepDurationSeconds   = "ingest_step_duration_seconds"
	RecordsTotal          = "ingest_records_total"
	OracleRequestsTotal   = "oracle_requests_total"
	OracleDurationSeconds = "oracle_request_duration_seconds"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives measurements. Implementations must be safe for
// concurrent use and ignore names they do not know.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels) {}

func (nopBackend) ObserveHistogram(string, float64, Labels) {}

func (nopBackend) Flush() error { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordStep counts one execution of a pipeline step and observes its
// duration.
func RecordStep(step string, err error, d time.Duration) {
	l := Labels{"step": step, "status": status(err)}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// Step starts timing step; call the returned func with the step's error.
//
//	done := metrics.Step("persist")
//	err := persist()
//	done(err)
func Step(step string) func(error) {
	start := time.Now()
	return func(err error) { RecordStep(step, err, time.Since(start)) }
}

// RecordRecords adds n to the record counter of kind (in, inserted,
// skipped, dropped). Non-positive n is ignored.
func RecordRecords(kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordOracle counts one language-model call.
func RecordOracle(provider string, err error, d time.Duration) {
	l := Labels{"provider": provider, "status": status(err)}
	b := current()
	b.IncCounter(OracleRequestsTotal, 1, l)
	b.ObserveHistogram(OracleDurationSeconds, d.Seconds(), l)
}
