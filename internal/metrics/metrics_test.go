package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	counters []call
	hists    []call
	flushes  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, call{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, call{name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushes++
	return nil
}

// Not parallel: these tests swap the process-wide backend.

func TestHelpers_RouteToBackend(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("read", nil, 1500*time.Millisecond)
	RecordStep("persist", errors.New("x"), time.Second)
	RecordRecords("inserted", 12)
	RecordRecords("skipped", 0)
	RecordOracle("openai", nil, 2*time.Second)
	require.NoError(t, Flush())

	require.Len(t, rec.counters, 4)
	assert.Equal(t, call{StepTotal, 1, Labels{"step": "read", "status": StatusOK}}, rec.counters[0])
	assert.Equal(t, StatusError, rec.counters[1].labels["status"])
	assert.Equal(t, call{RecordsTotal, 12, Labels{"kind": "inserted"}}, rec.counters[2])
	assert.Equal(t, OracleRequestsTotal, rec.counters[3].name)

	require.Len(t, rec.hists, 3)
	assert.Equal(t, 1.5, rec.hists[0].value)
	assert.Equal(t, OracleDurationSeconds, rec.hists[2].name)
	assert.Equal(t, 1, rec.flushes)
}

func TestStep_TimesTheCall(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	done := Step("melt")
	done(nil)

	require.Len(t, rec.hists, 1)
	assert.Equal(t, "melt", rec.hists[0].labels["step"])
	assert.GreaterOrEqual(t, rec.hists[0].value, 0.0)
}

func TestNopBackend_IsDefault(t *testing.T) {
	SetBackend(nil)
	assert.NotPanics(t, func() {
		RecordStep("x", nil, time.Second)
		RecordRecords("in", 1)
	})
	assert.NoError(t, Flush())
}
