package datadog

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishalVarwani/waterproject/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "test",
		Tags:      []string{"team:lab"},
		now:       func() time.Time { return time.Unix(1700000000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
		submitter: fs,
	})
	require.NoError(t, err)
	return b
}

func seriesByName(p datadogV2.MetricPayload) map[string]datadogV2.MetricSeries {
	out := make(map[string]datadogV2.MetricSeries, len(p.Series))
	for _, s := range p.Series {
		out[s.Metric] = s
	}
	return out
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			assert.Equal(t, tc.want, resolveEnvTag())
		})
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "persist", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 40, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.OracleRequestsTotal, 1, metrics.Labels{"provider": "openai", "status": "error"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "persist", "status": "ok"})

	require.NoError(t, b.Flush())
	require.Equal(t, 1, fs.count())

	got := seriesByName(fs.last())
	require.Contains(t, got, "ingest.step.total")
	require.Contains(t, got, "ingest.records.total")
	require.Contains(t, got, "oracle.requests.total")
	require.Contains(t, got, "ingest.step.duration_seconds.p50")

	rec := got["ingest.records.total"]
	assert.Equal(t, 40.0, *rec.Points[0].Value)
	assert.Equal(t, int64(1700000000), *rec.Points[0].Timestamp)
	assert.Contains(t, rec.Tags, "job:test")
	assert.Contains(t, rec.Tags, "team:lab")
	assert.Contains(t, rec.Tags, "kind:inserted")
	assert.Contains(t, got["oracle.requests.total"].Tags, "status:error")

	// Buffers were reset: nothing left to send.
	require.NoError(t, b.Flush())
	assert.Equal(t, 1, fs.count())
}

func TestFlush_WrapsSubmitError(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("403")}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "in"})
	err := b.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datadog submit")
}

func TestIncCounterAndObserveHistogram_EdgeCases(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RecordsTotal, 0, metrics.Labels{"kind": "in"})
	b.IncCounter(metrics.RecordsTotal, -3, metrics.Labels{"kind": "in"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_metric", 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, nil)
	b.ObserveHistogram("unknown_hist", 1, nil)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, fs.count())
}

func TestClose_FinalFlush(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "read"})
	require.NoError(t, b.Close())
	require.Equal(t, 1, fs.count())

	s := seriesByName(fs.last())["ingest.step.total"]
	assert.Contains(t, s.Tags, "status:unknown")
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "in"})
				if j%10 == 0 {
					_ = b.Flush()
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, b.Close())

	var total float64
	fs.mu.Lock()
	for _, p := range fs.payloads {
		for _, s := range p.Series {
			if s.Metric == "ingest.records.total" {
				total += *s.Points[0].Value
			}
		}
	}
	fs.mu.Unlock()
	assert.Equal(t, 800.0, total)
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()
	s := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 0.0, percentileNearestRank(nil, 0.5))
	assert.Equal(t, 1.0, percentileNearestRank(s, 0))
	assert.Equal(t, 3.0, percentileNearestRank(s, 0.5))
	assert.Equal(t, 5.0, percentileNearestRank(s, 0.99))
	assert.Equal(t, 5.0, percentileNearestRank(s, 1))
}

func TestPairKeyRoundTrip(t *testing.T) {
	t.Parallel()
	a, b := splitPairKey(pairKey("persist", "ok"))
	assert.Equal(t, "persist", a)
	assert.Equal(t, "ok", b)

	a, b = splitPairKey("nokey")
	assert.Equal(t, "nokey", a)
	assert.Equal(t, "unknown", b)
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ParseTagsCSV(""))
	assert.Equal(t, []string{"env:prod", "team:lab"}, ParseTagsCSV(" env:prod, ,team:lab "))
}
