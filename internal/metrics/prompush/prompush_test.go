package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishalVarwani/waterproject/internal/metrics"
)

func TestNewBackend_Validates(t *testing.T) {
	t.Parallel()
	_, err := NewBackend(" ", "http://localhost:9091", nil)
	assert.Error(t, err)
	_, err = NewBackend("job", "", nil)
	assert.Error(t, err)
}

func TestBackend_RecordsIntoRegistry(t *testing.T) {
	t.Parallel()
	b, err := NewBackend("water_ingest", "http://unused", nil)
	require.NoError(t, err)

	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.RecordsTotal, 2, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "read"})
	b.IncCounter("nope", 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.3, metrics.Labels{"step": "read", "status": "ok"})

	assert.Equal(t, 7.0, testutil.ToFloat64(b.records.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.stepTotal.WithLabelValues("read", "unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(b.stepDuration))
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		path   string
		method string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, method, body = r.URL.Path, r.Method, string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("water_ingest", srv.URL, map[string]string{"client": "c1", "": "x"})
	require.NoError(t, err)
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "in"})

	require.NoError(t, b.Flush())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/water_ingest"), path)
	assert.Contains(t, path, "/client/c1")
	assert.Contains(t, body, metrics.RecordsTotal)
}

func TestFlush_ReportsGatewayError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("water_ingest", srv.URL, nil)
	require.NoError(t, err)
	err = b.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pushgateway push")
}
