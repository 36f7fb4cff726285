// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Metrics accumulate in a private registry; Flush pushes the whole registry
// to the gateway under the job (and optional grouping labels). Batch CLIs
// call Flush once at exit.
package prompush

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/VishalVarwani/waterproject/internal/metrics"
)

// Backend implements metrics.Backend on a prometheus.Registry.
type Backend struct {
	url      string
	job      string
	grouping map[string]string
	timeout  time.Duration

	registry *prometheus.Registry

	stepTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	records      *prometheus.CounterVec
	oracleTotal  *prometheus.CounterVec
	oracleDur    *prometheus.HistogramVec
}

// NewBackend creates a backend pushing to url under job. Grouping labels
// with an empty key or value are ignored.
func NewBackend(job, url string, grouping map[string]string) (*Backend, error) {
	job = strings.TrimSpace(job)
	if job == "" {
		return nil, errors.New("pushgateway job is required")
	}
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("pushgateway url is required")
	}

	b := &Backend{
		url:      url,
		job:      job,
		grouping: grouping,
		timeout:  10 * time.Second,
		registry: prometheus.NewRegistry(),

		stepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by outcome.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline step wall time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Long-format records by disposition.",
		}, []string{"kind"}),
		oracleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.OracleRequestsTotal,
			Help: "Language-model calls by provider and outcome.",
		}, []string{"provider", "status"}),
		oracleDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.OracleDurationSeconds,
			Help:    "Language-model call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider", "status"}),
	}

	for _, c := range []prometheus.Collector{b.stepTotal, b.stepDuration, b.records, b.oracleTotal, b.oracleDur} {
		if err := b.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.stepTotal.WithLabelValues(label(labels, "step"), label(labels, "status")).Add(delta)
	case metrics.RecordsTotal:
		if labels["kind"] == "" {
			return
		}
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.OracleRequestsTotal:
		b.oracleTotal.WithLabelValues(label(labels, "provider"), label(labels, "status")).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	switch name {
	case metrics.StepDurationSeconds:
		b.stepDuration.WithLabelValues(label(labels, "step"), label(labels, "status")).Observe(value)
	case metrics.OracleDurationSeconds:
		b.oracleDur.WithLabelValues(label(labels, "provider"), label(labels, "status")).Observe(value)
	}
}

// Flush pushes the registry, replacing the previous push of this job and
// grouping.
func (b *Backend) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	pusher := push.New(b.url, b.job).Gatherer(b.registry)
	for k, v := range b.grouping {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushgateway push: %w", err)
	}
	return nil
}

// Registry exposes the underlying registry, e.g. for tests.
func (b *Backend) Registry() *prometheus.Registry { return b.registry }

func label(l metrics.Labels, k string) string {
	if v := l[k]; v != "" {
		return v
	}
	return "unknown"
}

var _ metrics.Backend = (*Backend)(nil)
