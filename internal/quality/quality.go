// Package quality assigns exactly one quality flag to every long record.
//
// Priority, first match wins: missing, out_of_range, outlier, ok.
//
// Outliers are batch-relative. Quartiles are computed per parameter over the
// records of one call that are neither missing nor out of range, so the same
// value can be an outlier in one ingest and ok in another.
package quality

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/VishalVarwani/waterproject/internal/melt"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

const (
	// MinOutlierSample is the smallest per-parameter sample that is scored.
	MinOutlierSample = 5
	// FenceK is the Tukey fence multiplier.
	FenceK = 3.0
)

// Engine is stateless apart from the registry it reads ranges from.
type Engine struct {
	reg *vocab.Registry
}

func NewEngine(reg *vocab.Registry) *Engine { return &Engine{reg: reg} }

// Assign returns one flag per record, aligned with records. Parameters are
// scored concurrently; each parameter's quartiles see all of its eligible
// values in the batch. The only error is ctx's.
func (e *Engine) Assign(ctx context.Context, records []melt.Record) ([]vocab.QualityFlag, error) {
	flags := make([]vocab.QualityFlag, len(records))
	eligible := make(map[string][]int)

	for i, r := range records {
		switch {
		case r.Value == nil || math.IsNaN(*r.Value):
			flags[i] = vocab.FlagMissing
		case e.outOfRange(r.Parameter, *r.Value):
			flags[i] = vocab.FlagOutOfRange
		default:
			flags[i] = vocab.FlagOK
			eligible[r.Parameter] = append(eligible[r.Parameter], i)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, idx := range eligible {
		if len(idx) < MinOutlierSample {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Each goroutine writes only its own parameter's indices.
			markOutliers(records, idx, flags)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return flags, nil
}

func (e *Engine) outOfRange(param string, v float64) bool {
	rg, ok := e.reg.PlausibleRange(param)
	return ok && !rg.Contains(v)
}

func markOutliers(records []melt.Record, idx []int, flags []vocab.QualityFlag) {
	vals := make([]float64, len(idx))
	for j, i := range idx {
		vals[j] = *records[i].Value
	}
	low, high, ok := Fence(vals, FenceK)
	if !ok {
		return
	}
	for _, i := range idx {
		if v := *records[i].Value; v < low || v > high {
			flags[i] = vocab.FlagOutlier
		}
	}
}

// Fence returns the Tukey fence [Q1-k·IQR, Q3+k·IQR] of vals. ok is false
// when the IQR is zero or undefined.
func Fence(vals []float64, k float64) (low, high float64, ok bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	if iqr == 0 || math.IsNaN(iqr) {
		return 0, 0, false
	}
	return q1 - k*iqr, q3 + k*iqr, true
}

// Quantile interpolates linearly between the closest ranks of sorted,
// which must be ascending and non-empty.
func Quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

// Counts tallies flags by code.
func Counts(flags []vocab.QualityFlag) map[string]int {
	out := make(map[string]int, 4)
	for _, f := range flags {
		out[f.Code()]++
	}
	return out
}
