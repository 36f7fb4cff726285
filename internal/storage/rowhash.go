package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// MeasurementKey digests the natural key of a measurement:
// (dataset, sampling_point, parameter, ts, source_column). Without a
// timestamp the source row ordinal stands in for it, so undated readings of
// one column stay distinct while a re-ingest of the same file still matches.
//
// A UNIQUE constraint over the nullable key columns would not deduplicate
// rows whose site or timestamp is NULL, since SQL treats NULLs as distinct.
// The digest is never NULL, so a UNIQUE row_hash column enforces the key for
// every row.
//
// Canonical form: "name=value" components joined by 0x1f; an absent value
// is a single NUL byte so it differs from an empty string; timestamps are
// RFC3339Nano in UTC. Output is 64 lowercase hex characters.
func MeasurementKey(datasetID, samplingPointID string, parameterID int64, ts *time.Time, sourceColumn string, sourceRow int) string {
	var b strings.Builder
	b.Grow(160)

	field := func(name string) {
		if b.Len() > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(name)
		b.WriteByte('=')
	}
	text := func(name, v string) {
		field(name)
		if v == "" {
			b.WriteByte('\x00')
			return
		}
		b.WriteString(v)
	}

	text("dataset_id", datasetID)
	text("sampling_point_id", samplingPointID)
	field("parameter_id")
	b.WriteString(strconv.FormatInt(parameterID, 10))
	field("ts")
	if ts == nil {
		b.WriteByte('\x00')
		field("source_row")
		b.WriteString(strconv.Itoa(sourceRow))
	} else {
		b.WriteString(ts.UTC().Format(time.RFC3339Nano))
	}
	text("source_column", strings.TrimSpace(sourceColumn))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// WithRowHash fills RowHash of every measurement and drops later rows whose
// key repeats an earlier one in the same batch. Order is preserved.
func WithRowHash(ms []Measurement) []Measurement {
	seen := make(map[string]struct{}, len(ms))
	out := make([]Measurement, 0, len(ms))
	for _, m := range ms {
		m.RowHash = MeasurementKey(m.DatasetID, m.SamplingPointID, m.ParameterID, m.TS, m.SourceColumn, m.SourceRow)
		if _, dup := seen[m.RowHash]; dup {
			continue
		}
		seen[m.RowHash] = struct{}{}
		out = append(out, m)
	}
	return out
}
