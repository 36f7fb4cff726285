// Package melt reshapes a harmonized wide frame into long records, one per
// (row, parameter column) pair.
package melt

import (
	"regexp"
	"strings"
	"time"

	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Record is one long measurement. Absent values are nil; an absent site or
// unit is "". Row is the 0-based frame row the value came from.
type Record struct {
	TS           *time.Time
	Site         string
	Parameter    string
	Unit         string
	Value        *float64
	SourceColumn string
	Row          int
}

// Layout reports which frame columns played which role.
type Layout struct {
	Timestamp  string
	Time       string // time-of-day column merged into a date Timestamp
	Site       string
	Parameters []string
	// DayFirst is set when timestamps parsed better as day/month.
	DayFirst bool
}

var (
	unitInBrackets = regexp.MustCompile(`^([^\[]+?)\s*\[([^\]]+)\]\s*$`)
	dupSuffix      = regexp.MustCompile(`\s\(\d+\)$`)
)

// ParseHeader splits "name [unit]" into (lowercased name, unit). A bare name
// has no unit. A trailing " (N)" added when labels were made unique is
// ignored.
func ParseHeader(label string) (code, unit string) {
	s := strings.TrimSpace(dupSuffix.ReplaceAllString(strings.TrimSpace(label), ""))
	if m := unitInBrackets.FindStringSubmatch(s); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1])), strings.TrimSpace(m[2])
	}
	return strings.ToLower(s), ""
}

// Melt returns len(layout.Parameters) × f.Rows records, grouped by column in
// frame order. The timestamp and site columns are chosen by synonym priority;
// when the timestamp is a date column and a time column exists, each date is
// completed with its time of day. Every other column, meta or not, is a
// parameter series. Cells that are not numbers are kept as absent values.
func Melt(f *table.Frame) ([]Record, Layout) {
	var lay Layout
	lay.Timestamp, _ = f.FirstPresent(vocab.TimestampFields()...)
	lay.Site, _ = f.FirstPresent(vocab.SiteFields()...)

	if lay.Timestamp == "date" && f.Index("time") >= 0 {
		lay.Time = "time"
	}

	var stamps []*time.Time
	if lay.Timestamp != "" {
		cells := f.TextOf(lay.Timestamp)
		if lay.Time != "" {
			cells = joinDateTime(cells, f.TextOf(lay.Time))
		}
		stamps, lay.DayFirst = ParseTimestamps(cells)
	}
	var sites []string
	if lay.Site != "" {
		sites = f.TextOf(lay.Site)
	}

	for _, c := range f.Columns {
		if c.Label == lay.Timestamp || c.Label == lay.Time || c.Label == lay.Site {
			continue
		}
		lay.Parameters = append(lay.Parameters, c.Label)
	}

	out := make([]Record, 0, len(lay.Parameters)*f.Rows)
	for _, label := range lay.Parameters {
		code, unit := ParseHeader(label)
		values := f.ValuesOf(label)
		for row := 0; row < f.Rows; row++ {
			r := Record{Parameter: code, Unit: unit, SourceColumn: label, Row: row}
			if row < len(values) {
				r.Value = values[row]
			}
			if row < len(stamps) {
				r.TS = stamps[row]
			}
			if row < len(sites) {
				r.Site = strings.TrimSpace(sites[row])
			}
			out = append(out, r)
		}
	}
	return out, lay
}

// joinDateTime appends each time cell to its date cell. A date that already
// carries a time, or an empty cell on either side, is left as is.
func joinDateTime(dates, times []string) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		d = strings.TrimSpace(d)
		out[i] = d
		if i >= len(times) || d == "" || strings.ContainsAny(d, " T") {
			continue
		}
		if tm := strings.TrimSpace(times[i]); tm != "" {
			out[i] = d + " " + tm
		}
	}
	return out
}
