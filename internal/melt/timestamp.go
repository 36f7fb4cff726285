package melt

import (
	"strings"
	"time"
)

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Dotted dates are day-first everywhere they occur.
var dottedLayouts = []string{
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
}

var monthFirstLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1-2-2006",
}

var dayFirstLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006",
}

// ParseTime parses s with the ISO, dotted and then the month-first or
// day-first layouts. Results are UTC; inputs without a zone are taken as UTC.
func ParseTime(s string, dayFirst bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	ambiguous := monthFirstLayouts
	if dayFirst {
		ambiguous = dayFirstLayouts
	}
	for _, group := range [][]string{isoLayouts, dottedLayouts, ambiguous} {
		for _, lay := range group {
			if t, err := time.Parse(lay, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ParseTimestamps parses a column month-first. When more than half of the
// cells fail it retries day-first and keeps whichever pass parsed more cells.
// Unparseable cells are nil.
func ParseTimestamps(cells []string) ([]*time.Time, bool) {
	first, okFirst := parseAll(cells, false)
	if len(cells) == 0 || float64(len(cells)-okFirst)/float64(len(cells)) <= 0.5 {
		return first, false
	}
	second, okSecond := parseAll(cells, true)
	if okSecond > okFirst {
		return second, true
	}
	return first, false
}

func parseAll(cells []string, dayFirst bool) ([]*time.Time, int) {
	out := make([]*time.Time, len(cells))
	n := 0
	for i, c := range cells {
		if t, ok := ParseTime(c, dayFirst); ok {
			out[i] = &t
			n++
		}
	}
	return out, n
}
