package table

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
)

// HeaderScanRows bounds how many leading records are scored as header candidates.
const HeaderScanRows = 30

var (
	hasLetterRE = regexp.MustCompile(`\p{L}`)
	numLikeRE   = regexp.MustCompile(`(?i)^\s*[-+]?\d*\.?\d+(e[-+]?\d+)?\s*$`)
)

// ScoreHeaderRow rates how much a record looks like a header: text cells and
// distinct values count for it, numeric-only cells against it.
//
//	score = texty + 0.5*unique - 0.75*numeric + 0.1*nonEmpty
func ScoreHeaderRow(rec []string) float64 {
	var nonEmpty, texty, numeric int
	uniq := make(map[string]struct{}, len(rec))
	for _, v := range rec {
		s := strings.TrimSpace(v)
		if s != "" {
			nonEmpty++
			uniq[strings.ToLower(s)] = struct{}{}
		}
		if hasLetterRE.MatchString(v) {
			texty++
		}
		if numLikeRE.MatchString(v) {
			numeric++
		}
	}
	return float64(texty) + 0.5*float64(len(uniq)) - 0.75*float64(numeric) + 0.1*float64(nonEmpty)
}

// DetectHeaderRow returns the index of the best-scoring record among the
// first HeaderScanRows. Ties keep the earliest record.
func DetectHeaderRow(records [][]string) int {
	best, bestScore := 0, math.Inf(-1)
	for i := 0; i < len(records) && i < HeaderScanRows; i++ {
		if s := ScoreHeaderRow(records[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// FromRecords builds a Table from raw records: the detected header row becomes
// Headers, records above it are discarded and blank records are skipped. The
// width is that of the widest record from the header row down; shorter rows
// are padded. Empty or missing header cells are named "column_<n>" (1-based).
func FromRecords(records [][]string) (*Table, error) {
	records = dropBlank(records)
	if len(records) == 0 {
		return nil, fmt.Errorf("table: no records: %w", apperrors.ErrEmptyTable)
	}

	hi := DetectHeaderRow(records)
	hdr := records[hi]

	width := len(hdr)
	for _, r := range records[hi+1:] {
		width = max(width, len(r))
	}

	t := &Table{Headers: make([]string, width)}
	for i := range t.Headers {
		h := ""
		if i < len(hdr) {
			h = CollapseSpace(strings.TrimPrefix(hdr[i], "\uFEFF"))
		}
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		t.Headers[i] = h
	}

	for _, r := range records[hi+1:] {
		row := make([]string, width)
		for i := 0; i < width && i < len(r); i++ {
			row[i] = strings.TrimSpace(r[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func dropBlank(records [][]string) [][]string {
	out := records[:0:0]
	for _, r := range records {
		for _, v := range r {
			if strings.TrimSpace(v) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Uniqueify suffixes repeated labels: the second "x" becomes "x (1)", the
// third "x (2)", and so on. The first occurrence is unchanged. A suffix that
// is already some input label is skipped, so the result has no repeats.
func Uniqueify(labels []string) []string {
	taken := make(map[string]bool, len(labels))
	for _, l := range labels {
		taken[l] = true
	}
	used := make(map[string]bool, len(labels))
	next := make(map[string]int, len(labels))
	out := make([]string, len(labels))
	for i, l := range labels {
		if !used[l] {
			used[l] = true
			out[i] = l
			continue
		}
		for {
			next[l]++
			c := fmt.Sprintf("%s (%d)", l, next[l])
			if !taken[c] && !used[c] {
				used[c] = true
				out[i] = c
				break
			}
		}
	}
	return out
}
