// Package table reads raw wide tables from uploaded files and models the
// harmonized, typed frame built from them.
package table

import (
	"strings"
)

// Table is a raw wide table: one header row and text data rows. Every row has
// exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.Headers) }

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Cell returns the trimmed cell text, or "" when out of range.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Column returns a copy of column col.
func (t *Table) Column(col int) []string {
	out := make([]string, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Cell(i, col)
	}
	return out
}

// HeadCells renders up to rows×cols top-left cells, one " | "-joined line per
// row, with whitespace collapsed.
func (t *Table) HeadCells(rows, cols int) []string {
	rows = min(rows, t.Len())
	cols = min(cols, t.Width())
	out := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		parts := make([]string, cols)
		for j := 0; j < cols; j++ {
			parts[j] = CollapseSpace(t.Cell(i, j))
		}
		out = append(out, strings.Join(parts, " | "))
	}
	return out
}

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
