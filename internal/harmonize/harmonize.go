// Package harmonize turns a raw wide table plus validated column mappings into
// the harmonized frame: meta columns named by their meta code first, then
// parameter columns labelled "code [unit]", converted toward the standard
// unit where a conversion is registered.
package harmonize

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/VishalVarwani/waterproject/internal/mapping"
	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/units"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// ColumnReport describes what happened to one kept source column.
type ColumnReport struct {
	Source    string
	Label     string
	Field     string
	Kind      mapping.FieldKind
	FromUnit  string
	Unit      string
	Converted bool
	Reason    units.Reason
}

// Report summarizes a Build.
type Report struct {
	Columns []ColumnReport
	// Dropped lists source headers mapped to "unknown".
	Dropped []string
}

// Converted counts converted columns.
func (r Report) Converted() int {
	n := 0
	for _, c := range r.Columns {
		if c.Converted {
			n++
		}
	}
	return n
}

// Builder builds harmonized frames. It is safe for concurrent use.
type Builder struct {
	reg  *vocab.Registry
	conv *units.Converter
}

func NewBuilder(reg *vocab.Registry, conv *units.Converter) *Builder {
	return &Builder{reg: reg, conv: conv}
}

// Label renders a parameter column label. Sentinel units give a bare code.
func Label(code, unit string) string {
	switch unit {
	case "", vocab.UnitNotPresent, vocab.UnitNotApplicable, vocab.UnitUnknown:
		return code
	}
	return fmt.Sprintf("%s [%s]", code, unit)
}

type paramCol struct {
	col   int
	field string
	unit  string
}

// Build keeps the columns whose mapping is a known meta field or parameter,
// in source order within each group, and drops the rest. Parameter values are
// coerced to numbers (failures become absent) and converted per column;
// columns are independent, so conversion runs in parallel. Labels are made
// unique last.
func (b *Builder) Build(tbl *table.Table, ms []mapping.Mapping) (*table.Frame, Report) {
	var (
		rep    Report
		meta   []table.Column
		metaRp []ColumnReport
		params []paramCol
	)
	for _, m := range ms {
		if m.Column < 0 || m.Column >= tbl.Width() {
			continue
		}
		switch m.Kind {
		case mapping.FieldMeta:
			meta = append(meta, table.Column{Label: m.Field, Kind: table.KindMeta, Text: tbl.Column(m.Column)})
			metaRp = append(metaRp, ColumnReport{
				Source: m.Header, Label: m.Field, Field: m.Field, Kind: m.Kind,
				FromUnit: m.Unit, Unit: m.Unit,
			})
		case mapping.FieldParameter:
			params = append(params, paramCol{col: m.Column, field: m.Field, unit: m.Unit})
		default:
			rep.Dropped = append(rep.Dropped, m.Header)
		}
	}

	pcols := make([]table.Column, len(params))
	prep := make([]ColumnReport, len(params))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range params {
		g.Go(func() error {
			pcols[i], prep[i] = b.convertColumn(tbl, p)
			prep[i].Source = tbl.Headers[p.col]
			return nil
		})
	}
	_ = g.Wait()

	cols := append(meta, pcols...)
	rep.Columns = append(metaRp, prep...)

	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = c.Label
	}
	for i, l := range table.Uniqueify(labels) {
		cols[i].Label = l
		rep.Columns[i].Label = l
	}
	return &table.Frame{Columns: cols, Rows: tbl.Len()}, rep
}

func (b *Builder) convertColumn(tbl *table.Table, p paramCol) (table.Column, ColumnReport) {
	values := table.Coerce(tbl.Column(p.col))
	rp := ColumnReport{Field: p.field, Kind: mapping.FieldParameter, FromUnit: p.unit, Unit: p.unit}

	if Label(p.field, p.unit) == p.field {
		rp.Reason = units.ReasonUnsupported
		return table.Column{Label: p.field, Kind: table.KindParameter, Values: values}, rp
	}
	res := b.conv.Convert(p.field, p.unit, values)
	rp.Unit, rp.Converted, rp.Reason = res.Unit, res.Converted, res.Reason
	return table.Column{Label: Label(p.field, res.Unit), Kind: table.KindParameter, Values: res.Values}, rp
}

// OverrideUnits assigns units to bare parameter columns, keyed by current
// label. Columns that already carry a unit, meta columns, unknown labels and
// empty units are ignored. A registered conversion is applied as in Build.
// It returns the labels that changed, in frame order.
func (b *Builder) OverrideUnits(f *table.Frame, overrides map[string]string) []string {
	var changed []string
	for i := range f.Columns {
		c := &f.Columns[i]
		unit := strings.TrimSpace(overrides[c.Label])
		if c.Kind != table.KindParameter || unit == "" || strings.Contains(c.Label, "[") {
			continue
		}
		code := c.Label
		res := b.conv.Convert(code, unit, c.Values)
		c.Values = res.Values
		c.Label = Label(code, res.Unit)
		changed = append(changed, code)
	}
	if len(changed) > 0 {
		for i, l := range table.Uniqueify(f.Labels()) {
			f.Columns[i].Label = l
		}
	}
	return changed
}
