package table

// ColumnKind tags a harmonized column before any numeric work happens on it.
type ColumnKind uint8

const (
	// KindMeta columns carry text (timestamps, site labels, coordinates...).
	KindMeta ColumnKind = iota
	// KindParameter columns carry coerced numbers.
	KindParameter
)

// Column is one harmonized column. Meta columns use Text; parameter columns
// use Values. Both slices, when set, have Frame.Rows entries.
type Column struct {
	Label  string
	Kind   ColumnKind
	Text   []string
	Values []*float64
}

// Frame is the harmonized wide table: meta columns named by meta code, then
// parameter columns labelled "code [unit]" or "code".
type Frame struct {
	Columns []Column
	Rows    int
}

// Labels returns the column labels in order.
func (f *Frame) Labels() []string {
	out := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		out[i] = c.Label
	}
	return out
}

// Index returns the position of the column labelled label, or -1.
func (f *Frame) Index(label string) int {
	for i, c := range f.Columns {
		if c.Label == label {
			return i
		}
	}
	return -1
}

// FirstPresent returns the label of the first candidate present in f.
func (f *Frame) FirstPresent(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if f.Index(c) >= 0 {
			return c, true
		}
	}
	return "", false
}

// TextOf returns the cells of column label as text. Parameter columns are
// rendered from their values; absent values are "".
func (f *Frame) TextOf(label string) []string {
	i := f.Index(label)
	if i < 0 {
		return nil
	}
	c := f.Columns[i]
	if c.Kind == KindMeta {
		return c.Text
	}
	out := make([]string, len(c.Values))
	for j, v := range c.Values {
		if v != nil {
			out[j] = formatFloat(*v)
		}
	}
	return out
}

// ValuesOf returns the cells of column label as numbers. Meta columns are
// coerced with ParseNumber.
func (f *Frame) ValuesOf(label string) []*float64 {
	i := f.Index(label)
	if i < 0 {
		return nil
	}
	c := f.Columns[i]
	if c.Kind == KindParameter {
		return c.Values
	}
	return Coerce(c.Text)
}
