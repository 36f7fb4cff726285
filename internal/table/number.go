package table

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber coerces a cell to a finite float64. Surrounding whitespace,
// including non-breaking spaces, is ignored. Decimal commas are accepted:
//
//   - with both '.' and ',' the later one is the decimal mark and the other
//     groups thousands ("1.234,5", "1,234.5");
//   - a single ',' is a decimal mark ("7,5"); several group thousands;
//   - several '.' group thousands ("1.234.567").
//
// Anything else that does not parse, and NaN/Inf, reports false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalizeDecimal(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func normalizeDecimal(s string) string {
	commas, dots := strings.Count(s, ","), strings.Count(s, ".")
	switch {
	case commas == 0 && dots <= 1:
		return s
	case commas > 0 && dots > 0:
		if strings.LastIndexByte(s, ',') > strings.LastIndexByte(s, '.') {
			return strings.Replace(ungroup(s, "."), ",", ".", 1)
		}
		return ungroup(s, ",")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return ungroup(s, ",")
	default:
		return ungroup(s, ".")
	}
}

// ungroup drops the thousands separator sep when every group after the
// first has exactly three digits; otherwise s is returned unchanged.
func ungroup(s, sep string) string {
	intPart := s
	other := "."
	if sep == "." {
		other = ","
	}
	if i := strings.Index(s, other); i >= 0 {
		intPart = s[:i]
	}
	groups := strings.Split(intPart, sep)
	for _, g := range groups[1:] {
		if len(g) != 3 || strings.Trim(g, "0123456789") != "" {
			return s
		}
	}
	return strings.Join(groups, "") + s[len(intPart):]
}

// Coerce parses every cell with ParseNumber; failures are nil.
func Coerce(cells []string) []*float64 {
	out := make([]*float64, len(cells))
	for i, c := range cells {
		if v, ok := ParseNumber(c); ok {
			out[i] = &v
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
