package harmonize

import (
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// SiteColumn returns the frame's site column label by synonym priority.
func SiteColumn(f *table.Frame) (string, bool) {
	return f.FirstPresent(vocab.SiteFields()...)
}

// SamplingPoints lists the distinct site labels of f in first-seen order. Each
// point carries the first non-empty latitude, longitude and depth seen on a
// row of that site. Labels are compared after whitespace collapsing; blank
// labels are skipped. A frame without a site column has no points.
func SamplingPoints(f *table.Frame) []entity.SamplingPoint {
	siteCol, ok := SiteColumn(f)
	if !ok {
		return nil
	}
	sites := f.TextOf(siteCol)
	lat := numbers(f, vocab.LatitudeFields())
	lon := numbers(f, vocab.LongitudeFields())
	depth := numbers(f, vocab.DepthFields())

	var out []entity.SamplingPoint
	index := make(map[string]int)
	for row, label := range sites {
		code := entity.SiteCode(label)
		if code == "" {
			continue
		}
		i, seen := index[code]
		if !seen {
			i = len(out)
			index[code] = i
			out = append(out, entity.SamplingPoint{Code: code, Name: code})
		}
		sp := &out[i]
		if sp.Lat == nil {
			sp.Lat = at(lat, row)
		}
		if sp.Lon == nil {
			sp.Lon = at(lon, row)
		}
		if sp.Depth == nil {
			sp.Depth = at(depth, row)
		}
	}
	return out
}

func numbers(f *table.Frame, candidates []string) []*float64 {
	label, ok := f.FirstPresent(candidates...)
	if !ok {
		return nil
	}
	return f.ValuesOf(label)
}

func at(vs []*float64, i int) *float64 {
	if i >= len(vs) || vs[i] == nil {
		return nil
	}
	v := *vs[i]
	return &v
}
