package harmonize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishalVarwani/waterproject/internal/mapping"
	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/units"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

func builder() *Builder {
	reg := vocab.Default()
	return NewBuilder(reg, units.Default(reg))
}

func param(col int, header, field, unit string) mapping.Mapping {
	return mapping.Mapping{Header: header, Column: col, Kind: mapping.FieldParameter, Field: field, Unit: unit, Suggested: true}
}

func meta(col int, header, field string) mapping.Mapping {
	return mapping.Mapping{Header: header, Column: col, Kind: mapping.FieldMeta, Field: field, Unit: vocab.UnitNotApplicable, Suggested: true}
}

func rawTable() *table.Table {
	return &table.Table{
		Headers: []string{"Temp (°F)", "Fecha", "Nitrato", "Comentario", "pH", "Sitio", "Nitrato µg"},
		Rows: [][]string{
			{"32", "2024-01-01", "1.5", "ok", "7.1", "Presa", "250"},
			{"212", "2024-01-02", "n/a", "", "7.3", "Torre 1", ""},
		},
	}
}

func rawMappings() []mapping.Mapping {
	return []mapping.Mapping{
		param(0, "Temp (°F)", "temperature", "F"),
		meta(1, "Fecha", "timestamp"),
		param(2, "Nitrato", "nitrate", vocab.UnitNotPresent),
		{Header: "Comentario", Column: 3, Kind: mapping.FieldUnknown, Field: vocab.Unknown},
		param(4, "pH", "ph", "unitless"),
		meta(5, "Sitio", "sampling_point"),
		param(6, "Nitrato µg", "nitrate", "µg/L"),
	}
}

func TestBuild_OrderLabelsAndConversion(t *testing.T) {
	t.Parallel()
	f, rep := builder().Build(rawTable(), rawMappings())

	assert.Equal(t, []string{
		"timestamp", "sampling_point",
		"temperature [C]", "nitrate", "ph [unitless]", "nitrate [mg/L]",
	}, f.Labels())
	assert.Equal(t, 2, f.Rows)
	assert.Equal(t, []string{"Comentario"}, rep.Dropped)
	assert.Equal(t, 2, rep.Converted())

	temp := f.ValuesOf("temperature [C]")
	assert.InDelta(t, 0, *temp[0], 1e-9)
	assert.InDelta(t, 100, *temp[1], 1e-9)

	nitrate := f.ValuesOf("nitrate")
	assert.Equal(t, 1.5, *nitrate[0])
	assert.Nil(t, nitrate[1], "non-numeric cell becomes absent")

	ug := f.ValuesOf("nitrate [mg/L]")
	assert.InDelta(t, 0.25, *ug[0], 1e-9)
	assert.Nil(t, ug[1])

	assert.Equal(t, []string{"Presa", "Torre 1"}, f.TextOf("sampling_point"))

	require.Len(t, rep.Columns, 6)
	assert.Equal(t, "Temp (°F)", rep.Columns[2].Source)
	assert.Equal(t, units.ReasonConverted, rep.Columns[2].Reason)
	assert.Equal(t, units.ReasonAlreadyStandard, rep.Columns[4].Reason)
}

func TestBuild_DuplicateLabelsAreUniqueified(t *testing.T) {
	t.Parallel()
	tbl := &table.Table{Headers: []string{"a", "b", "c"}, Rows: [][]string{{"1", "2", "3"}}}
	f, rep := builder().Build(tbl, []mapping.Mapping{
		param(0, "a", "ph", "unitless"),
		param(1, "b", "ph", "unitless"),
		param(2, "c", "ph", "unitless"),
	})
	assert.Equal(t, []string{"ph [unitless]", "ph [unitless] (1)", "ph [unitless] (2)"}, f.Labels())
	assert.Equal(t, "ph [unitless] (2)", rep.Columns[2].Label)
}

func TestBuild_UnsupportedUnitKeepsSourceUnit(t *testing.T) {
	t.Parallel()
	tbl := &table.Table{Headers: []string{"OD"}, Rows: [][]string{{"95"}}}
	f, rep := builder().Build(tbl, []mapping.Mapping{param(0, "OD", "dissolved_oxygen", "%sat")})

	assert.Equal(t, []string{"dissolved_oxygen [%sat]"}, f.Labels())
	assert.Equal(t, 95.0, *f.ValuesOf("dissolved_oxygen [%sat]")[0])
	assert.False(t, rep.Columns[0].Converted)
	assert.Equal(t, units.ReasonUnsupported, rep.Columns[0].Reason)
}

func TestOverrideUnits(t *testing.T) {
	t.Parallel()
	b := builder()
	f, _ := b.Build(rawTable(), rawMappings())

	changed := b.OverrideUnits(f, map[string]string{
		"nitrate":        "µg/L",
		"ph [unitless]":  "mg/L",
		"timestamp":      "s",
		"no such column": "mg/L",
	})
	assert.Equal(t, []string{"nitrate"}, changed)
	assert.Equal(t, []string{
		"timestamp", "sampling_point",
		"temperature [C]", "nitrate [mg/L]", "ph [unitless]", "nitrate [mg/L] (1)",
	}, f.Labels())
	assert.InDelta(t, 0.0015, *f.ValuesOf("nitrate [mg/L]")[0], 1e-12)
}

func TestSamplingPoints(t *testing.T) {
	t.Parallel()
	f := &table.Frame{
		Rows: 5,
		Columns: []table.Column{
			{Label: "site", Kind: table.KindMeta, Text: []string{" Presa ", "Torre  1", "", "Presa", "Torre 1"}},
			{Label: "latitude", Kind: table.KindMeta, Text: []string{"", "6.1", "", "6.2", "6.3"}},
			{Label: "lon", Kind: table.KindMeta, Text: []string{"-75.4", "x", "", "", "-75.5"}},
			{Label: "depth", Kind: table.KindMeta, Text: []string{"", "", "", "2", ""}},
		},
	}
	got := SamplingPoints(f)
	require.Len(t, got, 2)

	assert.Equal(t, "Presa", got[0].Code)
	assert.Equal(t, "Presa", got[0].Name)
	assert.Equal(t, 6.2, *got[0].Lat)
	assert.Equal(t, -75.4, *got[0].Lon)
	assert.Equal(t, 2.0, *got[0].Depth)

	assert.Equal(t, "Torre 1", got[1].Code)
	assert.Equal(t, 6.1, *got[1].Lat)
	assert.Equal(t, -75.5, *got[1].Lon)
	assert.Nil(t, got[1].Depth)

	assert.Nil(t, SamplingPoints(&table.Frame{Columns: []table.Column{{Label: "timestamp", Kind: table.KindMeta}}}))
}
