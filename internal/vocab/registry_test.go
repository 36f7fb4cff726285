package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LookupSurface(t *testing.T) {
	t.Parallel()
	r := Default()

	std, ok := r.StandardUnit("temperature")
	require.True(t, ok)
	assert.Equal(t, "C", std)

	assert.Equal(t, []string{"C", "K", "F"}, r.AllowedUnits("temperature"))
	assert.True(t, r.IsAllowedUnit("nitrate", "µg/L"))
	assert.False(t, r.IsAllowedUnit("nitrate", "ppm"))
	assert.Equal(t, CategoryBio, r.Category("chlorophyll_a"))
	assert.Equal(t, CategoryUnknown, r.Category("salinity"))
	assert.Equal(t, CategoryUnknown, r.Category("no_such_code"))

	assert.True(t, r.IsMetaField("sampling_point"))
	assert.True(t, r.IsMetaField(" Timestamp "))
	assert.False(t, r.IsMetaField("ph"))

	rg, ok := r.PlausibleRange("ph")
	require.True(t, ok)
	assert.Equal(t, Range{Low: 0, High: 14}, rg)
	_, ok = r.PlausibleRange("salinity")
	assert.False(t, ok)
}

func TestRegistry_CopiesAreDetached(t *testing.T) {
	t.Parallel()
	r := Default()

	units := r.AllowedUnits("temperature")
	units[0] = "X"
	assert.Equal(t, "C", r.AllowedUnits("temperature")[0])

	codes := r.ParameterCodes()
	codes[0] = "mutated"
	assert.Equal(t, "temperature", r.ParameterCodes()[0])
}

func TestNew_FirstDefinitionWins(t *testing.T) {
	t.Parallel()
	r := New(Tables{
		Parameters: []Parameter{
			{Code: "Foo", StandardUnit: "m"},
			{Code: "foo", StandardUnit: "km"},
		},
		MetaFields: []string{"site", "SITE"},
	})

	std, ok := r.StandardUnit("foo")
	require.True(t, ok)
	assert.Equal(t, "m", std)
	assert.Equal(t, CategoryUnknown, r.Category("foo"))
	assert.Equal(t, []string{"site"}, r.MetaCodes())
}

func TestPresetCoordinates_NormalizedLookup(t *testing.T) {
	t.Parallel()
	r := Default()

	for _, label := range []string{"Presa", "  presa ", "PRESA.", "Présa"} {
		c, ok := r.PresetCoordinates(label)
		require.Truef(t, ok, "label %q", label)
		assert.InDelta(t, 6.098556, c.Lat, 1e-9)
		assert.InDelta(t, -75.490806, c.Lon, 1e-9)
	}

	c, ok := r.PresetCoordinates("entrada palmas esp.santo")
	assert.False(t, ok, "spacing differs after punctuation removal: %+v", c)

	_, ok = r.PresetCoordinates("ENTRADA PALMAS-ESP.SANTO")
	assert.True(t, ok)

	_, ok = r.PresetCoordinates("")
	assert.False(t, ok)
}

func TestNormalizeSiteKey(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Torre 1 Superficial":      "torre 1 superficial",
		"  Torre   1\tSuperficial": "torre 1 superficial",
		"Torre 1 - Superficial":    "torre 1 superficial",
		"Número Cinco":             "numero cinco",
		"Entrada Palmas-Esp.Santo": "entrada palmasespsanto",
		"":                         "",
		"   ":                      "",
	}
	for in, want := range cases {
		assert.Equalf(t, want, NormalizeSiteKey(in), "input %q", in)
	}
}

func TestParameter_DisplayName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Dissolved Oxygen", Parameter{Code: "dissolved_oxygen"}.DisplayName())
	assert.Equal(t, "E Coli", Parameter{Code: "e_coli"}.DisplayName())
	assert.Equal(t, "Ph", Parameter{Code: "ph"}.DisplayName())
}

func TestQualityFlags(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, FlagOK.ID())
	assert.Equal(t, 1, FlagOutOfRange.ID())
	assert.Equal(t, 2, FlagMissing.ID())
	assert.Equal(t, 3, FlagOutlier.ID())
	assert.Equal(t, "out_of_range", FlagOutOfRange.Code())
	assert.Equal(t, "Outlier", FlagOutlier.Label())
	assert.Equal(t, "unknown", QualityFlag(9).Code())
}

func TestParseWaterbodyType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, WaterbodyReservoir, ParseWaterbodyType(" Reservoir "))
	assert.Equal(t, WaterbodyUnknown, ParseWaterbodyType("sea"))
	assert.Equal(t, WaterbodyUnknown, ParseWaterbodyType(""))
}
