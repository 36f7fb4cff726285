package vocab

// BuiltinVersion is bumped whenever the built-in tables change.
const BuiltinVersion = "2025.1"

const (
	uMgL     = "mg/L"
	uUgL     = "µg/L"
	uCellsML = "cells/mL"
)

func builtinTables() Tables {
	p := func(code, std string, cat Category, allowed ...string) Parameter {
		if len(allowed) == 0 {
			allowed = []string{std}
		}
		return Parameter{Code: code, StandardUnit: std, AllowedUnits: allowed, Category: cat}
	}

	return Tables{
		Version: BuiltinVersion,
		Parameters: []Parameter{
			p("temperature", "C", CategoryPhysical, "C", "K", "F"),
			p("ph", "unitless", CategoryChemical),
			p("dissolved_oxygen", uMgL, CategoryChemical, uMgL, "ppm"),
			p("turbidity", "NTU", CategoryPhysical, "NTU", "FNU"),
			p("conductivity", "µS/cm", CategoryPhysical, "µS/cm", "mS/cm"),
			p("chlorophyll_a", uUgL, CategoryBio),
			p("salinity", "PSU", CategoryUnknown),
			p("secchi_depth", "m", CategoryPhysical),
			p("redox", "mV", CategoryChemical),
			p("total_phosphorus", uMgL, CategoryChemical, uMgL, uUgL),
			p("total_nitrogen", uMgL, CategoryChemical),
			p("organic_nitrogen", uMgL, CategoryChemical),
			p("nitrate", uMgL, CategoryChemical, uMgL, uUgL),
			p("nitrite", uMgL, CategoryChemical, uMgL, uUgL),
			p("ammonium", uMgL, CategoryChemical, uMgL, uUgL),
			p("phosphate", uMgL, CategoryChemical, uMgL, uUgL),
			p("sulfate", uMgL, CategoryChemical),
			p("chloride", uMgL, CategoryChemical),
			p("fluoride", uMgL, CategoryChemical),
			p("potassium", uMgL, CategoryChemical),
			p("carbon_dioxide", uMgL, CategoryChemical, uMgL, "ppm"),
			p("uv_absorbance", "absorbance", CategoryChemical),
			p("suva", "L/mg·m", CategoryChemical),
			p("toc", uMgL, CategoryChemical),
			p("color_real", "PtCo", CategoryPhysical),
			p("reservoir_level", "m", CategoryPhysical),
			p("photic_zone_depth", "m", CategoryPhysical),
			p("pheopigments", uUgL, CategoryBio),
			p("total_eukaryotic_algae", uCellsML, CategoryBio),
			p("total_cyanobacteria", uCellsML, CategoryBio),
			p("diatoms", uCellsML, CategoryBio),
			p("ceratium", uCellsML, CategoryBio),
			p("peridinium", uCellsML, CategoryBio),
			p("dynobryon", uCellsML, CategoryBio),
			p("cryptomonas", uCellsML, CategoryBio),
			p("eudorina_pandorina", uCellsML, CategoryBio),
			p("staurastrum", uCellsML, CategoryBio),
			p("woronochinia", uCellsML, CategoryBio),
			p("dolichospermum", uCellsML, CategoryBio),
			p("aphanizomenon", uCellsML, CategoryBio),
			p("e_coli", "CFU/100mL", CategoryBio),
			p("microcystins", uUgL, CategoryBio),
			p("saxitoxina", uUgL, CategoryBio),
		},
		MetaFields: []string{
			"timestamp", "datetime", "date", "time",
			"sampling_point", "site", "station", "site_id",
			"latitude", "longitude", "lat", "lon", "depth",
			"sample_id", "operator_id", "remarks", "notes", "file_name",
		},
		// Standard units.
		Ranges: map[string]Range{
			"temperature":      {Low: -5, High: 50},
			"ph":               {Low: 0, High: 14},
			"dissolved_oxygen": {Low: 0, High: 25},
			"conductivity":     {Low: 0, High: 50000},
			"chlorophyll_a":    {Low: 0, High: 1000},
			"nitrate":          {Low: 0, High: 50},
			"turbidity":        {Low: 0, High: 20000},
		},
		Presets: map[string]Coordinates{
			"Descarga Bombeo Pantanillo": {Lat: 6.097617, Lon: -75.493633},
			"Entrada Palmas-Esp.Santo":   {Lat: 6.1115, Lon: -75.497717},
			"Entrada Potreros":           {Lat: 6.1043, Lon: -75.500833},
			"Presa":                      {Lat: 6.098556, Lon: -75.490806},
			"Torre 1 Superficial":        {Lat: 6.106722, Lon: -75.498},
			"Torre 2 Media":              {Lat: 6.106722, Lon: -75.498},
			"Torre 3 Profunda":           {Lat: 6.106722, Lon: -75.498},
		},
	}
}
