// Package vocab holds the canonical water-quality vocabulary: parameter codes
// with their standard and allowed units, meta-field codes, plausible value
// ranges, quality flags, waterbody types, and preset sampling-site coordinates.
//
// A Registry is immutable after construction. Every lookup is a read of
// private maps, so a single *Registry can be shared by all goroutines of a
// process without locking.
package vocab

import (
	"sort"
	"strings"
	"sync"
)

// Category groups parameters for reporting.
type Category string

const (
	CategoryPhysical Category = "physical"
	CategoryChemical Category = "chemical"
	CategoryBio      Category = "bio"
	CategoryUnknown  Category = "unknown"
)

// Unit sentinels a classifier may return instead of a concrete unit.
const (
	UnitNotPresent    = "not_present"
	UnitNotApplicable = "not_applicable"
	UnitUnknown       = "unknown"
)

// Unknown is the catch-all canonical field.
const Unknown = "unknown"

// Parameter describes a canonical measured quantity.
type Parameter struct {
	Code         string
	StandardUnit string
	AllowedUnits []string
	Category     Category
}

// DisplayName returns the code in Title Case with underscores as spaces,
// e.g. "dissolved_oxygen" -> "Dissolved Oxygen".
func (p Parameter) DisplayName() string {
	words := strings.Fields(strings.ReplaceAll(p.Code, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Range is an inclusive plausible interval in the parameter's standard unit.
type Range struct {
	Low  float64
	High float64
}

// Contains reports whether v lies within [Low, High].
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Registry is the read-only lookup surface over the vocabulary tables.
type Registry struct {
	version string

	params     map[string]Parameter
	paramOrder []string

	meta      map[string]struct{}
	metaOrder []string

	ranges  map[string]Range
	presets map[string]Coordinates
}

// Tables is the raw input to New.
type Tables struct {
	Version    string
	Parameters []Parameter
	MetaFields []string
	Ranges     map[string]Range
	// Presets maps a human site label to coordinates. Labels are normalized
	// with NormalizeSiteKey at construction time.
	Presets map[string]Coordinates
}

// New builds a Registry from t. Inputs are copied; later mutation of t has no
// effect on the registry. Codes are lowercased and trimmed. A duplicate code
// keeps its first definition.
func New(t Tables) *Registry {
	r := &Registry{
		version: t.Version,
		params:  make(map[string]Parameter, len(t.Parameters)),
		meta:    make(map[string]struct{}, len(t.MetaFields)),
		ranges:  make(map[string]Range, len(t.Ranges)),
		presets: make(map[string]Coordinates, len(t.Presets)),
	}

	for _, p := range t.Parameters {
		code := canonicalCode(p.Code)
		if code == "" {
			continue
		}
		if _, dup := r.params[code]; dup {
			continue
		}
		p.Code = code
		p.AllowedUnits = append([]string(nil), p.AllowedUnits...)
		if p.Category == "" {
			p.Category = CategoryUnknown
		}
		r.params[code] = p
		r.paramOrder = append(r.paramOrder, code)
	}

	for _, m := range t.MetaFields {
		code := canonicalCode(m)
		if code == "" {
			continue
		}
		if _, dup := r.meta[code]; dup {
			continue
		}
		r.meta[code] = struct{}{}
		r.metaOrder = append(r.metaOrder, code)
	}

	for code, rg := range t.Ranges {
		r.ranges[canonicalCode(code)] = rg
	}
	for label, c := range t.Presets {
		if k := NormalizeSiteKey(label); k != "" {
			r.presets[k] = c
		}
	}
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry built from the built-in tables.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(builtinTables())
	})
	return defaultReg
}

// Version identifies the vocabulary tables the registry was built from.
func (r *Registry) Version() string { return r.version }

// Parameter returns the descriptor for code.
func (r *Registry) Parameter(code string) (Parameter, bool) {
	p, ok := r.params[canonicalCode(code)]
	if !ok {
		return Parameter{}, false
	}
	p.AllowedUnits = append([]string(nil), p.AllowedUnits...)
	return p, true
}

// IsParameter reports whether code is a known parameter code.
func (r *Registry) IsParameter(code string) bool {
	_, ok := r.params[canonicalCode(code)]
	return ok
}

// StandardUnit returns the unit all values of code are normalized into.
func (r *Registry) StandardUnit(code string) (string, bool) {
	p, ok := r.params[canonicalCode(code)]
	if !ok {
		return "", false
	}
	return p.StandardUnit, true
}

// AllowedUnits returns a copy of the allowed units for code, or nil.
func (r *Registry) AllowedUnits(code string) []string {
	p, ok := r.params[canonicalCode(code)]
	if !ok {
		return nil
	}
	return append([]string(nil), p.AllowedUnits...)
}

// IsAllowedUnit reports whether unit is in the allowed list of code.
// Comparison is exact: "mg/L" and "mg/l" are different units.
func (r *Registry) IsAllowedUnit(code, unit string) bool {
	p, ok := r.params[canonicalCode(code)]
	if !ok {
		return false
	}
	for _, u := range p.AllowedUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// Category returns the category of code, CategoryUnknown when not registered.
func (r *Registry) Category(code string) Category {
	p, ok := r.params[canonicalCode(code)]
	if !ok {
		return CategoryUnknown
	}
	return p.Category
}

// IsMetaField reports whether code is a known meta-field code.
func (r *Registry) IsMetaField(code string) bool {
	_, ok := r.meta[canonicalCode(code)]
	return ok
}

// PlausibleRange returns the plausible interval for code, if one is registered.
func (r *Registry) PlausibleRange(code string) (Range, bool) {
	rg, ok := r.ranges[canonicalCode(code)]
	return rg, ok
}

// PresetCoordinates looks up a site label after normalizing it.
func (r *Registry) PresetCoordinates(label string) (Coordinates, bool) {
	k := NormalizeSiteKey(label)
	if k == "" {
		return Coordinates{}, false
	}
	c, ok := r.presets[k]
	return c, ok
}

// ParameterCodes returns parameter codes in registration order.
func (r *Registry) ParameterCodes() []string {
	return append([]string(nil), r.paramOrder...)
}

// MetaCodes returns meta-field codes in registration order.
func (r *Registry) MetaCodes() []string {
	return append([]string(nil), r.metaOrder...)
}

// UnitsByParameter returns code -> allowed units for every parameter.
func (r *Registry) UnitsByParameter() map[string][]string {
	out := make(map[string][]string, len(r.params))
	for code, p := range r.params {
		out[code] = append([]string(nil), p.AllowedUnits...)
	}
	return out
}

// RangedParameters returns the codes that have a plausible range, sorted.
func (r *Registry) RangedParameters() []string {
	out := make([]string, 0, len(r.ranges))
	for code := range r.ranges {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func canonicalCode(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
