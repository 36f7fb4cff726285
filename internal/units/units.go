// Package units converts parameter columns toward the standard unit of their
// parameter.
//
// Conversion is fail-open: when no conversion is registered the input comes
// back unchanged together with a Reason that says why. Nothing here returns
// an error, and no value is dropped.
package units

import (
	"math"

	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Reason explains the outcome of Convert.
type Reason string

const (
	// ReasonConverted: a registered function mapped the values to the standard unit.
	ReasonConverted Reason = "converted"
	// ReasonAlreadyStandard: the source unit is the standard unit.
	ReasonAlreadyStandard Reason = "already_standard"
	// ReasonUnknownParameter: the parameter is not in the registry.
	ReasonUnknownParameter Reason = "unknown_parameter"
	// ReasonUnsupported: no conversion from the source unit is registered.
	ReasonUnsupported Reason = "unsupported"
)

// Result is the outcome of a single column conversion.
type Result struct {
	Values    []*float64
	Unit      string
	Converted bool
	Reason    Reason
}

// Func maps one value in a source unit to the standard unit.
type Func func(float64) float64

type key struct {
	param string
	unit  string
}

// Converter holds the (parameter, source unit) conversion table.
// It is read-only after NewConverter and safe for concurrent use.
type Converter struct {
	reg   *vocab.Registry
	funcs map[key]Func
}

// Rule registers one conversion.
type Rule struct {
	Parameter string
	From      string
	Fn        Func
}

// NewConverter builds a Converter over reg with the given rules. A rule whose
// parameter is not in reg is ignored.
func NewConverter(reg *vocab.Registry, rules ...Rule) *Converter {
	c := &Converter{reg: reg, funcs: make(map[key]Func, len(rules))}
	for _, r := range rules {
		if r.Fn == nil || !reg.IsParameter(r.Parameter) {
			continue
		}
		c.funcs[key{r.Parameter, r.From}] = r.Fn
	}
	return c
}

// Default returns a Converter with the built-in rules.
func Default(reg *vocab.Registry) *Converter {
	return NewConverter(reg, BuiltinRules()...)
}

// BuiltinRules returns the unambiguous conversions. Conversions needing
// physical context (e.g. oxygen % saturation) are deliberately absent.
func BuiltinRules() []Rule {
	fToC := func(x float64) float64 { return (x - 32) * 5 / 9 }
	kToC := func(x float64) float64 { return x - 273.15 }
	times1000 := func(x float64) float64 { return x * 1000 }
	div1000 := func(x float64) float64 { return x / 1000 }
	identity := func(x float64) float64 { return x }

	rules := []Rule{
		{"temperature", "F", fToC},
		{"temperature", "K", kToC},
		{"conductivity", "mS/cm", times1000},
		// freshwater, density ~1 g/mL
		{"dissolved_oxygen", "ppm", identity},
	}
	for _, p := range []string{"total_phosphorus", "nitrate", "nitrite", "ammonium", "phosphate"} {
		rules = append(rules, Rule{p, "µg/L", div1000})
	}
	return rules
}

// Supports reports whether a conversion from unit is registered for param.
func (c *Converter) Supports(param, unit string) bool {
	_, ok := c.funcs[key{param, unit}]
	return ok
}

// Convert normalizes values of param from srcUnit. Rules, in order:
//
//   - param unknown: values unchanged, Converted=false.
//   - srcUnit is the standard unit: values coerced (non-finite -> absent), Converted=false.
//   - a function is registered: applied, Unit = standard unit, Converted=true.
//   - otherwise: values and unit unchanged, Converted=false.
//
// The input slice is never modified.
func (c *Converter) Convert(param, srcUnit string, values []*float64) Result {
	std, ok := c.reg.StandardUnit(param)
	if !ok {
		return Result{Values: values, Unit: srcUnit, Reason: ReasonUnknownParameter}
	}
	if srcUnit == std {
		return Result{Values: mapValues(values, nil), Unit: std, Reason: ReasonAlreadyStandard}
	}
	fn, ok := c.funcs[key{param, srcUnit}]
	if !ok {
		return Result{Values: values, Unit: srcUnit, Reason: ReasonUnsupported}
	}
	return Result{Values: mapValues(values, fn), Unit: std, Converted: true, Reason: ReasonConverted}
}

// mapValues copies values, applying fn when non-nil. Absent inputs and
// non-finite outputs are absent.
func mapValues(values []*float64, fn Func) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		x := *v
		if fn != nil {
			x = fn(x)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		out[i] = &x
	}
	return out
}
