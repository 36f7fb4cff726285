// Package mapping validates header-classifier output against the vocabulary.
//
// The classifier is an untrusted collaborator: whatever it returns is forced
// into the registry, and anything missing or malformed degrades to "unknown".
// Validation problems are data (lowered confidences), never errors.
package mapping

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Confidence caps applied when the classifier's answer is rejected.
const (
	MaxFieldConfidenceOnReject = 0.5
	MaxUnitConfidenceOnReject  = 0.4
)

// FieldKind is derived from the registry, not from the classifier's category.
type FieldKind string

const (
	FieldParameter FieldKind = "parameter"
	FieldMeta      FieldKind = "meta"
	FieldUnknown   FieldKind = "unknown"
)

// Mapping is the validated decision for one source column.
type Mapping struct {
	Header         string
	Column         int
	Kind           FieldKind
	Field          string
	Confidence     float64
	Unit           string
	UnitConfidence float64
	// Suggested is false when no classifier record claimed the column.
	Suggested bool
}

// Request is what a header classifier is asked.
type Request struct {
	Headers    []string
	Parameters []string
	MetaFields []string
	Units      map[string][]string
}

// HeaderClassifier proposes a canonical field and unit per raw header. The
// response should have one record per header in request order, but callers
// must tolerate anything.
type HeaderClassifier interface {
	SuggestMappings(ctx context.Context, req Request) ([]Suggestion, error)
}

// Validator applies the vocabulary contract to classifier output.
type Validator struct {
	reg *vocab.Registry
	log *zap.Logger
}

// NewValidator returns a Validator over reg. A nil logger is replaced by a nop.
func NewValidator(reg *vocab.Registry, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{reg: reg, log: log}
}

// NewRequest builds the classifier request for headers.
func (v *Validator) NewRequest(headers []string) Request {
	return Request{
		Headers:    append([]string(nil), headers...),
		Parameters: v.reg.ParameterCodes(),
		MetaFields: v.reg.MetaCodes(),
		Units:      v.reg.UnitsByParameter(),
	}
}

// Map asks hc about headers and validates the answer. A nil classifier, a
// failed call, or an empty answer yields all-unknown mappings; the failure is
// logged, not returned.
func (v *Validator) Map(ctx context.Context, hc HeaderClassifier, headers []string) []Mapping {
	if hc == nil {
		return v.Validate(headers, nil)
	}
	sugg, err := hc.SuggestMappings(ctx, v.NewRequest(headers))
	if err != nil {
		v.log.Warn("header classifier failed; mapping all headers to unknown",
			zap.Int("headers", len(headers)), zap.Error(err))
		return v.Validate(headers, nil)
	}
	if len(sugg) != len(headers) {
		v.log.Warn("header classifier returned a partial answer",
			zap.Int("headers", len(headers)), zap.Int("suggestions", len(sugg)))
	}
	return v.Validate(headers, sugg)
}

// Validate aligns suggestions with headers and validates each.
//
// Alignment is by header text (case-insensitive, whitespace-collapsed); a
// suggestion with an empty raw_header falls back to its position. Each column
// can be claimed once: later claims on a used column are dropped. Duplicate
// header texts resolve to the first such column.
//
// The result has exactly len(headers) entries in header order. Columns no
// suggestion claimed map to "unknown" with zero confidence.
func (v *Validator) Validate(headers []string, suggestions []Suggestion) []Mapping {
	byKey := make(map[string]int, len(headers))
	for i, h := range headers {
		k := HeaderKey(h)
		if _, seen := byKey[k]; !seen {
			byKey[k] = i
		}
	}

	out := make([]Mapping, len(headers))
	for i, h := range headers {
		out[i] = Mapping{
			Header: h,
			Column: i,
			Kind:   FieldUnknown,
			Field:  vocab.Unknown,
			Unit:   vocab.UnitNotPresent,
		}
	}

	for pos, s := range suggestions {
		col := -1
		if k := HeaderKey(s.RawHeader); k != "" {
			if i, ok := byKey[k]; ok {
				col = i
			}
		} else if pos < len(headers) {
			col = pos
		}
		if col < 0 || out[col].Suggested {
			continue
		}
		m := v.validateOne(s)
		m.Header = headers[col]
		m.Column = col
		m.Suggested = true
		out[col] = m
	}
	return out
}

func (v *Validator) validateOne(s Suggestion) Mapping {
	m := Mapping{
		Field:          strings.ToLower(strings.TrimSpace(s.MapTo)),
		Confidence:     s.Confidence.Clamp(),
		Unit:           strings.TrimSpace(s.UnitMapTo),
		UnitConfidence: s.UnitConfidence.Clamp(),
	}

	switch {
	case v.reg.IsParameter(m.Field):
		m.Kind = FieldParameter
	case v.reg.IsMetaField(m.Field):
		m.Kind = FieldMeta
	case m.Field == vocab.Unknown:
		m.Kind = FieldUnknown
	default:
		m.Kind = FieldUnknown
		m.Field = vocab.Unknown
		m.Confidence = math.Min(m.Confidence, MaxFieldConfidenceOnReject)
	}

	if m.Unit == "" {
		m.Unit = vocab.UnitNotPresent
	}
	if isSentinelUnit(m.Unit) {
		return m
	}
	if m.Kind == FieldParameter {
		if u, ok := v.canonicalUnit(m.Field, m.Unit); ok {
			m.Unit = u
			return m
		}
	}
	m.Unit = vocab.UnitUnknown
	m.UnitConfidence = math.Min(m.UnitConfidence, MaxUnitConfidenceOnReject)
	return m
}

// canonicalUnit matches unit against the allowed units of param, tolerating
// case, the micro sign spelled as "u" or Greek mu, and a degree sign before
// a temperature scale. It returns the registry's spelling.
func (v *Validator) canonicalUnit(param, unit string) (string, bool) {
	if v.reg.IsAllowedUnit(param, unit) {
		return unit, true
	}
	want := foldUnit(unit)
	for _, allowed := range v.reg.AllowedUnits(param) {
		if foldUnit(allowed) == want {
			return allowed, true
		}
	}
	return "", false
}

var unitFolder = strings.NewReplacer("µ", "u", "μ", "u", "°", "", "º", "", " ", "")

func foldUnit(u string) string {
	return strings.ToLower(unitFolder.Replace(strings.TrimSpace(u)))
}

func isSentinelUnit(u string) bool {
	switch u {
	case vocab.UnitNotPresent, vocab.UnitNotApplicable, vocab.UnitUnknown:
		return true
	}
	return false
}

// HeaderKey is the alignment key of a raw header.
func HeaderKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Counts summarizes mappings by kind.
func Counts(ms []Mapping) (params, meta, unknown int) {
	for _, m := range ms {
		switch m.Kind {
		case FieldParameter:
			params++
		case FieldMeta:
			meta++
		default:
			unknown++
		}
	}
	return params, meta, unknown
}
