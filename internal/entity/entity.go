// Package entity holds the waterbody and sampling-point entities, their pure
// merge rules, and the waterbody resolver.
//
// Merges never lose information. Storage backends load the existing row,
// call MergeWaterbody or MergeSamplingPoint, and write the result back, so
// the policy lives here rather than in each backend's SQL.
package entity

import (
	"math"
	"strings"

	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Provenance tags.
const (
	SourceLLM        = "llm"
	SourceLLMLowConf = "llm_low_conf"
	SourceFallback   = "fallback"
)

// Waterbody is identified by (ClientID, Name, Type).
type Waterbody struct {
	ID                string
	ClientID          string
	Name              string
	Type              vocab.WaterbodyType
	Confidence        float64
	Provenance        []string
	NeedsConfirmation bool
	Evidence          []string
}

// Normalize trims the name, coerces the type and clamps the confidence.
// An empty name becomes "unknown".
func (w Waterbody) Normalize() Waterbody {
	w.Name = strings.Join(strings.Fields(w.Name), " ")
	if w.Name == "" {
		w.Name = vocab.Unknown
	}
	w.Type = vocab.ParseWaterbodyType(string(w.Type))
	w.Confidence = clamp01(w.Confidence)
	w.Provenance = unionTags(nil, w.Provenance)
	return w
}

// MergeWaterbody folds incoming into existing. Identity fields come from
// existing; Confidence is the max of both; Provenance is the set union.
func MergeWaterbody(existing, incoming Waterbody) Waterbody {
	out := existing
	out.Confidence = math.Max(clamp01(existing.Confidence), clamp01(incoming.Confidence))
	out.Provenance = unionTags(existing.Provenance, incoming.Provenance)
	return out
}

// SamplingPoint is identified by (ClientID, Code).
type SamplingPoint struct {
	ID          string
	ClientID    string
	Code        string
	Name        string
	WaterbodyID string
	Lat         *float64
	Lon         *float64
	Depth       *float64
}

// SiteCode is the stored code of a raw site label: trimmed with internal
// whitespace collapsed.
func SiteCode(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// MergeSamplingPoint folds incoming into existing with fill-if-absent
// semantics: a field set on existing is never replaced.
func MergeSamplingPoint(existing, incoming SamplingPoint) SamplingPoint {
	out := existing
	if out.Name == "" {
		out.Name = incoming.Name
	}
	if out.WaterbodyID == "" {
		out.WaterbodyID = incoming.WaterbodyID
	}
	if out.Lat == nil {
		out.Lat = incoming.Lat
	}
	if out.Lon == nil {
		out.Lon = incoming.Lon
	}
	if out.Depth == nil {
		out.Depth = incoming.Depth
	}
	return out
}

// FillPreset completes missing coordinates of sp from the preset table. The
// code is tried first, then the name. Only nil coordinates are filled, and
// only when at least one of them is missing.
func FillPreset(reg *vocab.Registry, sp SamplingPoint) SamplingPoint {
	if sp.Lat != nil && sp.Lon != nil {
		return sp
	}
	c, ok := reg.PresetCoordinates(sp.Code)
	if !ok {
		c, ok = reg.PresetCoordinates(sp.Name)
	}
	if !ok {
		return sp
	}
	if sp.Lat == nil {
		lat := c.Lat
		sp.Lat = &lat
	}
	if sp.Lon == nil {
		lon := c.Lon
		sp.Lon = &lon
	}
	return sp
}

// unionTags appends the tags of b missing from a, preserving first-seen order.
// Empty tags are dropped.
func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
