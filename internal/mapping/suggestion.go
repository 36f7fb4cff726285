package mapping

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Suggestion is one header-classifier record. Nothing in it is trusted.
type Suggestion struct {
	RawHeader      string `json:"raw_header"`
	Category       string `json:"category"`
	MapTo          string `json:"map_to"`
	Confidence     Score  `json:"confidence"`
	UnitMapTo      string `json:"unit_map_to"`
	UnitConfidence Score  `json:"unit_confidence"`
}

// Score is a confidence in [0, 1]. It decodes from a JSON number or a numeric
// string; anything else decodes to 0 without error.
type Score float64

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*s = 0
			return nil
		}
		b = []byte(strings.TrimSpace(str))
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*s = 0
		return nil
	}
	*s = Score(v)
	return nil
}

// Clamp returns s limited to [0, 1]; NaN becomes 0.
func (s Score) Clamp() float64 {
	v := float64(s)
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
