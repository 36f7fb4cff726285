package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/mapping"
)

const headerSystemPrompt = `You classify column headers of water-quality monitoring spreadsheets.
For every header decide whether it is a measured parameter or a meta field, pick the matching canonical code, and pick its unit.

Rules:
- map_to must be one of the given parameter codes, one of the given meta codes, or "unknown".
- category is "parameter" or "meta".
- For parameters, unit_map_to must be one of the allowed units listed for that code. Read the unit from the header when it is there, e.g. "Temp (°F)" -> "F".
- If a parameter header has no unit, use "not_present". Meta fields use "not_applicable". Use "unknown" when you cannot tell.
- confidence and unit_confidence are numbers between 0 and 1.
Reply with JSON only.`

const headerUserTemplate = `Parameter codes: %s
Meta codes: %s
Allowed units per parameter: %s

Headers (%d, in order):
%s

Return a JSON object {"mappings": [...]} holding EXACTLY %d objects in the SAME ORDER as the headers, each:
{"raw_header": "...", "category": "parameter|meta", "map_to": "...", "confidence": 0.0, "unit_map_to": "...", "unit_confidence": 0.0}`

// HeaderClassifier asks a chat model to map raw headers onto the vocabulary.
type HeaderClassifier struct {
	c         Completer
	log       *zap.Logger
	maxTokens int
}

func NewHeaderClassifier(c Completer, log *zap.Logger) *HeaderClassifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeaderClassifier{c: c, log: log.Named("oracle.headers"), maxTokens: 4096}
}

// SuggestMappings implements mapping.HeaderClassifier. Elements of the reply
// that do not decode are returned as empty suggestions so positions hold.
func (h *HeaderClassifier) SuggestMappings(ctx context.Context, req mapping.Request) ([]mapping.Suggestion, error) {
	if len(req.Headers) == 0 {
		return nil, nil
	}
	user, err := headerPrompt(req)
	if err != nil {
		return nil, err
	}
	reply, err := h.c.Complete(ctx, Prompt{System: headerSystemPrompt, User: user, MaxTokens: h.maxTokens, JSON: true})
	if err != nil {
		return nil, err
	}

	elems, err := arrayElements(reply)
	if err != nil {
		h.log.Warn("unparseable header classification", zap.Int("reply_bytes", len(reply)))
		return nil, fmt.Errorf("header classification: %w", err)
	}

	out := make([]mapping.Suggestion, 0, len(elems))
	bad := 0
	for _, e := range elems {
		var s mapping.Suggestion
		if err := json.Unmarshal(e, &s); err != nil {
			bad++
			s = mapping.Suggestion{}
		}
		out = append(out, s)
	}
	if bad > 0 {
		h.log.Warn("header classification had malformed records", zap.Int("malformed", bad), zap.Int("records", len(elems)))
	}
	return out, nil
}

func headerPrompt(req mapping.Request) (string, error) {
	units, err := json.Marshal(req.Units)
	if err != nil {
		return "", fmt.Errorf("encode units: %w", err)
	}
	var lines strings.Builder
	for i, hdr := range req.Headers {
		fmt.Fprintf(&lines, "%d. %q\n", i+1, hdr)
	}
	return fmt.Sprintf(headerUserTemplate,
		strings.Join(req.Parameters, ", "),
		strings.Join(req.MetaFields, ", "),
		units,
		len(req.Headers),
		strings.TrimRight(lines.String(), "\n"),
		len(req.Headers),
	), nil
}
