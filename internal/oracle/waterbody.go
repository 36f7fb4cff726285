package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/mapping"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

func waterbodySystemPrompt() string {
	types := make([]string, 0, len(vocab.WaterbodyTypes()))
	for _, t := range vocab.WaterbodyTypes() {
		types = append(types, string(t))
	}
	return `You identify the waterbody a water-quality spreadsheet is about, from short excerpts of it.
Give its NAME and its TYPE, one of: ` + strings.Join(types, ", ") + `.
Reply with JSON only: {"name": "...", "type": "...", "confidence": 0.0, "evidence": ["..."]}
- Names repeated across sheet titles, notes and sampling points are the best candidates.
- Embalse, Presa, Reservorio, Reservoir or Dam mean type reservoir. Lago, Laguna or Lake mean type lake. Otherwise use unknown.
- Drop generic words from the name: "Embalse La Fe" has name "La Fe".
- When unsure keep confidence below 0.5 and type unknown.`
}

// WaterbodyIdentifier asks a chat model to name the waterbody of an upload.
type WaterbodyIdentifier struct {
	c   Completer
	log *zap.Logger
}

func NewWaterbodyIdentifier(c Completer, log *zap.Logger) *WaterbodyIdentifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &WaterbodyIdentifier{c: c, log: log.Named("oracle.waterbody")}
}

type waterbodyReply struct {
	Name       any           `json:"name"`
	Type       any           `json:"type"`
	Confidence mapping.Score `json:"confidence"`
	Evidence   any           `json:"evidence"`
}

// IdentifyWaterbody implements entity.Identifier.
func (w *WaterbodyIdentifier) IdentifyWaterbody(ctx context.Context, s entity.Snippet) (entity.Guess, error) {
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return entity.Guess{}, fmt.Errorf("encode snippet: %w", err)
	}
	user := "Identify the waterbody from these excerpts:\n\n" + string(body) +
		"\n\nReturn JSON with the fields name, type, confidence, evidence."

	reply, err := w.c.Complete(ctx, Prompt{System: waterbodySystemPrompt(), User: user, MaxTokens: 600, JSON: true})
	if err != nil {
		return entity.Guess{}, err
	}
	r, err := decodeWaterbody(reply)
	if err != nil {
		w.log.Warn("unparseable waterbody identification", zap.Int("reply_bytes", len(reply)))
		return entity.Guess{}, err
	}

	return entity.Guess{
		Name:       text(r.Name),
		Type:       vocab.ParseWaterbodyType(text(r.Type)),
		Confidence: r.Confidence.Clamp(),
		Evidence:   evidence(r.Evidence),
	}, nil
}

// decodeWaterbody accepts the reply object itself or an object nesting it
// under some key.
func decodeWaterbody(reply string) (waterbodyReply, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return waterbodyReply{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return waterbodyReply{}, fmt.Errorf("waterbody reply: %w", ErrNoJSON)
	}
	if _, ok := fields["name"]; !ok {
		for _, v := range fields {
			var inner map[string]json.RawMessage
			if json.Unmarshal(v, &inner) == nil {
				if _, ok := inner["name"]; ok {
					raw = string(v)
					break
				}
			}
		}
	}
	var r waterbodyReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return waterbodyReply{}, fmt.Errorf("waterbody reply: %w", err)
	}
	return r, nil
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(x), " ")
	default:
		return strings.Join(strings.Fields(fmt.Sprint(x)), " ")
	}
}

// evidence turns whatever came back into a list of strings; a scalar
// becomes a one-element list.
func evidence(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := text(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := text(x); s != "" {
			return []string{s}
		}
		return nil
	}
}
