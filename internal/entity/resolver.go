package entity

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/table"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

// Oracle thresholds and snippet caps.
const (
	AcceptConfidence  = 0.6
	ConfirmConfidence = 0.75

	snippetSheets     = 6
	snippetHeaders    = 50
	snippetHeadRows   = 10
	snippetHeadCols   = 8
	snippetSiteValues = 30
)

// siteColumns are raw headers whose values are sent as candidate site labels.
var siteColumns = map[string]bool{
	"sampling_point":    true,
	"site":              true,
	"station":           true,
	"punto de muestreo": true,
	"probenahmestelle":  true,
}

// Snippet is the small, structured excerpt of an upload that a waterbody
// identifier gets to see.
type Snippet struct {
	FileName   string   `json:"filename"`
	SheetNames []string `json:"sheet_names"`
	Headers    []string `json:"headers"`
	HeadCells  []string `json:"head_cells"`
	SiteValues []string `json:"sampling_points"`
}

// NewSnippet excerpts tbl. Site values come from the first raw header that
// names a site column.
func NewSnippet(fileName string, sheets []string, tbl *table.Table) Snippet {
	s := Snippet{
		FileName:   table.CollapseSpace(fileName),
		SheetNames: head(sheets, snippetSheets),
		HeadCells:  tbl.HeadCells(snippetHeadRows, snippetHeadCols),
	}
	for _, h := range head(tbl.Headers, snippetHeaders) {
		s.Headers = append(s.Headers, table.CollapseSpace(h))
	}
	for col, h := range tbl.Headers {
		if !siteColumns[strings.ToLower(strings.TrimSpace(h))] {
			continue
		}
		for _, v := range tbl.Column(col) {
			if v == "" {
				continue
			}
			s.SiteValues = append(s.SiteValues, table.CollapseSpace(v))
			if len(s.SiteValues) == snippetSiteValues {
				break
			}
		}
		break
	}
	return s
}

// Guess is a waterbody identifier's answer.
type Guess struct {
	Name       string
	Type       vocab.WaterbodyType
	Confidence float64
	Evidence   []string
}

// Identifier names the waterbody an upload is about. Answers are untrusted.
type Identifier interface {
	IdentifyWaterbody(ctx context.Context, s Snippet) (Guess, error)
}

// Resolver decides the waterbody of an upload from an identifier's answer,
// falling back to a keyword heuristic when the answer is weak or missing.
type Resolver struct {
	id  Identifier
	log *zap.Logger
}

// NewResolver returns a Resolver. id may be nil, in which case only the
// heuristic runs.
func NewResolver(id Identifier, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{id: id, log: log.Named("resolver")}
}

// Resolve always returns a usable waterbody, possibly named "unknown" with
// type unknown. ClientID and ID are left for the caller.
func (r *Resolver) Resolve(ctx context.Context, s Snippet) Waterbody {
	var g Guess
	if r.id != nil {
		var err error
		g, err = r.id.IdentifyWaterbody(ctx, s)
		if err != nil {
			r.log.Warn("waterbody identifier failed; using heuristic", zap.Error(err))
			g = Guess{}
		}
	}
	g = sanitize(g)

	if g.Confidence >= AcceptConfidence && g.Name != vocab.Unknown {
		return Waterbody{
			Name:              g.Name,
			Type:              g.Type,
			Confidence:        g.Confidence,
			Provenance:        []string{SourceLLM},
			NeedsConfirmation: g.Confidence < ConfirmConfidence,
			Evidence:          head(g.Evidence, 3),
		}.Normalize()
	}

	fb := Fallback(s)
	wb := Waterbody{
		Name:              fb.Name,
		Type:              fb.Type,
		Confidence:        max(g.Confidence, fb.Confidence),
		Provenance:        []string{SourceLLMLowConf, SourceFallback},
		NeedsConfirmation: true,
		Evidence:          head(g.Evidence, 1),
	}
	if g.Name != vocab.Unknown {
		wb.Name = g.Name
	}
	if g.Type != vocab.WaterbodyUnknown {
		wb.Type = g.Type
	}
	r.log.Debug("waterbody resolved by heuristic",
		zap.String("name", wb.Name), zap.String("type", string(wb.Type)), zap.Float64("confidence", wb.Confidence))
	return wb.Normalize()
}

func sanitize(g Guess) Guess {
	g.Name = table.CollapseSpace(g.Name)
	if g.Name == "" {
		g.Name = vocab.Unknown
	}
	g.Type = vocab.ParseWaterbodyType(string(g.Type))
	g.Confidence = clamp01(g.Confidence)
	return g
}

var (
	reservoirHint = regexp.MustCompile(`(?i)\b(embalse|presa|reservorio|reservoir|dam)\b`)
	lakeHint      = regexp.MustCompile(`(?i)\b(lago|laguna|lake)\b`)
	namedAfter    = regexp.MustCompile(`(?i)\b(?:embalse|presa|reservorio|reservoir|dam|lago|laguna|lake)\s+([\p{L}][\p{L}\p{N}_\-]+(?:\s+[\p{L}][\p{L}\p{N}_\-]+)?)`)
)

// Fallback guesses from keywords. The type is searched across the whole
// snippet; the name is the one or two words following a type keyword in the
// sheet names, then the file name. Confidence is 0.55 when anything was
// found and 0.3 otherwise.
func Fallback(s Snippet) Guess {
	blob := strings.Join([]string{
		s.FileName,
		strings.Join(s.SheetNames, " "),
		strings.Join(s.Headers, " "),
		strings.Join(s.HeadCells, " "),
		strings.Join(s.SiteValues, " "),
	}, " ")

	g := Guess{Name: vocab.Unknown, Type: vocab.WaterbodyUnknown, Confidence: 0.3}
	switch {
	case reservoirHint.MatchString(blob):
		g.Type = vocab.WaterbodyReservoir
	case lakeHint.MatchString(blob):
		g.Type = vocab.WaterbodyLake
	}
	for _, src := range []string{strings.Join(s.SheetNames, " "), s.FileName} {
		if m := namedAfter.FindStringSubmatch(src); m != nil {
			g.Name = strings.TrimSpace(m[1])
			break
		}
	}
	if g.Name != vocab.Unknown || g.Type != vocab.WaterbodyUnknown {
		g.Confidence = 0.55
	}
	return g
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	return append([]T(nil), s...)
}
