package vocab

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSiteKey folds a site label into its lookup key:
// compatibility-decompose, drop combining marks, lowercase, drop punctuation
// and symbols, then collapse whitespace.
//
// "Entrada Palmas-Esp.Santo" and "entrada  palmasesp santo " are different
// keys ("entrada palmasespsanto" vs "entrada palmasesp santo"), while
// "Presa" and " PRESA. " are the same.
func NormalizeSiteKey(label string) string {
	if strings.TrimSpace(label) == "" {
		return ""
	}
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})),
	)
	out, _, err := transform.String(t, label)
	if err != nil {
		out = label
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
