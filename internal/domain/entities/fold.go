package entities

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName lowercases a name and strips diacritics so that "Lépicier" and
// "lepicier" compare equal. Used for fuzzy reference resolution only; the
// stored normalized name keeps its accents.
func FoldName(name string) string {
	normalized := NormalizeName(name)
	// transform.Chain is stateful, build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, normalized)
	if err != nil {
		return normalized
	}
	return folded
}
