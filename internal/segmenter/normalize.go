package segmenter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// normalizeText folds accented characters to their ASCII base and drops
// anything non-ASCII. Annual reports routinely mix typographic quotes and
// ligatures into headings, which would otherwise break title matching.
func normalizeText(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchesTitle compares a page heading to a contents entry title, ignoring
// punctuation and case; containment either way counts as a match because
// contents entries often abbreviate the in-page heading.
func matchesTitle(heading, expected string) bool {
	h := foldForMatch(heading)
	e := foldForMatch(expected)
	if h == "" || e == "" {
		return false
	}
	return strings.Contains(h, e) || strings.Contains(e, h)
}

func foldForMatch(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(normalizeText(s))) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
