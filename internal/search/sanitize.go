package search

import (
	"regexp"
	"strings"
	"unicode"
)

var embeddedURL = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

// allowedPunct is the punctuation kept in a query; search operators and
// quoted phrases survive, everything else becomes a space.
const allowedPunct = `-'".,?:&+`

// SanitizeQuery strips embedded URLs and disallowed punctuation, collapses
// whitespace and truncates to maxLen runes. The transform is lossy on purpose.
func SanitizeQuery(q string, maxLen int) string {
	q = embeddedURL.ReplaceAllString(q, " ")

	var b strings.Builder
	b.Grow(len(q))
	for _, r := range q {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case strings.ContainsRune(allowedPunct, r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	q = strings.Join(strings.Fields(b.String()), " ")
	if maxLen > 0 {
		q = strings.TrimSpace(truncateRunes(q, maxLen))
	}
	return q
}
