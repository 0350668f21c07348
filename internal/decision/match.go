package decision

import (
	"regexp"
	"strings"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/research"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"
)

// How a model reply was mapped to an option, recorded under decision/vote_match.
const (
	MatchExact     = "exact"
	MatchCase      = "case"
	MatchSubstring = "substring"
	MatchFallback  = "fallback"
)

var labelURL = regexp.MustCompile(`\s*\(?https?://\S+\)?`)

// displayLabel drops a trailing reference URL from a label.
func displayLabel(label string) string {
	return strings.TrimSpace(labelURL.ReplaceAllString(label, ""))
}

// cleanReply strips fences, surrounding quotes and trailing punctuation.
func cleanReply(text string) string {
	return strings.Trim(research.StripFences(text), " \t\r\n\"'`*.!")
}

// MatchOption maps a model reply to an option key. The ladder is exact key,
// then case-insensitive key or label, then substring containment either way
// against key or label in option order, then the first option.
// options must not be empty.
//
// Substring containment takes the first hit, so "red" matches an earlier
// "Dark Red" option when no option is exactly "Red", and a one-letter key
// matches any reply that contains that letter.
func MatchOption(text string, options []types.Option) (key, how string) {
	raw := strings.TrimSpace(text)
	reply := cleanReply(text)

	for _, o := range options {
		if o.Key == raw || o.Key == reply {
			return o.Key, MatchExact
		}
	}

	for _, o := range options {
		if strings.EqualFold(o.Key, reply) ||
			strings.EqualFold(o.Label, reply) ||
			strings.EqualFold(displayLabel(o.Label), reply) {
			return o.Key, MatchCase
		}
	}

	lower := strings.ToLower(reply)
	if lower != "" {
		for _, o := range options {
			for _, cand := range []string{o.Key, displayLabel(o.Label), o.Label} {
				if containsEither(lower, strings.ToLower(cand)) {
					return o.Key, MatchSubstring
				}
			}
		}
	}

	return options[0].Key, MatchFallback
}

func containsEither(a, b string) bool {
	return b != "" && (strings.Contains(a, b) || strings.Contains(b, a))
}
