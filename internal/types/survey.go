// Package types contains shared types used across multiple packages.
// This helps avoid import cycles between decision, imagegen and bot.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Option is one survey choice. Key is the stable identifier; Label is the
// human text, optionally suffixed with a reference URL.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// VoteCounts maps option key to its current tally.
type VoteCounts map[string]int

// Survey is a question the bot can vote on or extend with a suggestion.
type Survey struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Options          []Option   `json:"options"`
	Counts           VoteCounts `json:"counts,omitempty"`
	AllowSuggestions bool       `json:"allowSuggestions,omitempty"`
}

// Suggestion is a proposed new option. The caller decides whether to act on
// WantsImage; ImageURL is filled only after generation succeeds.
type Suggestion struct {
	Label            string `json:"label"`
	WantsImage       bool   `json:"wantsImage"`
	ImageDescription string `json:"imageDescription"`
	ImageURL         string `json:"imageUrl,omitempty"`
}

// Memo kinds
const (
	MemoVote       = "vote"
	MemoSuggestion = "suggestion"
)

// Memo is the opaque payload attached to a ledger transfer.
type Memo struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	SurveyID   string      `json:"surveyId"`
	OptionKey  string      `json:"optionKey,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// OptionByKey returns the option with the given key.
func (s *Survey) OptionByKey(key string) (Option, bool) {
	for _, o := range s.Options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// Validate checks that option keys are present and unique.
func (s *Survey) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("survey has no id")
	}
	seen := make(map[string]bool, len(s.Options))
	for i, o := range s.Options {
		if o.Key == "" {
			return fmt.Errorf("survey %s: option %d has empty key", s.ID, i)
		}
		if seen[o.Key] {
			return fmt.Errorf("survey %s: duplicate option key %q", s.ID, o.Key)
		}
		seen[o.Key] = true
	}
	return nil
}

// Total returns the sum of all tallies.
func (c VoteCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
