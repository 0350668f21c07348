// Package decision turns research and a second completion into a final vote
// key or a suggested new option.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/llm"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/research"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

const (
	MinLabelLen     = 80
	MaxLabelLen     = 200
	DefaultLabelLen = 120
)

var (
	ErrNoOptions           = errors.New("survey has no options")
	ErrEmptySuggestion     = errors.New("model returned an empty suggestion")
	ErrDuplicateSuggestion = errors.New("suggestion duplicates an existing option")
)

const voteSystemPrompt = `You are taking part in a community survey. Read the question, the options and any research notes, then pick the single option you think is best.
Reply with exactly one option key from the list and nothing else.`

const suggestSystemPrompt = `You are taking part in a community survey that accepts new options. Propose one new option that is not already listed.
Reply with one JSON object and nothing else:
{"label":"<the new option, under %d characters>","wantsImage":<true or false>,"imageDescription":"<what an illustration should show, or empty>"}`

// Options configures a Decider.
type Options struct {
	Agent              *research.Agent // optional
	ResearchEnabled    bool
	LabelMaxLen        int // clamped to [MinLabelLen, MaxLabelLen]
	VoteTemperature    float64
	SuggestTemperature float64
}

// Decider composes research with a decision completion.
type Decider struct {
	chat        llm.Chat
	agent       *research.Agent
	research    bool
	labelMax    int
	voteTemp    float64
	suggestTemp float64
}

// New creates a decider over chat.
func New(chat llm.Chat, opts Options) *Decider {
	if opts.LabelMaxLen <= 0 {
		opts.LabelMaxLen = DefaultLabelLen
	}
	opts.LabelMaxLen = min(max(opts.LabelMaxLen, MinLabelLen), MaxLabelLen)
	if opts.VoteTemperature <= 0 {
		opts.VoteTemperature = 0.2
	}
	if opts.SuggestTemperature <= 0 {
		opts.SuggestTemperature = 0.9
	}
	return &Decider{
		chat:        chat,
		agent:       opts.Agent,
		research:    opts.ResearchEnabled && opts.Agent.Enabled(),
		labelMax:    opts.LabelMaxLen,
		voteTemp:    opts.VoteTemperature,
		suggestTemp: opts.SuggestTemperature,
	}
}

// NewFromConfig creates a decider from cfg.Decision.
func NewFromConfig(cfg *config.Config, chat llm.Chat, agent *research.Agent) *Decider {
	return New(chat, Options{
		Agent:              agent,
		ResearchEnabled:    cfg.ResearchEnabled(),
		LabelMaxLen:        cfg.Decision.LabelMaxLen,
		VoteTemperature:    cfg.Decision.VoteTemperature,
		SuggestTemperature: cfg.Decision.SuggestTemperature,
	})
}

// LabelMaxLen is the effective suggestion label cap.
func (d *Decider) LabelMaxLen() int { return d.labelMax }

// ChooseVote returns the key of the option to vote for. It never returns ""
// when at least one option exists.
func (d *Decider) ChooseVote(ctx context.Context, survey types.Survey, options []types.Option, counts types.VoteCounts) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}
	start := time.Now()

	notes := d.researchNotes(ctx, voteTopic(survey, options))
	reply, err := d.chat.Complete(ctx, voteSystemPrompt, votePrompt(survey, options, counts, notes), d.voteTemp)
	if err != nil {
		L_warn("decision: vote completion failed, using first option", "survey", survey.ID, "error", err)
		MetricOutcome("decision", "vote_match", MatchFallback)
		return options[0].Key, nil
	}

	key, how := MatchOption(reply, options)
	MetricOutcome("decision", "vote_match", how)
	MetricDuration("decision", "vote", time.Since(start))
	if how != MatchExact {
		L_debug("decision: vote reply recovered", "survey", survey.ID, "reply", Preview(reply, 80), "match", how, "key", key)
	}
	L_elapsed(start, "decision: vote chosen", "survey", survey.ID, "key", key)
	return key, nil
}

// SuggestOption proposes a new option for survey. A chat failure is returned
// as is; a reply that is not JSON becomes the label.
func (d *Decider) SuggestOption(ctx context.Context, survey types.Survey, existing []types.Option) (types.Suggestion, error) {
	start := time.Now()

	notes := d.researchNotes(ctx, suggestTopic(survey, existing))
	system := fmt.Sprintf(suggestSystemPrompt, d.labelMax)
	reply, err := d.chat.Complete(ctx, system, suggestPrompt(survey, existing, notes), d.suggestTemp)
	if err != nil {
		MetricFailWithReason("decision", "suggest", "chat_error")
		return types.Suggestion{}, fmt.Errorf("suggest for survey %s: %w", survey.ID, err)
	}

	s, parsed := ParseSuggestion(reply, d.labelMax)
	if parsed {
		MetricOutcome("decision", "suggest", "parsed")
	} else {
		L_warn("decision: suggestion reply was not JSON, using it as the label", "survey", survey.ID, "reply", Preview(reply, 80))
		MetricOutcome("decision", "suggest", "fallback")
	}

	if s.Label == "" {
		L_warn("decision: suggestion reply had no label", "survey", survey.ID)
		return types.Suggestion{}, ErrEmptySuggestion
	}
	for _, o := range existing {
		if strings.EqualFold(displayLabel(o.Label), displayLabel(s.Label)) {
			L_info("decision: suggestion already listed", "survey", survey.ID, "label", s.Label, "key", o.Key)
			return s, ErrDuplicateSuggestion
		}
	}
	L_elapsed(start, "decision: suggestion ready", "survey", survey.ID, "label", Preview(s.Label, 60), "wantsImage", s.WantsImage)
	return s, nil
}

// ParseSuggestion decodes the first JSON object in reply. When no object
// decodes, the stripped reply becomes the label and parsed is false. An
// object without a label yields an empty suggestion.
func ParseSuggestion(reply string, labelMax int) (s types.Suggestion, parsed bool) {
	if obj, ok := ExtractJSONObject(reply); ok {
		if fields, err := decodeFields(obj); err == nil {
			s.Label = fields.str("label")
			if s.Label == "" {
				return types.Suggestion{}, true
			}
			s.WantsImage = fields.flag("wantsImage", "wants_image")
			s.ImageDescription = strings.TrimSpace(fields.str("imageDescription", "image_description"))
			parsed = true
		}
	}
	if !parsed {
		s = types.Suggestion{Label: research.StripFences(reply)}
	}

	s.Label = truncateLabel(s.Label, labelMax)
	if s.WantsImage && s.ImageDescription == "" {
		s.ImageDescription = s.Label
	}
	return s, parsed
}

// ExtractJSONObject returns the first balanced {...} object in text that
// decodes as JSON.
func ExtractJSONObject(text string) (string, bool) {
	text = research.StripFences(text)
	for i := strings.IndexByte(text, '{'); i >= 0; {
		obj, ok := research.BalancedObject(text[i:])
		if ok && json.Valid([]byte(obj)) {
			return obj, true
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", false
}

type fields map[string]json.RawMessage

func decodeFields(obj string) (fields, error) {
	var f fields
	if err := json.Unmarshal([]byte(obj), &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) str(names ...string) string {
	for _, n := range names {
		raw, ok := f[n]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (f fields) flag(names ...string) bool {
	for _, n := range names {
		raw, ok := f[n]
		if !ok {
			continue
		}
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return b
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "yes", "y", "1":
				return true
			}
		}
		return false
	}
	return false
}

func (d *Decider) researchNotes(ctx context.Context, topic string) string {
	if !d.research {
		return ""
	}
	return d.agent.Run(ctx, topic)
}

func truncateLabel(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
