package decision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/llm"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/research"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/search"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"
)

type stubChat struct {
	reply   string
	err     error
	systems []string
	users   []string
}

func (c *stubChat) Name() string  { return "stub" }
func (c *stubChat) Model() string { return "stub-1" }

func (c *stubChat) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	c.systems = append(c.systems, system)
	c.users = append(c.users, user)
	return c.reply, c.err
}

func (c *stubChat) CompleteConversation(ctx context.Context, msgs []llm.Message, temperature float64) (string, error) {
	return c.reply, c.err
}

type noSearch struct{}

func (noSearch) Search(ctx context.Context, q string) []search.SearchResult { return nil }
func (noSearch) FetchPage(ctx context.Context, url string) string         { return "" }

var colors = []types.Option{{Key: "a", Label: "Red"}, {Key: "b", Label: "Blue"}}

func TestMatchOption(t *testing.T) {
	opts := []types.Option{
		{Key: "opt-1", Label: "Solar panels"},
		{Key: "opt-2", Label: "Wind farm https://example.com/wind"},
		{Key: "opt-3", Label: "Geothermal"},
	}
	tests := []struct {
		reply   string
		wantKey string
		wantHow string
	}{
		{"opt-2", "opt-2", MatchExact},
		{"  opt-3\n", "opt-3", MatchExact},
		{"`opt-1`", "opt-1", MatchExact},
		{"OPT-2", "opt-2", MatchCase},
		{"geothermal", "opt-3", MatchCase},
		{"Wind farm", "opt-2", MatchCase},
		{"I would pick Geothermal, it is steady.", "opt-3", MatchSubstring},
		{"Solar", "opt-1", MatchSubstring},
		{"none of these", "opt-1", MatchFallback},
		{"wind", "opt-2", MatchSubstring},
		{"", "opt-1", MatchFallback},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			key, how := MatchOption(tt.reply, opts)
			if key != tt.wantKey || how != tt.wantHow {
				t.Errorf("MatchOption(%q) = %s/%s, want %s/%s", tt.reply, key, how, tt.wantKey, tt.wantHow)
			}
		})
	}
}

func TestMatchOptionSubstringOrder(t *testing.T) {
	opts := []types.Option{{Key: "x", Label: "Dark Red"}, {Key: "y", Label: "Crimson"}, {Key: "z", Label: "Red"}}
	tests := map[string]string{
		"Red":             "z", // case-insensitive label beats substring
		"a red one":       "z",
		"obviously red":   "y", // key "y" appears before option z is tried
		"option y":        "y",
		"I like dark red": "x",
		"dark":            "x",
	}
	for reply, want := range tests {
		if key, _ := MatchOption(reply, opts); key != want {
			t.Errorf("MatchOption(%q) = %s, want %s", reply, key, want)
		}
	}
}

func TestMatchOptionShortKeys(t *testing.T) {
	fruit := []types.Option{{Key: "x1", Label: "Apples"}, {Key: "b2", Label: "Pears"}}
	tests := []struct {
		name    string
		options []types.Option
		reply   string
		wantKey string
	}{
		{"key after dash", colors, "option-b", "b"},
		{"key after underscore", fruit, "choice_b2", "b2"},
		{"letter inside a word", colors, "Blue, naturally", "a"},
		{"label wins when no key appears", colors, "BLUE!", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, how := MatchOption(tt.reply, tt.options)
			if key != tt.wantKey {
				t.Errorf("MatchOption(%q) = %s/%s, want %s", tt.reply, key, how, tt.wantKey)
			}
		})
	}
}

func TestChooseVote(t *testing.T) {
	survey := types.Survey{ID: "s1", Title: "Favourite colour?", Options: colors}

	chat := &stubChat{reply: "blue"}
	d := New(chat, Options{})
	key, err := d.ChooseVote(context.Background(), survey, colors, types.VoteCounts{"a": 3})
	if err != nil {
		t.Fatal(err)
	}
	if key != "b" {
		t.Errorf("key = %q, want b", key)
	}
	if !strings.Contains(chat.users[0], "a: Red (3 votes)") || !strings.Contains(chat.users[0], "b: Blue") {
		t.Errorf("prompt = %q", chat.users[0])
	}
}

func TestChooseVoteDegraded(t *testing.T) {
	survey := types.Survey{ID: "s1", Title: "Favourite colour?"}

	d := New(&stubChat{err: errors.New("429")}, Options{})
	key, err := d.ChooseVote(context.Background(), survey, colors, nil)
	if err != nil || key != "a" {
		t.Errorf("chat failure: key = %q err = %v, want first option", key, err)
	}

	key, err = d.ChooseVote(context.Background(), survey, nil, nil)
	if !errors.Is(err, ErrNoOptions) || key != "" {
		t.Errorf("no options: key = %q err = %v", key, err)
	}
}

func TestChooseVoteUsesResearch(t *testing.T) {
	agentChat := &stubChat{reply: `{"action":"done","summary":"Blue is the most popular colour worldwide."}`}
	agent := research.New(agentChat, noSearch{}, research.Options{})

	chat := &stubChat{reply: "b"}
	d := New(chat, Options{Agent: agent, ResearchEnabled: true})
	if _, err := d.ChooseVote(context.Background(), types.Survey{ID: "s1", Title: "Colour"}, colors, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(chat.users[0], "Research notes:\nBlue is the most popular") {
		t.Errorf("notes missing from prompt: %q", chat.users[0])
	}

	// Disabled research skips the agent.
	chat = &stubChat{reply: "b"}
	d = New(chat, Options{Agent: agent})
	_, _ = d.ChooseVote(context.Background(), types.Survey{ID: "s1"}, colors, nil)
	if strings.Contains(chat.users[0], "Research notes") {
		t.Error("research ran while disabled")
	}
}

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		want       types.Suggestion
		wantParsed bool
	}{
		{
			name:       "leading prose",
			reply:      `ok here's one: {"label":"Add dark mode","wantsImage":false,"imageDescription":""}`,
			want:       types.Suggestion{Label: "Add dark mode"},
			wantParsed: true,
		},
		{
			name:       "fenced",
			reply:      "```json\n{\"label\":\"Night market\",\"wantsImage\":true,\"imageDescription\":\"lanterns over stalls\"}\n```",
			want:       types.Suggestion{Label: "Night market", WantsImage: true, ImageDescription: "lanterns over stalls"},
			wantParsed: true,
		},
		{
			name:       "image without description",
			reply:      `{"label":"Rooftop garden","wantsImage":"yes"}`,
			want:       types.Suggestion{Label: "Rooftop garden", WantsImage: true, ImageDescription: "Rooftop garden"},
			wantParsed: true,
		},
		{
			name:       "snake case",
			reply:      `{"label":"Bike lanes","wants_image":true,"image_description":"a painted lane"}`,
			want:       types.Suggestion{Label: "Bike lanes", WantsImage: true, ImageDescription: "a painted lane"},
			wantParsed: true,
		},
		{
			name:  "not json",
			reply: "How about a community library?",
			want:  types.Suggestion{Label: "How about a community library?"},
		},
		{
			name:       "object without label",
			reply:      `{"wantsImage":true}`,
			want:       types.Suggestion{},
			wantParsed: true,
		},
		{
			name:       "object with empty label",
			reply:      `{"label":"","wantsImage":true,"imageDescription":"cat"}`,
			want:       types.Suggestion{},
			wantParsed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, parsed := ParseSuggestion(tt.reply, 120)
			if parsed != tt.wantParsed {
				t.Errorf("parsed = %v, want %v", parsed, tt.wantParsed)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("suggestion mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseSuggestionCapsLabel(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got, parsed := ParseSuggestion(long, 90)
	if parsed {
		t.Error("plain text reported as parsed")
	}
	if n := len([]rune(got.Label)); n > 90 {
		t.Errorf("label length = %d", n)
	}
}

func TestLabelMaxLenClamped(t *testing.T) {
	tests := map[int]int{0: DefaultLabelLen, 10: MinLabelLen, 150: 150, 999: MaxLabelLen}
	for in, want := range tests {
		if got := New(&stubChat{}, Options{LabelMaxLen: in}).LabelMaxLen(); got != want {
			t.Errorf("LabelMaxLen(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSuggestOption(t *testing.T) {
	survey := types.Survey{ID: "s2", Title: "Next feature?", AllowSuggestions: true}
	existing := []types.Option{{Key: "1", Label: "Export to CSV"}}

	chat := &stubChat{reply: `ok here's one: {"label":"Add dark mode","wantsImage":false,"imageDescription":""}`}
	s, err := New(chat, Options{}).SuggestOption(context.Background(), survey, existing)
	if err != nil {
		t.Fatal(err)
	}
	if s != (types.Suggestion{Label: "Add dark mode"}) {
		t.Errorf("suggestion = %+v", s)
	}
	if !strings.Contains(chat.systems[0], "under 120 characters") || !strings.Contains(chat.users[0], "- Export to CSV") {
		t.Errorf("prompts = %q / %q", chat.systems[0], chat.users[0])
	}

	_, err = New(&stubChat{err: errors.New("down")}, Options{}).SuggestOption(context.Background(), survey, existing)
	if err == nil {
		t.Error("chat failure should be returned")
	}

	_, err = New(&stubChat{reply: `{"label":"export to csv"}`}, Options{}).SuggestOption(context.Background(), survey, existing)
	if !errors.Is(err, ErrDuplicateSuggestion) {
		t.Errorf("duplicate: err = %v", err)
	}

	_, err = New(&stubChat{reply: "   "}, Options{}).SuggestOption(context.Background(), survey, existing)
	if !errors.Is(err, ErrEmptySuggestion) {
		t.Errorf("empty: err = %v", err)
	}

	s, err = New(&stubChat{reply: `{"label":"","wantsImage":true,"imageDescription":"cat"}`}, Options{}).SuggestOption(context.Background(), survey, existing)
	if !errors.Is(err, ErrEmptySuggestion) {
		t.Errorf("empty label: err = %v", err)
	}
	if s != (types.Suggestion{}) {
		t.Errorf("empty label: suggestion = %+v", s)
	}
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := ExtractJSONObject(`note {not json} then {"label":"x {y}"} trailing`)
	if !ok || obj != `{"label":"x {y}"}` {
		t.Errorf("ExtractJSONObject = %q, %v", obj, ok)
	}
	if _, ok := ExtractJSONObject("no braces"); ok {
		t.Error("found object in plain text")
	}
}
