// Package research runs a bounded search/read/summarize loop against a chat
// model. The model drives the loop through a small JSON command protocol;
// the loop never fails, it degrades to a shorter or empty summary.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/llm"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/search"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

const (
	DefaultMaxSteps = 6
	MaxSummaryLen   = 1500
	defaultTemp     = 0.3
)

// Terminal outcomes recorded under research/outcome.
const (
	OutcomeDone          = "done"
	OutcomeNudgeFailed   = "nudge_failed"
	OutcomeUnknownAction = "unknown_action"
	OutcomeExhausted     = "exhausted"
	OutcomeChatError     = "chat_error"
	OutcomeCancelled     = "cancelled"
	OutcomeDisabled      = "disabled"
)

const systemPromptTemplate = `You are a research assistant helping a bot take part in a community survey. Today's date is %s.

You work in steps. At every step reply with exactly one JSON object and nothing else:
{"action":"search","query":"<web search query>"}
{"action":"read","url":"<a URL from the search results>"}
{"action":"done","summary":"<your findings, under %d characters>"}

You have at most %d steps. Prefer reading one or two promising pages over repeating similar searches. Finish with done as soon as you know enough.`

const (
	topicPrompt    = "Research topic:\n%s\n\nReply with your first action."
	nudgePrompt    = `Your last reply was not a valid action. Reply with only one JSON object, for example {"action":"search","query":"..."}, and no other text.`
	continuePrompt = "Continue with your next action as a single JSON object."
	forcingPrompt  = `You have used all of your research steps. Reply now with {"action":"done","summary":"..."} summarizing what you found.`

	searchResultsHeader = "Search results for %q:"
	pageContentHeader   = "Page content from %s:"
)

// Result describes how a run ended; Run returns only the summary.
type Result struct {
	Summary string
	Outcome string
	Steps   int // reasoning turns taken, not counting the nudge or the forced final turn
}

// Options configures an Agent. Zero values take defaults.
type Options struct {
	MaxSteps      int
	SummaryMaxLen int // capped at MaxSummaryLen
	Temperature   float64
}

// Agent is a research loop over one chat client and one search tool. An
// Agent is safe for concurrent runs; each run owns its conversation.
type Agent struct {
	chat        llm.Chat
	searcher    search.Searcher
	maxSteps    int
	summaryMax  int
	temperature float64
	now         func() time.Time
}

// New creates an agent. A nil searcher yields an agent whose runs return ""
// without any network calls.
func New(chat llm.Chat, searcher search.Searcher, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.SummaryMaxLen <= 0 || opts.SummaryMaxLen > MaxSummaryLen {
		opts.SummaryMaxLen = MaxSummaryLen
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemp
	}
	return &Agent{
		chat:        chat,
		searcher:    searcher,
		maxSteps:    opts.MaxSteps,
		summaryMax:  opts.SummaryMaxLen,
		temperature: opts.Temperature,
		now:         time.Now,
	}
}

// NewFromConfig wires an agent from cfg. When research is disabled or no
// search key is configured the agent has no searcher.
func NewFromConfig(cfg *config.Config, chat llm.Chat) *Agent {
	opts := Options{
		MaxSteps:      cfg.Research.MaxSteps,
		SummaryMaxLen: cfg.Research.SummaryMaxLen,
		Temperature:   cfg.Research.Temperature,
	}
	if !cfg.ResearchEnabled() {
		L_info("research: disabled by config")
		return New(chat, nil, opts)
	}
	tool, err := search.NewFromConfig(cfg)
	if err != nil {
		L_warn("research: disabled", "reason", err)
		return New(chat, nil, opts)
	}
	return New(chat, tool, opts)
}

// Enabled reports whether runs will do any research.
func (a *Agent) Enabled() bool {
	return a != nil && a.chat != nil && a.searcher != nil
}

// Run researches topic and returns a summary of at most SummaryMaxLen
// characters, possibly empty.
func (a *Agent) Run(ctx context.Context, topic string) string {
	return a.RunDetailed(ctx, topic).Summary
}

// RunDetailed is Run with the terminal outcome and step count.
func (a *Agent) RunDetailed(ctx context.Context, topic string) Result {
	if !a.Enabled() {
		MetricOutcome("research", "outcome", OutcomeDisabled)
		return Result{Outcome: OutcomeDisabled}
	}

	start := time.Now()
	r := &run{agent: a, topic: topic}
	r.seed()
	res := r.loop(ctx)
	res.Summary = truncate(res.Summary, a.summaryMax)

	MetricOutcome("research", "outcome", res.Outcome)
	MetricAdd("research", "steps", int64(res.Steps))
	MetricDuration("research", "run", time.Since(start))
	L_elapsed(start, "research: run finished", "topic", Preview(topic, 60), "outcome", res.Outcome, "steps", res.Steps, "summaryChars", len([]rune(res.Summary)))
	return res
}

// run is the state of one agent run.
type run struct {
	agent *Agent
	topic string
	conv  []llm.Message
	steps int
}

func (r *run) seed() {
	a := r.agent
	r.conv = []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPromptTemplate, a.now().Format("2006-01-02"), a.summaryMax, a.maxSteps)},
		{Role: llm.RoleUser, Content: fmt.Sprintf(topicPrompt, r.topic)},
	}
}

func (r *run) complete(ctx context.Context) (string, error) {
	reply, err := r.agent.chat.CompleteConversation(ctx, r.conv, r.agent.temperature)
	if err != nil {
		return "", err
	}
	r.conv = append(r.conv, llm.Message{Role: llm.RoleAssistant, Content: reply})
	return reply, nil
}

func (r *run) say(content string) {
	r.conv = append(r.conv, llm.Message{Role: llm.RoleUser, Content: content})
}

// stopped ends the run early with whatever the transcript holds.
func (r *run) stopped(ctx context.Context, err error) Result {
	outcome := OutcomeChatError
	if ctx.Err() != nil {
		outcome = OutcomeCancelled
	} else {
		L_warn("research: chat failed, using partial findings", "step", r.steps, "error", err)
	}
	return Result{Summary: r.partialSummary(), Outcome: outcome, Steps: r.steps}
}

func (r *run) loop(ctx context.Context) Result {
	a := r.agent
	for r.steps < a.maxSteps {
		if ctx.Err() != nil {
			return r.stopped(ctx, ctx.Err())
		}
		r.steps++

		reply, err := r.complete(ctx)
		if err != nil {
			return r.stopped(ctx, err)
		}
		cmd := ParseCommand(reply)

		// One format nudge, on the first step only.
		if cmd.Kind == CommandUnrecognized && r.steps == 1 {
			L_debug("research: unparsable first reply, nudging", "reply", Preview(reply, 120))
			r.say(nudgePrompt)
			reply, err = r.complete(ctx)
			if err != nil {
				return r.stopped(ctx, err)
			}
			cmd = ParseCommand(reply)
			if cmd.Kind == CommandUnrecognized {
				L_warn("research: model ignored the command format", "reply", Preview(reply, 120))
				return Result{Summary: StripFences(reply), Outcome: OutcomeNudgeFailed, Steps: r.steps}
			}
		}

		switch cmd.Kind {
		case CommandSearch:
			results := a.searcher.Search(ctx, cmd.Query)
			L_debug("research: search", "step", r.steps, "query", Preview(cmd.Query, 80), "results", len(results))
			r.say(FormatResults(cmd.Query, results))
		case CommandRead:
			text := a.searcher.FetchPage(ctx, cmd.URL)
			L_debug("research: read", "step", r.steps, "url", cmd.URL, "chars", len(text))
			r.say(fmt.Sprintf(pageContentHeader, cmd.URL) + "\n\n" + text)
		case CommandDone:
			return Result{Summary: cmd.Summary, Outcome: OutcomeDone, Steps: r.steps}
		case CommandUnknown:
			L_info("research: unknown action, stopping early", "action", cmd.Action, "step", r.steps)
			return Result{Summary: r.partialSummary(), Outcome: OutcomeUnknownAction, Steps: r.steps}
		default:
			r.say(continuePrompt)
		}
	}
	return r.exhausted(ctx)
}

// exhausted forces a final done after the step budget is spent.
func (r *run) exhausted(ctx context.Context) Result {
	if ctx.Err() != nil {
		return r.stopped(ctx, ctx.Err())
	}
	r.say(forcingPrompt)
	reply, err := r.complete(ctx)
	if err != nil {
		res := r.stopped(ctx, err)
		if res.Outcome == OutcomeChatError {
			res.Outcome = OutcomeExhausted
		}
		return res
	}
	if cmd := ParseCommand(reply); cmd.Kind == CommandDone && cmd.Summary != "" {
		return Result{Summary: cmd.Summary, Outcome: OutcomeExhausted, Steps: r.steps}
	}
	return Result{Summary: StripFences(reply), Outcome: OutcomeExhausted, Steps: r.steps}
}

// partialSummary joins the findings gathered so far, newest kept when the
// budget runs out. Empty when nothing was found.
func (r *run) partialSummary() string {
	var findings []string
	budget := r.agent.summaryMax
	for i := len(r.conv) - 1; i >= 0 && budget > 0; i-- {
		m := r.conv[i]
		if m.Role != llm.RoleUser || !isFinding(m.Content) {
			continue
		}
		text := truncate(m.Content, budget)
		budget -= len([]rune(text)) + 2
		findings = append([]string{text}, findings...)
	}
	return strings.Join(findings, "\n\n")
}

func isFinding(content string) bool {
	return strings.HasPrefix(content, "Search results for ") || strings.HasPrefix(content, "Page content from ")
}

// FormatResults renders results as numbered "N. [title] snippet" lines with
// the URL indented below.
func FormatResults(query string, results []search.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, searchResultsHeader, query)
	if len(results) == 0 {
		b.WriteString(" no results. Try a different query, read a known page, or finish with done.")
		return b.String()
	}
	b.WriteString("\n\n")
	for i, res := range results {
		fmt.Fprintf(&b, "%d. [%s] %s\n   %s\n", i+1, res.Title, res.Snippet, res.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
