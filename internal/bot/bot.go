// Package bot runs the decision cycle: list surveys, decide a vote or a
// suggestion for each, render images for suggestions that want one, and
// hand the resulting memos to a ledger.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

const DefaultConcurrency = 4

// Decider is the decision pipeline; *decision.Decider satisfies it.
type Decider interface {
	ChooseVote(ctx context.Context, survey types.Survey, options []types.Option, counts types.VoteCounts) (string, error)
	SuggestOption(ctx context.Context, survey types.Survey, existing []types.Option) (types.Suggestion, error)
}

// ImageGenerator renders an image description to a URL, "" on failure;
// *imagegen.Router satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, description string) string
}

// Options wires a Bot.
type Options struct {
	Source      SurveySource
	Decider     Decider
	Images      ImageGenerator // optional
	Ledger      Ledger         // defaults to LogLedger
	Concurrency int
	Suggestions bool
}

// Bot holds collaborators and the in-memory record of surveys already
// handled in this process.
type Bot struct {
	source      SurveySource
	decider     Decider
	images      ImageGenerator
	ledger      Ledger
	concurrency int
	suggestions bool
	now         func() time.Time

	mu   sync.Mutex
	seen map[string]bool

	running atomic.Bool
}

// New creates a bot.
func New(opts Options) *Bot {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Ledger == nil {
		opts.Ledger = LogLedger{}
	}
	return &Bot{
		source:      opts.Source,
		decider:     opts.Decider,
		images:      opts.Images,
		ledger:      opts.Ledger,
		concurrency: opts.Concurrency,
		suggestions: opts.Suggestions,
		now:         time.Now,
		seen:        make(map[string]bool),
	}
}

// OptionsFromConfig fills the config-derived fields of Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Ledger:      NewLedgerFromConfig(cfg),
		Concurrency: cfg.Bot.Concurrency,
		Suggestions: cfg.Features().Suggestions,
	}
}

// RunCycle handles every survey not seen before, at most Concurrency at a
// time, and returns the memos produced in survey order. A failing survey is
// logged and skipped; only a failure to list surveys is returned.
func (b *Bot) RunCycle(ctx context.Context) ([]types.Memo, error) {
	start := time.Now()
	surveys, err := b.source.List(ctx)
	if err != nil {
		MetricFailWithReason("bot", "cycle", "list")
		return nil, fmt.Errorf("list surveys: %w", err)
	}

	results := make([][]types.Memo, len(surveys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, s := range surveys {
		if !b.claim(s.ID) {
			L_trace("bot: survey already handled", "survey", s.ID)
			continue
		}
		g.Go(func() error {
			memos, err := b.handle(gctx, s)
			if err != nil {
				L_warn("bot: survey failed", "survey", s.ID, "error", err)
				MetricFailWithReason("bot", "survey", "decision")
				if len(memos) == 0 {
					b.release(s.ID)
				}
			}
			results[i] = memos
			return nil
		})
	}
	_ = g.Wait()

	var memos []types.Memo
	for _, m := range results {
		memos = append(memos, m...)
	}
	MetricSuccess("bot", "cycle")
	MetricAdd("bot", "memos", int64(len(memos)))
	L_elapsed(start, "bot: cycle finished", "surveys", len(surveys), "memos", len(memos))
	return memos, nil
}

// claim marks a survey id as handled; false when it already was.
func (b *Bot) claim(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[id] {
		return false
	}
	b.seen[id] = true
	return true
}

func (b *Bot) release(id string) {
	b.mu.Lock()
	delete(b.seen, id)
	b.mu.Unlock()
}

// Seen reports whether a survey was handled in this process.
func (b *Bot) Seen(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen[id]
}

// handle produces and submits the memos for one survey.
func (b *Bot) handle(ctx context.Context, s types.Survey) ([]types.Memo, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var memos []types.Memo
	var errs []error

	if len(s.Options) > 0 {
		key, err := b.decider.ChooseVote(ctx, s, s.Options, s.Counts)
		if err != nil {
			errs = append(errs, fmt.Errorf("vote: %w", err))
		} else {
			memos = append(memos, b.memo(types.MemoVote, s.ID, func(m *types.Memo) { m.OptionKey = key }))
		}
	}

	if s.AllowSuggestions && b.suggestions {
		sug, err := b.decider.SuggestOption(ctx, s, s.Options)
		if err != nil {
			errs = append(errs, fmt.Errorf("suggest: %w", err))
		} else {
			if sug.WantsImage && b.images != nil {
				sug.ImageURL = b.images.Generate(ctx, sug.ImageDescription)
			}
			memos = append(memos, b.memo(types.MemoSuggestion, s.ID, func(m *types.Memo) { m.Suggestion = &sug }))
		}
	}

	submitted := memos[:0]
	for _, m := range memos {
		if err := b.ledger.Submit(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("submit %s memo: %w", m.Kind, err))
			MetricFailWithReason("bot", "submit", "ledger")
			continue
		}
		MetricOutcome("bot", "memo", m.Kind)
		submitted = append(submitted, m)
	}
	return submitted, errors.Join(errs...)
}

func (b *Bot) memo(kind, surveyID string, fill func(*types.Memo)) types.Memo {
	m := types.Memo{
		ID:        uuid.NewString(),
		Kind:      kind,
		SurveyID:  surveyID,
		CreatedAt: b.now().UTC(),
	}
	fill(&m)
	return m
}

// Serve runs a cycle immediately and then on schedule until ctx is done. A
// tick that arrives while a cycle is still running is skipped.
func (b *Bot) Serve(ctx context.Context, schedule string) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}

	// inflight covers the immediate cycle and cron jobs. Cron jobs run only
	// between Start and the end of Stop, so Wait after Stop cannot race Add.
	var inflight sync.WaitGroup
	c := cronlib.New()
	c.Schedule(sched, cronlib.FuncJob(func() {
		inflight.Add(1)
		defer inflight.Done()
		b.tick(ctx)
	}))
	c.Start()
	L_info("bot: serving", "schedule", schedule, "next", sched.Next(time.Now()).Format(time.RFC3339))

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		b.tick(ctx)
	}()

	<-ctx.Done()
	<-c.Stop().Done()
	inflight.Wait()
	L_info("bot: stopped")
	return nil
}

// tick runs one cycle unless one is already running.
func (b *Bot) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !b.running.CompareAndSwap(false, true) {
		L_warn("bot: previous cycle still running, skipping")
		MetricInc("bot", "skipped")
		return false
	}
	defer b.running.Store(false)

	if _, err := b.RunCycle(ctx); err != nil {
		L_error("bot: cycle failed", "error", err)
	}
	return true
}
