package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/bot"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/decision"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/imagegen"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/llm"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/research"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/store"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg     *config.Config
	profile llm.ProviderProfile
	chat    llm.Chat
	agent   *research.Agent
	decider *decision.Decider
	store   *store.Client
	images  *imagegen.Router
}

// setup loads configuration and logging. Only a missing chat credential is
// fatal; research, images and the store degrade with a warning.
func setup(g *Globals) (*app, error) {
	Init(&Config{Level: ParseLevel(g.LogLevel), TimeFormat: "15:04:05"})

	path := g.Config
	if path == "" {
		path = config.Find()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if g.LogLevel == "" && cfg.Log.Level != "" {
		SetLevel(ParseLevel(cfg.Log.Level))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chat, profile, err := llm.NewChatFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	L_info("surveybot: chat ready", "provider", chat.Name(), "model", chat.Model())

	a := &app{cfg: cfg, profile: profile, chat: chat}
	a.agent = research.NewFromConfig(cfg, chat)
	a.decider = decision.NewFromConfig(cfg, chat, a.agent)
	a.store = store.NewFromConfig(cfg)

	a.images, err = imagegen.NewRouter(cfg, profile, chat, a.store)
	if err != nil {
		L_warn("surveybot: image generation disabled", "reason", err)
	}
	return a, nil
}

func (a *app) bot(source bot.SurveySource) *bot.Bot {
	opts := bot.OptionsFromConfig(a.cfg)
	opts.Source = source
	opts.Decider = a.decider
	opts.Images = a.images
	return bot.New(opts)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dumpMetrics(g *Globals) {
	if !g.Metrics {
		return
	}
	data, err := json.MarshalIndent(metrics.GetInstance().GetSnapshot(), "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}
