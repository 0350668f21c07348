package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/bot"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/paths"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
)

type VoteCmd struct {
	Survey string `help:"Survey JSON file." required:"" type:"existingfile"`
}

func (c *VoteCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer dumpMetrics(g)

	s, err := bot.LoadSurvey(c.Survey)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	key, err := a.decider.ChooseVote(ctx, s, s.Options, s.Counts)
	if err != nil {
		return err
	}
	opt, _ := s.OptionByKey(key)
	return printJSON(map[string]string{"survey": s.ID, "key": key, "label": opt.Label})
}

type SuggestCmd struct {
	Survey string `help:"Survey JSON file." required:"" type:"existingfile"`
	Image  bool   `help:"Render an image when the suggestion asks for one." negatable:"" default:"true"`
}

func (c *SuggestCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer dumpMetrics(g)

	s, err := bot.LoadSurvey(c.Survey)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	sug, err := a.decider.SuggestOption(ctx, s, s.Options)
	if err != nil {
		return err
	}
	if c.Image && sug.WantsImage {
		sug.ImageURL = a.images.Generate(ctx, sug.ImageDescription)
	}
	return printJSON(sug)
}

type ResearchCmd struct {
	Topic []string `arg:"" help:"Topic to research."`
}

func (c *ResearchCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer dumpMetrics(g)

	if !a.agent.Enabled() {
		return fmt.Errorf("research is disabled: set search.apiKey or SURVEYBOT_SEARCH_KEY")
	}
	ctx, cancel := signalContext()
	defer cancel()

	res := a.agent.RunDetailed(ctx, strings.Join(c.Topic, " "))
	fmt.Println(res.Summary)
	return nil
}

type ImagineCmd struct {
	Prompt []string `arg:"" help:"Image description."`
}

func (c *ImagineCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer dumpMetrics(g)

	ctx, cancel := signalContext()
	defer cancel()

	url := a.images.Generate(ctx, strings.Join(c.Prompt, " "))
	if url == "" {
		return fmt.Errorf("no image produced (backend %s)", a.images.Kind())
	}
	fmt.Println(url)
	return nil
}

type RunCmd struct {
	Surveys string `help:"JSON file with an array of surveys." required:"" type:"existingfile"`
}

func (c *RunCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer dumpMetrics(g)

	ctx, cancel := signalContext()
	defer cancel()

	memos, err := a.bot(bot.FileSource{Path: c.Surveys}).RunCycle(ctx)
	if err != nil {
		return err
	}
	if memos == nil {
		memos = []types.Memo{}
	}
	return printJSON(memos)
}

type ServeCmd struct {
	Surveys  string `help:"JSON file with an array of surveys, re-read every cycle." required:"" type:"existingfile"`
	Schedule string `help:"Cron spec, @every interval or duration. Defaults to bot.schedule."`
}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer dumpMetrics(g)

	schedule := c.Schedule
	if schedule == "" {
		schedule = a.cfg.Bot.Schedule
	}
	ctx, cancel := signalContext()
	defer cancel()

	return a.bot(bot.FileSource{Path: c.Surveys}).Serve(ctx, schedule)
}

type InitCmd struct {
	Path  string `arg:"" optional:"" help:"Where to write the config. Defaults to ~/.surveybot/config.json."`
	Force bool   `help:"Overwrite an existing file."`
}

func (c *InitCmd) Run(g *Globals) error {
	Init(&Config{Level: ParseLevel(g.LogLevel)})

	path, err := paths.ExpandTilde(c.Path)
	if err != nil {
		return err
	}
	if path == "" {
		if path, err = paths.DefaultConfigPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Defaults()); err != nil {
		return err
	}
	fmt.Printf("wrote %s; set apiKey (or SURVEYBOT_API_KEY) before running\n", path)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Printf("surveybot %s\n", version)
	return nil
}
