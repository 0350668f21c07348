// surveybot researches community surveys with an LLM, votes on them,
// proposes new options, and submits the decisions as ledger memos.
package main

import (
	"github.com/alecthomas/kong"
)

const version = "0.3.0"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Config file (JSON or YAML). Defaults to the first of ./surveybot.json, ./surveybot.yaml, ~/.surveybot/config.json." short:"c" type:"path"`
	LogLevel string `help:"Log level: trace, debug, info, warn, error." name:"log-level" default:""`
	Metrics  bool   `help:"Print collected metrics to stderr on exit."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Vote     VoteCmd     `cmd:"" help:"Choose a vote for one survey."`
	Suggest  SuggestCmd  `cmd:"" help:"Propose a new option for one survey."`
	Research ResearchCmd `cmd:"" help:"Run the research agent on a topic and print the summary."`
	Imagine  ImagineCmd  `cmd:"" help:"Generate an image and print its URL."`
	Run      RunCmd      `cmd:"" help:"Run one decision cycle and print the memos as JSON."`
	Serve    ServeCmd    `cmd:"" help:"Run decision cycles on a schedule."`
	Init     InitCmd     `cmd:"" help:"Write a default config file."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("surveybot"),
		kong.Description("LLM research agent and survey bot."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
