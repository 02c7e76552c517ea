package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Serve   ServeCmd         `cmd:"" help:"Run the poker table server"`
	Replay  ReplayCmd        `cmd:"" help:"Render recorded hand logs"`
	Stats   StatsCmd         `cmd:"" help:"Summarise player results from hand logs"`
	Watch   WatchCmd         `cmd:"" help:"Follow a table live, optionally playing a seat"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pokertable"),
		kong.Description("Texas hold'em tables over websockets"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
