package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/tometh04/maxevagestion-sub002/internal/app"
	envconfig "github.com/tometh04/maxevagestion-sub002/internal/common/config"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/logging"
)

var (
	// Version contains the application version number. It's set via ldflags
	// when building.
	Version = ""

	cli struct {
		Version kong.VersionFlag `help:"Show version information"`
		Globals
		Commands
	}
)

func main() {
	kctx := kong.Parse(&cli,
		kong.Vars{
			"version": buildVersion(),
		},
		kong.Name("ledgerctl"),
		kong.Description("Operate the treasury ledger: accounts, movements, rates and settlements."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	config, err := envconfig.LoadFromEnv()
	kctx.FatalIfErrorf(err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.SlogLevel(config.LogLevel),
	}))

	application, err := app.New(ctx, config, logger)
	kctx.FatalIfErrorf(err)
	defer application.Close()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(application)
	if err != nil {
		printError(os.Stderr, err.Error())
		application.Close()
		os.Exit(1)
	}
}

func buildVersion() string {
	if Version == "" {
		Version = "dev"
	}
	return fmt.Sprintf("%s (ledger %s)", Version, app.Version)
}
