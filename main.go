package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/cmd/ingest"
	"github.com/chirino/conversation-cache/internal/cmd/migrate"
	"github.com/chirino/conversation-cache/internal/cmd/query"
	"github.com/chirino/conversation-cache/internal/cmd/serve"
	"github.com/chirino/conversation-cache/internal/security"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "conversation-cache",
		Usage: "Local conversation cache with snapshot sync and realtime updates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Sources: cmdutil.Env("LOG_LEVEL"),
				Value:   "info",
				Usage:   "Log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Sources: cmdutil.Env("LOG_FORMAT"),
				Value:   "text",
				Usage:   "Log output format (text|json|logfmt)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			security.ConfigureLogging(cmd.String("log-level"), cmd.String("log-format"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			ingest.Command(),
			query.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
