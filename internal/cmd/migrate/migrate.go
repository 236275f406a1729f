package migrate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/config"
	registrymigrate "github.com/chirino/conversation-cache/internal/registry/migrate"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var dryRun bool
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the conversations and meta schema in the configured store",
		Flags: append(cmdutil.DatabaseFlags(&cfg), &cli.BoolFlag{
			Name:        "dry-run",
			Destination: &dryRun,
			Usage:       "List the migrations that would run and exit",
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cfg, dryRun, os.Stdout)
		},
	}
}

func run(ctx context.Context, cfg config.Config, dryRun bool, out io.Writer) error {
	plan := registrymigrate.For(cfg.DatastoreType)
	if len(plan) == 0 {
		log.Info("No migrations registered", "db", cfg.DatastoreType)
		return nil
	}
	if dryRun {
		for _, p := range plan {
			fmt.Fprintln(out, p.Migrator.Name())
		}
		return nil
	}

	cfg.DatastoreMigrateAtStart = true
	ctx = config.WithContext(ctx, &cfg)
	if err := registrymigrate.RunAll(ctx); err != nil {
		return err
	}
	log.Info("Schema is up to date", "db", cfg.DatastoreType, "migrations", len(plan))
	return nil
}
