package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/snapshot"
	"github.com/urfave/cli/v3"
)

// Command returns the ingest sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var location string

	fs := []cli.Flag{
		&cli.StringFlag{
			Name:        "location",
			Aliases:     []string{"l"},
			Sources:     cmdutil.Env("INGEST_LOCATION"),
			Destination: &location,
			Usage:       "Snapshot to ingest (file path, http(s):// or s3://); defaults to the watermark-selected --snapshot-url",
		},
	}
	fs = append(fs, cmdutil.DatabaseFlags(&cfg)...)
	fs = append(fs, cmdutil.CacheFlags(&cfg)...)
	fs = append(fs, cmdutil.SnapshotFlags(&cfg)...)
	fs = append(fs, cmdutil.MetricsFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Merge one snapshot into the configured store and print the result",
		Flags: fs,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(config.WithContext(ctx, &cfg), &cfg, location, cmd.Root().Writer)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, location string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	if err := cmdutil.InitMetrics(cfg); err != nil {
		return err
	}
	store, err := cmdutil.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ingestor := snapshot.NewIngestor(merge.NewMerger(store), cfg)

	var result *snapshot.Result
	if location != "" {
		result, err = ingestor.Ingest(ctx, location)
	} else {
		result, err = ingestor.Sync(ctx)
	}

	var fetchErr *snapshot.SourceFetchError
	if err != nil && !(errors.As(err, &fetchErr) && result != nil) {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}
	if err != nil {
		log.Error("Snapshot not ingested", "location", result.Location, "diagnostic", result.Diagnostic)
		return err
	}
	return nil
}
