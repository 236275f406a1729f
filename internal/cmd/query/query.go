package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/config"
	enginequery "github.com/chirino/conversation-cache/internal/query"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v3"
)

// options are the query-specific flags.
type options struct {
	Filter  string
	PageIDs []string
	Limit   int
	Cursor  string
	JQ      string
}

// Command returns the query sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var opts options

	fs := []cli.Flag{
		&cli.StringFlag{
			Name:        "filter",
			Aliases:     []string{"f"},
			Category:    "Query:",
			Destination: &opts.Filter,
			Value:       "{}",
			Usage:       `Filter as JSON, e.g. '{"unreadMessage":true,"labelIds":["l1"]}'`,
		},
		&cli.StringSliceFlag{
			Name:        "page-id",
			Category:    "Query:",
			Destination: &opts.PageIDs,
			Usage:       "Restrict to a page id (repeatable); all pages when unset",
		},
		&cli.IntFlag{
			Name:        "limit",
			Category:    "Query:",
			Destination: &opts.Limit,
			Usage:       "Page size; 0 uses --default-page-size",
		},
		&cli.StringFlag{
			Name:        "cursor",
			Category:    "Query:",
			Destination: &opts.Cursor,
			Usage:       "Resume after this conversation id (the nextCursor of a previous page)",
		},
		&cli.StringFlag{
			Name:        "jq",
			Category:    "Query:",
			Destination: &opts.JQ,
			Usage:       "jq expression applied to the JSON response before printing",
		},
		&cli.IntFlag{
			Name:        "default-page-size",
			Category:    "Query:",
			Sources:     cmdutil.Env("DEFAULT_PAGE_SIZE"),
			Destination: &cfg.DefaultPageSize,
			Value:       cfg.DefaultPageSize,
			Usage:       "Page size for queries that do not set a limit",
		},
		&cli.StringFlag{
			Name:        "adapter-mode",
			Category:    "Query:",
			Sources:     cmdutil.Env("ADAPTER_MODE"),
			Destination: &cfg.AdapterMode,
			Value:       cfg.AdapterMode,
			Usage:       "Query the local store (local) or a running server at --remote-url (remote)",
		},
		&cli.StringFlag{
			Name:        "remote-url",
			Category:    "Query:",
			Sources:     cmdutil.Env("REMOTE_URL"),
			Destination: &cfg.RemoteURL,
			Usage:       "Base URL of a conversation cache server",
		},
	}
	fs = append(fs, cmdutil.DatabaseFlags(&cfg)...)
	fs = append(fs, cmdutil.CacheFlags(&cfg)...)

	return &cli.Command{
		Name:  "query",
		Usage: "List conversations matching a filter and print them as JSON",
		Flags: fs,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(config.WithContext(ctx, &cfg), &cfg, opts, cmd.Root().Writer)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}

	req := adapter.Request{PageIDs: opts.PageIDs, Limit: opts.Limit, Cursor: opts.Cursor}
	if opts.Filter != "" {
		if err := json.Unmarshal([]byte(opts.Filter), &req.Filter); err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
	}

	var code *gojq.Code
	if opts.JQ != "" {
		parsed, err := gojq.Parse(opts.JQ)
		if err != nil {
			return fmt.Errorf("invalid --jq: %w", err)
		}
		if code, err = gojq.Compile(parsed); err != nil {
			return fmt.Errorf("invalid --jq: %w", err)
		}
	}

	var engine *enginequery.Engine
	if cfg.AdapterMode != config.AdapterModeRemote {
		if err := cmdutil.InitMetrics(cfg); err != nil {
			return err
		}
		store, err := cmdutil.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		engine = enginequery.NewEngine(store, enginequery.WithDefaultLimit(cfg.DefaultPageSize))
	}

	a, err := adapter.New(cfg, engine)
	if err != nil {
		return err
	}
	resp, err := a.FetchConversations(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if code == nil {
		return enc.Encode(resp)
	}
	return printJQ(ctx, code, resp, enc)
}

// printJQ runs code over resp and encodes each emitted value. gojq only
// accepts plain JSON values, so resp is round-tripped through encoding/json.
func printJQ(ctx context.Context, code *gojq.Code, resp *adapter.Response, enc *json.Encoder) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return err
	}

	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return fmt.Errorf("--jq: %w", err)
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
}
