package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the conversation cache HTTP server and background sync",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	var fs []cli.Flag
	fs = append(fs, serverFlags(cfg, readHeaderTimeoutSecs)...)
	fs = append(fs, cmdutil.DatabaseFlags(cfg)...)
	fs = append(fs, cmdutil.CacheFlags(cfg)...)
	fs = append(fs, cmdutil.SnapshotFlags(cfg)...)
	fs = append(fs, syncFlags(cfg)...)
	fs = append(fs, cmdutil.MetricsFlags(cfg)...)
	return fs
}

func serverFlags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cmdutil.Env("READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cmdutil.Env("MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cmdutil.Env("DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cmdutil.Env("MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cmdutil.Env("CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cmdutil.Env("CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cmdutil.Env("PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cmdutil.Env("PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cmdutil.Env("TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2 on the same port",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Network Listener:",
			Sources:     cmdutil.Env("TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Network Listener:",
			Sources:     cmdutil.Env("TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cmdutil.Env("MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cmdutil.Env("MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for the management server",
		},
	}
}

func syncFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "snapshot-interval",
			Category:    "Snapshot:",
			Sources:     cmdutil.Env("SNAPSHOT_INTERVAL"),
			Destination: &cfg.SnapshotInterval,
			Value:       cfg.SnapshotInterval,
			Usage:       "How often to pull the snapshot; 0 syncs once at startup",
		},

		// ── Realtime ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "realtime-nats-url",
			Category:    "Realtime:",
			Sources:     cmdutil.Env("REALTIME_NATS_URL"),
			Destination: &cfg.RealtimeNATSURL,
			Usage:       "NATS server URL for message events; disabled when empty",
		},
		&cli.StringFlag{
			Name:        "realtime-nats-subject",
			Category:    "Realtime:",
			Sources:     cmdutil.Env("REALTIME_NATS_SUBJECT"),
			Destination: &cfg.RealtimeNATSSubject,
			Value:       cfg.RealtimeNATSSubject,
			Usage:       "NATS subject carrying message events",
		},
		&cli.StringFlag{
			Name:        "realtime-nats-queue",
			Category:    "Realtime:",
			Sources:     cmdutil.Env("REALTIME_NATS_QUEUE"),
			Destination: &cfg.RealtimeNATSQueue,
			Usage:       "NATS queue group; set to share events across replicas",
		},

		// ── Query ─────────────────────────────────────────────────
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
			Usage:       "Answer queries from the local cache (local) or proxy them to --remote-url (remote)",
		},
		&cli.StringFlag{
			Name:        "remote-url",
			Category:    "Query:",
			Sources:     cmdutil.Env("REMOTE_URL"),
			Destination: &cfg.RemoteURL,
			Usage:       "Base URL of the upstream conversation service for --adapter-mode=remote",
		},
		&cli.DurationFlag{
			Name:        "remote-timeout",
			Category:    "Query:",
			Sources:     cmdutil.Env("REMOTE_TIMEOUT"),
			Destination: &cfg.RemoteTimeout,
			Value:       cfg.RemoteTimeout,
			Usage:       "Timeout for one remote query",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

// maxBodySizeMiddleware caps request bodies at maxBodySize bytes; 0 disables the cap.
func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}
