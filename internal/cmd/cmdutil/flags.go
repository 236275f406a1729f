package cmdutil

import (
	"strings"

	"github.com/chirino/conversation-cache/internal/config"
	registrycache "github.com/chirino/conversation-cache/internal/registry/cache"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/urfave/cli/v3"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "CONVERSATION_CACHE_"

// Env returns the environment variable source for a flag name suffix.
func Env(name string) cli.ValueSourceChain {
	return cli.EnvVars(EnvPrefix + name)
}

// DatabaseFlags binds the record store flags.
func DatabaseFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     Env("DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Record store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     Env("DB_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Database connection URL; a file path for sqlite",
		},
		&cli.StringFlag{
			Name:        "db-mongo-database",
			Category:    "Database:",
			Sources:     Env("DB_MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "Mongo database name",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     Env("DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Create or update the schema before opening the store",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     Env("DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     Env("DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
	}
}

// CacheFlags binds the scan cache flags.
func CacheFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     Env("CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Scan cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     Env("REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL for --cache-kind=redis",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     Env("CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "Lifetime of a cached scan",
		},
		&cli.Int64Flag{
			Name:        "cache-max-entries",
			Category:    "Cache:",
			Sources:     Env("CACHE_MAX_ENTRIES"),
			Destination: &cfg.CacheMaxEntries,
			Value:       cfg.CacheMaxEntries,
			Usage:       "Maximum cached scans for --cache-kind=local",
		},
	}
}

// SnapshotFlags binds the snapshot source flags.
func SnapshotFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "snapshot-url",
			Category:    "Snapshot:",
			Sources:     Env("SNAPSHOT_URL"),
			Destination: &cfg.SnapshotURL,
			Usage:       "Full snapshot location (file path, http(s):// or s3://)",
		},
		&cli.StringFlag{
			Name:        "snapshot-incremental-url",
			Category:    "Snapshot:",
			Sources:     Env("SNAPSHOT_INCREMENTAL_URL"),
			Destination: &cfg.SnapshotIncrementalURL,
			Usage:       "Incremental snapshot location once a watermark exists; {since} is replaced by the watermark",
		},
		&cli.DurationFlag{
			Name:        "snapshot-fetch-timeout",
			Category:    "Snapshot:",
			Sources:     Env("SNAPSHOT_FETCH_TIMEOUT"),
			Destination: &cfg.SnapshotFetchTimeout,
			Value:       cfg.SnapshotFetchTimeout,
			Usage:       "Timeout for downloading one snapshot",
		},
		&cli.Int64Flag{
			Name:        "snapshot-max-bytes",
			Category:    "Snapshot:",
			Sources:     Env("SNAPSHOT_MAX_BYTES"),
			Destination: &cfg.SnapshotMaxBytes,
			Value:       cfg.SnapshotMaxBytes,
			Usage:       "Reject snapshots larger than this many bytes",
		},
		&cli.BoolFlag{
			Name:        "s3-use-path-style",
			Category:    "Snapshot:",
			Sources:     Env("S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for LocalStack/MinIO)",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Snapshot:",
			Sources:     Env("TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for spooled snapshot downloads; defaults to the OS temp directory",
		},
	}
}

// MetricsFlags binds the Prometheus label flag.
func MetricsFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     Env("METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}
