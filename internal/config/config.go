package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	AdapterModeLocal  = "local"
	AdapterModeRemote = "remote"
)

// Config holds all configuration for the conversation cache.
type Config struct {
	// Log level: debug, info, warn or error.
	LogLevel string

	// Datastore backend type: "sqlite", "postgres", "mongo" or "memory".
	DatastoreType string

	// Database connection URL. For sqlite this is a file path or DSN.
	DBURL string

	// Mongo database name.
	MongoDatabase string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Scan cache backend type: "none", "local" or "redis".
	CacheType string

	// Redis
	RedisURL string

	// Scan cache entry TTL.
	CacheTTL time.Duration

	// Max entries for the in-process scan cache.
	CacheMaxEntries int64

	// Snapshot sync. SnapshotIncrementalURL may contain "{since}", replaced by
	// the current watermark.
	SnapshotURL            string
	SnapshotIncrementalURL string
	SnapshotInterval       time.Duration
	SnapshotFetchTimeout   time.Duration
	SnapshotMaxBytes       int64

	// S3 snapshot source.
	S3UsePathStyle bool

	// Directory for spooled snapshot downloads. Empty uses the OS temp dir.
	TempDir string

	// Realtime NATS channel. Disabled when RealtimeNATSURL is empty.
	RealtimeNATSURL     string
	RealtimeNATSSubject string
	RealtimeNATSQueue   string

	// Adapter mode: "local" queries the cache, "remote" proxies to RemoteURL.
	AdapterMode   string
	RemoteURL     string
	RemoteTimeout time.Duration

	// Default page size for queries that do not set a limit.
	DefaultPageSize int

	// Server
	Listener            ListenerConfig
	ManagementAccessLog bool

	// Dedicated listener for /health, /ready and /metrics. When disabled those
	// routes are served on the main listener.
	ManagementListenerEnabled bool
	ManagementListener        ListenerConfig

	// CORS
	CORSEnabled bool
	CORSOrigins string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                "info",
		DatastoreType:           "sqlite",
		DBURL:                   "conversation-cache.db",
		MongoDatabase:           "conversation_cache",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheTTL:                5 * time.Minute,
		CacheMaxEntries:         1024,
		SnapshotInterval:        5 * time.Minute,
		SnapshotFetchTimeout:    2 * time.Minute,
		SnapshotMaxBytes:        1 << 30,
		RealtimeNATSSubject:     "conversations.messages",
		AdapterMode:             AdapterModeLocal,
		RemoteTimeout:           30 * time.Second,
		DefaultPageSize:         50,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         false,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			Port:              9090,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:   64 * 1024 * 1024,
		DrainTimeout:  30,
		MetricsLabels: "service=conversation-cache",
	}
}

// ResolvedTempDir returns TempDir or the OS default.
func (c *Config) ResolvedTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// ExpandSince substitutes the watermark into an incremental snapshot URL template.
func ExpandSince(template string, watermark int64) string {
	return strings.ReplaceAll(template, "{since}", strconv.FormatInt(watermark, 10))
}
