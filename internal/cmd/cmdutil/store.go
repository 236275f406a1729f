package cmdutil

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/config"
	storecached "github.com/chirino/conversation-cache/internal/plugin/store/cached"
	storemetrics "github.com/chirino/conversation-cache/internal/plugin/store/metrics"
	registrycache "github.com/chirino/conversation-cache/internal/registry/cache"
	registrymigrate "github.com/chirino/conversation-cache/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/security"

	// Plugins register themselves in init().
	_ "github.com/chirino/conversation-cache/internal/plugin/cache/local"
	_ "github.com/chirino/conversation-cache/internal/plugin/cache/noop"
	_ "github.com/chirino/conversation-cache/internal/plugin/cache/redis"
	_ "github.com/chirino/conversation-cache/internal/plugin/source/file"
	_ "github.com/chirino/conversation-cache/internal/plugin/source/http"
	_ "github.com/chirino/conversation-cache/internal/plugin/source/s3"
	_ "github.com/chirino/conversation-cache/internal/plugin/store/memory"
	_ "github.com/chirino/conversation-cache/internal/plugin/store/mongo"
	_ "github.com/chirino/conversation-cache/internal/plugin/store/postgres"
	_ "github.com/chirino/conversation-cache/internal/plugin/store/sqlite"
)

// InitMetrics registers the Prometheus collectors with the configured
// constant labels.
func InitMetrics(cfg *config.Config) error {
	labels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(labels)
	return nil
}

// OpenStore runs migrations, then loads the configured record store wrapped
// with latency metrics and, when the cache backend is reachable, the scan
// cache. ctx must carry cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (registrystore.RecordStore, error) {
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
		return store, nil
	}
	scanCache, err := cacheLoader(ctx)
	if err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		return store, nil
	}
	return storecached.Wrap(store, scanCache, cfg.CacheTTL), nil
}
