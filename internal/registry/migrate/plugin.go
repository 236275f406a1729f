package migrate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/config"
)

// Migrator creates the current schema for one datastore kind.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context, cfg *config.Config) error
}

// Plugin binds a migrator to the datastore kind it prepares. Plugins for
// the same kind run in ascending Order.
type Plugin struct {
	Store    string
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// For returns the plugins registered for a datastore kind in run order.
func For(store string) []Plugin {
	var out []Plugin
	for _, p := range plugins {
		if p.Store == store {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b Plugin) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// RunAll runs the migrators for the configured datastore kind, stopping at
// the first failure. It does nothing unless DatastoreMigrateAtStart is set.
func RunAll(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return errors.New("migrate: no config in context")
	}
	if !cfg.DatastoreMigrateAtStart {
		log.Debug("Skipping migrations", "db", cfg.DatastoreType)
		return nil
	}

	for _, p := range For(cfg.DatastoreType) {
		start := time.Now()
		log.Info("Running migration", "name", p.Migrator.Name())
		if err := p.Migrator.Migrate(ctx, cfg); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
		log.Info("Migration complete", "name", p.Migrator.Name(), "duration", time.Since(start))
	}
	return nil
}
