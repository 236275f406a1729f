package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/chirino/conversation-cache/internal/model"
)

// ScanCache caches full Scan results keyed by the requested page set. Entries
// live under a generation; Invalidate moves to a new generation, so a result
// read from the store before a write can only be stored under a generation
// nobody reads any more.
type ScanCache interface {
	Available() bool
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, gen uint64, key string) ([]model.Conversation, bool, error)
	Set(ctx context.Context, gen uint64, key string, records []model.Conversation, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// ScanKey builds an order-insensitive key for a page restriction. The empty
// restriction is "*".
func ScanKey(pageIDs []string) string {
	if len(pageIDs) == 0 {
		return "*"
	}
	sorted := slices.Clone(pageIDs)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), ",")
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (ScanCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
