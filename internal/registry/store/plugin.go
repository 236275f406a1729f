package store

import (
	"context"
	"fmt"

	"github.com/chirino/conversation-cache/internal/model"
)

// RecordStore is the persistent table of conversations plus the single-row
// watermark meta table. Every write is an upsert keyed by Conversation.ID.
type RecordStore interface {
	// Get returns the record for id, or nil when it does not exist.
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// BulkGet returns one entry per id in the same order, nil for missing ids.
	BulkGet(ctx context.Context, ids []string) ([]*model.Conversation, error)
	// BulkUpsert writes all records atomically. When the same id appears more
	// than once, the later entry wins.
	BulkUpsert(ctx context.Context, records []model.Conversation) error
	// Scan materializes every record, restricted to pageIDs when non-empty.
	Scan(ctx context.Context, pageIDs []string) ([]model.Conversation, error)

	GetWatermark(ctx context.Context) (int64, error)
	SetWatermark(ctx context.Context, watermark int64) error

	Close() error
}

// Loader creates a RecordStore from config.
type Loader func(ctx context.Context) (RecordStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}

// DedupeLastWins drops earlier duplicates of an id, keeping the last occurrence
// at the position of its first appearance.
func DedupeLastWins(records []model.Conversation) []model.Conversation {
	index := make(map[string]int, len(records))
	out := make([]model.Conversation, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
