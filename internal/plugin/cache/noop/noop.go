// Package noop registers the "none" scan cache: every lookup misses and
// writes are discarded, so queries always read the store.
package noop

import (
	"context"
	"time"

	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name:   "none",
		Loader: func(context.Context) (cache.ScanCache, error) { return disabled{}, nil },
	})
}

type disabled struct{}

var _ cache.ScanCache = disabled{}

func (disabled) Available() bool { return false }

func (disabled) Generation(context.Context) (uint64, error) { return 0, nil }

func (disabled) Get(context.Context, uint64, string) ([]model.Conversation, bool, error) {
	return nil, false, nil
}

func (disabled) Set(context.Context, uint64, string, []model.Conversation, time.Duration) error {
	return nil
}

func (disabled) Invalidate(context.Context) error { return nil }
