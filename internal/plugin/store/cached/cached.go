package cached

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/model"
	registrycache "github.com/chirino/conversation-cache/internal/registry/cache"
	"github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/security"
)

// Wrap returns a RecordStore whose Scan results are served from sc until the
// next write. When sc is unavailable inner is returned unchanged.
func Wrap(inner store.RecordStore, sc registrycache.ScanCache, ttl time.Duration) store.RecordStore {
	if sc == nil || !sc.Available() {
		return inner
	}
	return &cachedStore{RecordStore: inner, cache: sc, ttl: ttl}
}

type cachedStore struct {
	store.RecordStore
	cache registrycache.ScanCache
	ttl   time.Duration
}

// Scan pins the cache generation before reading the store. A write that
// lands during the read bumps the generation, so the result is stored where
// no later Scan looks.
func (c *cachedStore) Scan(ctx context.Context, pageIDs []string) ([]model.Conversation, error) {
	key := registrycache.ScanKey(pageIDs)
	gen, err := c.cache.Generation(ctx)
	if err != nil {
		log.Warn("Scan cache generation read failed", "err", err)
		return c.RecordStore.Scan(ctx, pageIDs)
	}
	records, ok, err := c.cache.Get(ctx, gen, key)
	if err != nil {
		log.Warn("Scan cache read failed", "key", key, "err", err)
	} else if ok {
		security.Inc(security.CacheHitsTotal)
		return records, nil
	}
	security.Inc(security.CacheMissesTotal)

	records, err = c.RecordStore.Scan(ctx, pageIDs)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, gen, key, records, c.ttl); err != nil {
		log.Warn("Scan cache write failed", "key", key, "err", err)
	}
	return records, nil
}

func (c *cachedStore) BulkUpsert(ctx context.Context, records []model.Conversation) error {
	if err := c.RecordStore.BulkUpsert(ctx, records); err != nil {
		return err
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		log.Warn("Scan cache invalidation failed", "err", err)
	}
	return nil
}
