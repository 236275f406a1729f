package local

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/model"
	registrycache "github.com/chirino/conversation-cache/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.ScanCache, error) {
			cfg := config.FromContext(ctx)
			return New(cfg.CacheMaxEntries, cfg.CacheTTL)
		},
	})
}

// New creates an in-process cache holding at most maxEntries scan results.
func New(maxEntries int64, ttl time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []model.Conversation]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

// Cache is a ristretto-backed ScanCache. Each entry costs 1. Keys carry the
// generation, so entries written under an older generation are never read.
type Cache struct {
	cache *ristretto.Cache[string, []model.Conversation]
	ttl   time.Duration
	gen   atomic.Uint64
}

func entryKey(gen uint64, key string) string {
	return strconv.FormatUint(gen, 10) + ":" + key
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Generation(context.Context) (uint64, error) {
	return c.gen.Load(), nil
}

func (c *Cache) Get(_ context.Context, gen uint64, key string) ([]model.Conversation, bool, error) {
	if gen != c.gen.Load() {
		return nil, false, nil
	}
	v, ok := c.cache.Get(entryKey(gen, key))
	return v, ok, nil
}

func (c *Cache) Set(_ context.Context, gen uint64, key string, records []model.Conversation, ttl time.Duration) error {
	if gen != c.gen.Load() {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(entryKey(gen, key), records, 1, ttl)
	c.cache.Wait()
	return nil
}

// Invalidate starts a new generation and drops the old entries.
func (c *Cache) Invalidate(_ context.Context) error {
	c.gen.Add(1)
	c.cache.Clear()
	return nil
}

// Close stops ristretto's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}

var _ registrycache.ScanCache = (*Cache)(nil)
