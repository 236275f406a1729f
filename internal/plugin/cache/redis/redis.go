package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/model"
	registrycache "github.com/chirino/conversation-cache/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 5 * time.Minute
	generationKey = "conv-scan:gen"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ScanCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CONVERSATION_CACHE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURL creates a ScanCache from a Redis URL.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (*ScanCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ScanCache{client: client, ttl: ttl}, nil
}

// ScanCache stores scan results under a generation-scoped key. Invalidate
// bumps the shared generation so every process using the same Redis stops
// seeing older entries at once; stale entries expire on their own TTL.
type ScanCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// Generation returns the shared generation, 0 before the first Invalidate.
func (c *ScanCache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.client.Get(ctx, generationKey).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

func scanKey(gen uint64, key string) string {
	return fmt.Sprintf("conv-scan:%d:%s", gen, key)
}

func (c *ScanCache) Available() bool {
	return true
}

func (c *ScanCache) Get(ctx context.Context, gen uint64, key string) ([]model.Conversation, bool, error) {
	data, err := c.client.Get(ctx, scanKey(gen, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var records []model.Conversation
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (c *ScanCache) Set(ctx context.Context, gen uint64, key string, records []model.Conversation, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, scanKey(gen, key), data, ttl).Err()
}

func (c *ScanCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

// Close releases the Redis connection pool.
func (c *ScanCache) Close() error {
	return c.client.Close()
}

var _ registrycache.ScanCache = (*ScanCache)(nil)
