package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/plugin/cache/redis"
	"github.com/chirino/conversation-cache/internal/testutil/testredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationInvalidatesAcrossClients(t *testing.T) {
	ctx := context.Background()
	url := testredis.Start(t)

	a, err := redis.LoadFromURL(ctx, url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := redis.LoadFromURL(ctx, url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	gen, err := a.Generation(ctx)
	require.NoError(t, err)
	rows := []model.Conversation{{ID: "p_c", PageID: "p", ClientID: "c", LabelIDs: []string{"l"}}}
	require.NoError(t, a.Set(ctx, gen, "p", rows, 0))

	got, ok, err := b.Get(ctx, gen, "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, got)

	require.NoError(t, b.Invalidate(ctx))
	next, err := a.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	_, ok, err = a.Get(ctx, next, "p")
	require.NoError(t, err)
	assert.False(t, ok)

	// A scan that started before the invalidation stores under the old generation.
	require.NoError(t, a.Set(ctx, gen, "p", rows, 0))
	_, ok, err = b.Get(ctx, next, "p")
	require.NoError(t, err)
	assert.False(t, ok)
}
