package query

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/stretchr/testify/require"
)

func seededConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "cache.db")

	ctx := config.WithContext(context.Background(), &cfg)
	store, err := cmdutil.OpenStore(ctx, &cfg)
	require.NoError(t, err)
	defer store.Close()

	_, err = merge.NewMerger(store).MergeBatch(ctx, []model.RawRecord{
		{"pageId": "p", "clientId": "a", "unreadCount": 0, "lastMessageTime": 30, "labelIds": []any{"l1"}},
		{"pageId": "p", "clientId": "b", "unreadCount": 2, "lastMessageTime": 10},
		{"pageId": "p", "clientId": "c", "unreadCount": 1, "lastMessageTime": 20, "labelIds": []any{"l1"}},
	})
	require.NoError(t, err)
	return &cfg
}

func TestQueryPrintsResponse(t *testing.T) {
	cfg := seededConfig(t)
	var out bytes.Buffer
	ctx := config.WithContext(context.Background(), cfg)

	require.NoError(t, run(ctx, cfg, options{Filter: `{"labelIds":["l1"]}`, PageIDs: []string{"p"}}, &out))

	var resp adapter.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Conversations, 2)
	require.Equal(t, "p_c", resp.Conversations[0].ID)
	require.Equal(t, "p_a", resp.Conversations[1].ID)
}

func TestQueryAppliesJQ(t *testing.T) {
	cfg := seededConfig(t)
	var out bytes.Buffer
	ctx := config.WithContext(context.Background(), cfg)

	require.NoError(t, run(ctx, cfg, options{JQ: ".conversations[].id"}, &out))
	require.Equal(t, []string{`"p_b"`, `"p_c"`, `"p_a"`}, strings.Fields(out.String()))
}

func TestQueryRejectsBadInput(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)

	require.ErrorContains(t, run(ctx, &cfg, options{Filter: "{"}, &bytes.Buffer{}), "invalid --filter")
	require.ErrorContains(t, run(ctx, &cfg, options{JQ: ".["}, &bytes.Buffer{}), "invalid --jq")
}
