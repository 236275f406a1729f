package conversations_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/plugin/route/conversations"
	"github.com/chirino/conversation-cache/internal/plugin/store/memory"
	"github.com/chirino/conversation-cache/internal/query"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, records ...model.Conversation) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := memory.New()
	require.NoError(t, s.BulkUpsert(context.Background(), records))
	engine := query.NewEngine(s)
	cfg := config.DefaultConfig()
	a, err := adapter.New(&cfg, engine)
	require.NoError(t, err)

	r := gin.New()
	conversations.MountRoutes(r, a, engine)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQueryRoute(t *testing.T) {
	r := newServer(t,
		model.Conversation{ID: "p_a", PageID: "p", ClientID: "a"},
		model.Conversation{ID: "p_b", PageID: "p", ClientID: "b", UnreadCount: 2},
		model.Conversation{ID: "p_c", PageID: "p", ClientID: "c", UnreadCount: 1},
	)

	w := do(r, http.MethodPost, "/v1/conversations/query", map[string]any{
		"pageIds": []string{"p"},
		"filter":  map[string]any{"unreadMessage": true},
		"limit":   1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp adapter.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "p_b", resp.Conversations[0].ID)
	require.NotNil(t, resp.NextCursor)

	w = do(r, http.MethodPost, "/v1/conversations/query", map[string]any{
		"filter": map[string]any{"unreadMessage": true},
		"limit":  1,
		"cursor": *resp.NextCursor,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = adapter.Response{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "p_c", resp.Conversations[0].ID)
	assert.Nil(t, resp.NextCursor)
}

func TestQueryRouteValidation(t *testing.T) {
	r := newServer(t)

	w := do(r, http.MethodPost, "/v1/conversations/query", map[string]any{"limit": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"limit"`)

	w = do(r, http.MethodPost, "/v1/conversations/query", map[string]any{"sort": "alphabetical"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/query", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationRoute(t *testing.T) {
	r := newServer(t, model.Conversation{ID: "p_a", PageID: "p", ClientID: "a", ClientName: model.Ptr("Ann")})

	w := do(r, http.MethodGet, "/v1/conversations/p_a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var c model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "Ann", *c.ClientName)

	w = do(r, http.MethodGet, "/v1/conversations/p_zz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
