package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/v1/sync/batch", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/batch", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/sync/batch", strings.NewReader("012"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", rec.Body.String())
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func TestStartServer_SnapshotThenQuery(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.jsonl")
	require.NoError(t, os.WriteFile(snapshotPath, []byte(
		`{"pageId":"p1","clientId":"a","unreadCount":0,"lastMessageTime":100}`+"\n"+
			`{"pageId":"p1","clientId":"b","unreadCount":4,"lastMessageTime":50}`+"\n"), 0o600))

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "memory"
	cfg.Listener.Port = 0
	cfg.TempDir = dir
	cfg.SnapshotURL = snapshotPath
	cfg.SnapshotInterval = 0

	ctx := config.WithContext(context.Background(), &cfg)
	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Main.Port)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/sync/watermark")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Watermark int64 `json:"watermark"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && body.Watermark == 100
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/v1/conversations/query", "application/json", bytes.NewBufferString(`{"pageIds":["p1"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page adapter.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Conversations, 2)
	require.Equal(t, "p1_b", page.Conversations[0].ID)
	require.Equal(t, "p1_a", page.Conversations[1].ID)
}
