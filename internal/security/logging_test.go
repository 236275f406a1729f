package security

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Default()
	logger := log.NewWithOptions(&buf, log.Options{Formatter: log.JSONFormatter, Level: log.DebugLevel})
	log.SetDefault(logger)
	t.Cleanup(func() { log.SetDefault(prev) })
	return &buf
}

func newAccessLogRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AccessLogMiddleware("/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/conversations/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	return r
}

func TestAccessLogRecordsRouteAndLevel(t *testing.T) {
	buf := captureLog(t)
	r := newAccessLogRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conversations/p1_a", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "/v1/conversations/:id", line["route"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), line["requestId"])
}

func TestAccessLogKeepsInboundRequestID(t *testing.T) {
	captureLog(t)
	r := newAccessLogRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/p1_a", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestAccessLogSkipsPaths(t *testing.T) {
	buf := captureLog(t)
	r := newAccessLogRouter()

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())
}
