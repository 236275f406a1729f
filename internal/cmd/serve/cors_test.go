package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCORSRouter(origins string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(origins))
	router.POST("/v1/conversations/query", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func send(router http.Handler, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/conversations/query", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCORSPolicy(t *testing.T) {
	open := newCORSPolicy("")
	assert.True(t, open.allows("https://anything.example"))
	assert.False(t, open.allows(""))

	listed := newCORSPolicy(" https://inbox.example.com/ , https://admin.example.com")
	assert.True(t, listed.allows("https://inbox.example.com"))
	assert.True(t, listed.allows("https://admin.example.com"))
	assert.False(t, listed.allows("https://evil.example.org"))

	assert.True(t, newCORSPolicy("https://inbox.example.com,*").allows("https://other.example"))
}

func TestCORSMiddleware_EchoesAllowedOrigin(t *testing.T) {
	rec := send(newCORSRouter("https://inbox.example.com"), http.MethodPost, "https://inbox.example.com")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://inbox.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSMiddleware_AnswersPreflight(t *testing.T) {
	rec := send(newCORSRouter(""), http.MethodOptions, "https://inbox.example.com")

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://inbox.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSMiddleware_RejectsPreflightFromUnknownOrigin(t *testing.T) {
	rec := send(newCORSRouter("https://inbox.example.com"), http.MethodOptions, "https://evil.example.org")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PassesThroughUnknownOrigin(t *testing.T) {
	rec := send(newCORSRouter("https://inbox.example.com"), http.MethodPost, "https://evil.example.org")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
