package conversations

import (
	"errors"
	"net/http"

	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/query"
	registryroute "github.com/chirino/conversation-cache/internal/registry/route"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "conversations",
		Order: 100,
		Loader: func(r gin.IRouter, svc *registryroute.Services) error {
			if svc.Adapter == nil {
				return errors.New("conversation routes need an adapter")
			}
			MountRoutes(r, svc.Adapter, svc.Engine)
			return nil
		},
	})
}

// MountRoutes mounts the conversation query routes. The single-record route
// needs a local engine and is omitted when engine is nil.
func MountRoutes(r gin.IRouter, a *adapter.Adapter, engine *query.Engine) {
	g := r.Group("/v1")

	g.POST("/conversations/query", func(c *gin.Context) {
		queryConversations(c, a)
	})
	if engine != nil {
		g.GET("/conversations/:id", func(c *gin.Context) {
			getConversation(c, engine)
		})
	}
}

func queryConversations(c *gin.Context, a *adapter.Adapter) {
	var req adapter.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	resp, err := a.FetchConversations(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func getConversation(c *gin.Context, engine *query.Engine) {
	conv, err := engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var unavailable *registrystore.UnavailableError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "unavailable", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
