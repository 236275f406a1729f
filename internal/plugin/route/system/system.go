package system

import (
	"context"
	"net/http"
	"time"

	registryroute "github.com/chirino/conversation-cache/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const probeTimeout = 2 * time.Second

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:    "system",
		Surface: registryroute.SurfaceManagement,
		Loader:  mount,
	})
}

func mount(r gin.IRouter, svc *registryroute.Services) error {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		ready(c, svc)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}

// ready answers 503 until the server has started, then 503 whenever the
// store probe fails.
func ready(c *gin.Context, svc *registryroute.Services) {
	if !svc.Started.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	if svc.Probe != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()
		if err := svc.Probe(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
