package ingestion

import (
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/realtime"
	registryroute "github.com/chirino/conversation-cache/internal/registry/route"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/snapshot"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "ingestion",
		Order: 110,
		Loader: func(r gin.IRouter, svc *registryroute.Services) error {
			// Remote adapter mode has no local store to ingest into.
			if svc.Merger == nil {
				return nil
			}
			MountRoutes(r, svc.Merger, svc.Ingestor)
			return nil
		},
	})
}

// MountRoutes mounts the ingestion routes: batch merge, snapshot ingest,
// watermark read and realtime message events.
func MountRoutes(r gin.IRouter, merger *merge.Merger, ingestor *snapshot.Ingestor) {
	g := r.Group("/v1")

	g.POST("/sync/batch", func(c *gin.Context) {
		mergeBatch(c, merger)
	})
	g.POST("/sync/snapshot", func(c *gin.Context) {
		ingestSnapshot(c, ingestor)
	})
	g.GET("/sync/watermark", func(c *gin.Context) {
		getWatermark(c, merger)
	})
	g.POST("/events/message", func(c *gin.Context) {
		applyMessageEvent(c, merger)
	})
}

func mergeBatch(c *gin.Context, merger *merge.Merger) {
	var raws []model.RawRecord
	if err := c.ShouldBindJSON(&raws); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	result, err := merger.MergeBatch(c.Request.Context(), raws)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type snapshotRequest struct {
	Location string `json:"location"`
}

func ingestSnapshot(c *gin.Context, ingestor *snapshot.Ingestor) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	var (
		result *snapshot.Result
		err    error
	)
	if req.Location == "" {
		result, err = ingestor.Sync(c.Request.Context())
	} else {
		result, err = ingestor.Ingest(c.Request.Context(), req.Location)
	}
	var fetchErr *snapshot.SourceFetchError
	if errors.As(err, &fetchErr) && result != nil {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getWatermark(c *gin.Context, merger *merge.Merger) {
	wm, err := merger.Watermark(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watermark": wm})
}

func applyMessageEvent(c *gin.Context, merger *merge.Merger) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	ev, err := realtime.DecodeEvent(body)
	if err != nil {
		handleError(c, err)
		return
	}
	result, err := merger.ApplyMessageEvent(c.Request.Context(), ev)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func handleError(c *gin.Context, err error) {
	var validation *registrystore.ValidationError
	var unavailable *registrystore.UnavailableError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "unavailable", "error": err.Error()})
	default:
		log.Error("Sync request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
