package route

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/query"
	"github.com/chirino/conversation-cache/internal/snapshot"
	"github.com/gin-gonic/gin"
)

// Surface selects the listener a plugin's routes are mounted on.
type Surface int

const (
	// SurfaceAPI is the conversation API on the main listener.
	SurfaceAPI Surface = iota
	// SurfaceManagement holds health, readiness and metrics. It shares the
	// main listener unless a management port is configured.
	SurfaceManagement
)

func (s Surface) String() string {
	if s == SurfaceManagement {
		return "management"
	}
	return "api"
}

// Services are the handles routes are mounted against. A nil field means the
// server runs without that capability; remote adapter mode owns no store, so
// only Adapter is set.
type Services struct {
	Adapter  *adapter.Adapter
	Engine   *query.Engine
	Merger   *merge.Merger
	Ingestor *snapshot.Ingestor

	// Probe backs /ready once Started is set. Nil means always ready.
	Probe   func(ctx context.Context) error
	Started atomic.Bool
}

// Loader mounts one plugin's routes.
type Loader func(r gin.IRouter, svc *Services) error

// Plugin is a named group of routes mounted in ascending Order.
type Plugin struct {
	Name    string
	Order   int
	Surface Surface
	Loader  Loader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
}

// Plugins returns the plugins for a surface ordered by Order, then Name.
func Plugins(surface Surface) []Plugin {
	mu.Lock()
	defer mu.Unlock()
	var out []Plugin
	for _, p := range plugins {
		if p.Surface == surface {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b Plugin) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Name, b.Name))
	})
	return out
}

// Mount runs every loader registered for surface against r.
func Mount(r gin.IRouter, surface Surface, svc *Services) error {
	for _, p := range Plugins(surface) {
		if err := p.Loader(r, svc); err != nil {
			return fmt.Errorf("mount %s routes %q: %w", surface, p.Name, err)
		}
		log.Debug("Mounted routes", "plugin", p.Name, "surface", surface)
	}
	return nil
}
