package route_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	registryroute "github.com/chirino/conversation-cache/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountOrdersBySurfaceThenOrder(t *testing.T) {
	var mounted []string
	record := func(name string) registryroute.Loader {
		return func(r gin.IRouter, _ *registryroute.Services) error {
			mounted = append(mounted, name)
			r.GET("/"+name, func(c *gin.Context) { c.Status(http.StatusNoContent) })
			return nil
		}
	}
	registryroute.Register(registryroute.Plugin{Name: "test-late", Order: 9001, Surface: registryroute.SurfaceManagement, Loader: record("late")})
	registryroute.Register(registryroute.Plugin{Name: "test-early", Order: 9000, Surface: registryroute.SurfaceManagement, Loader: record("early")})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, registryroute.Mount(r, registryroute.SurfaceManagement, &registryroute.Services{}))

	require.GreaterOrEqual(t, len(mounted), 2)
	assert.Equal(t, []string{"early", "late"}, mounted[len(mounted)-2:])

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMountReportsFailingPlugin(t *testing.T) {
	registryroute.Register(registryroute.Plugin{
		Name:    "broken",
		Surface: registryroute.Surface(42),
		Loader: func(gin.IRouter, *registryroute.Services) error {
			return errors.New("boom")
		},
	})

	err := registryroute.Mount(gin.New(), registryroute.Surface(42), &registryroute.Services{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
	assert.Contains(t, err.Error(), "boom")
}
