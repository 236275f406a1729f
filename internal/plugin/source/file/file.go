package file

import (
	"context"
	"io"
	"net/url"
	"os"

	registrysource "github.com/chirino/conversation-cache/internal/registry/source"
)

func init() {
	registrysource.Register(registrysource.Plugin{
		Name:    "file",
		Schemes: []string{"file"},
		Loader: func(ctx context.Context) (registrysource.Source, error) {
			return fileSource{}, nil
		},
	})
}

type fileSource struct{}

func (fileSource) Open(_ context.Context, location *url.URL) (io.ReadCloser, error) {
	path := location.Path
	if path == "" {
		path = location.Opaque
	}
	return os.Open(path)
}
