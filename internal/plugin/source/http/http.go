package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/chirino/conversation-cache/internal/config"
	registrysource "github.com/chirino/conversation-cache/internal/registry/source"
)

func init() {
	registrysource.Register(registrysource.Plugin{
		Name:    "http",
		Schemes: []string{"http", "https"},
		Loader: func(ctx context.Context) (registrysource.Source, error) {
			cfg := config.FromContext(ctx)
			return &httpSource{client: &http.Client{Timeout: cfg.SnapshotFetchTimeout}}, nil
		},
	})
}

type httpSource struct {
	client *http.Client
}

func (s *httpSource) Open(ctx context.Context, location *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", location.Redacted(), resp.Status)
	}
	return resp.Body, nil
}
