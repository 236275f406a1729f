package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Source opens a snapshot archive by location.
type Source interface {
	Open(ctx context.Context, location *url.URL) (io.ReadCloser, error)
}

// Loader creates a Source from config.
type Loader func(ctx context.Context) (Source, error)

// Plugin represents a snapshot source plugin serving one or more URL schemes.
type Plugin struct {
	Name    string
	Schemes []string
	Loader  Loader
}

var plugins []Plugin

// Register adds a source plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered source plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Parse turns a location into a URL. Bare paths become file URLs.
func Parse(location string) (*url.URL, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("empty snapshot location")
	}
	u, err := url.Parse(location)
	// Single-letter schemes are Windows drive letters.
	if err != nil || len(u.Scheme) <= 1 {
		return &url.URL{Scheme: "file", Path: location}, nil
	}
	return u, nil
}

// ForScheme returns the loader for the plugin serving scheme.
func ForScheme(scheme string) (Loader, error) {
	scheme = strings.ToLower(scheme)
	for _, p := range plugins {
		for _, s := range p.Schemes {
			if s == scheme {
				return p.Loader, nil
			}
		}
	}
	return nil, fmt.Errorf("no snapshot source for scheme %q; valid: %v", scheme, Names())
}
