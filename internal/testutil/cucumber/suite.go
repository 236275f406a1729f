// Package cucumber runs godog feature files against a live HTTP server.
//
// Step text may reference ${name} placeholders. A name resolves to a scenario
// variable, or to the last response body when it starts with "response".
// Dotted suffixes are evaluated as jq paths, so ${response.items[0].id} and
// ${cursor} both work.
package cucumber

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

// Store is the backing datastore of the server under test. It is wiped
// before each scenario.
type Store interface {
	ClearAll(ctx context.Context) error
}

// Suite is shared by every scenario of one godog run.
type Suite struct {
	BaseURL  string
	T        *testing.T
	Store    Store
	Fixtures map[string]any
}

func NewSuite(t *testing.T, baseURL string) *Suite {
	return &Suite{BaseURL: baseURL, T: t, Fixtures: map[string]any{}}
}

// Scenario carries the state of one running scenario.
type Scenario struct {
	Suite  *Suite
	Prefix string
	Vars   map[string]any

	last *exchange
}

var registrations []func(*godog.ScenarioContext, *Scenario)

// Register adds a step group. Call it from init.
func Register(fn func(*godog.ScenarioContext, *Scenario)) {
	registrations = append(registrations, fn)
}

func (s *Suite) initScenario(ctx *godog.ScenarioContext) {
	sc := &Scenario{Suite: s, Vars: map[string]any{}}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		if s.Store == nil {
			return ctx, nil
		}
		return ctx, s.Store.ClearAll(ctx)
	})
	for _, fn := range registrations {
		fn(ctx, sc)
	}
}

// Run executes the feature files at paths and reports whether they all passed.
// Output is junit XML under $GODOG_REPORT_DIR when that is set.
func (s *Suite) Run(name string, paths ...string) bool {
	opts := godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       paths,
		Randomize:   time.Now().UnixNano(),
		Concurrency: 1,
		TestingT:    s.T,
	}
	if testing.Verbose() {
		opts.Format = "pretty"
	}
	if dir := os.Getenv("GODOG_REPORT_DIR"); dir != "" {
		if f, err := createReport(dir, s.T.Name()); err == nil {
			defer f.Close()
			opts.Output = f
			opts.Format = "junit"
		} else {
			s.T.Logf("junit report disabled: %v", err)
		}
	}
	return godog.TestSuite{
		Name:                name,
		Options:             &opts,
		ScenarioInitializer: s.initScenario,
	}.Run() == 0
}

func createReport(dir, testName string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(dir, strings.ReplaceAll(testName, "/", "-")+".xml"))
}
