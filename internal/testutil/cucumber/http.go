package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

var client = &http.Client{Timeout: 30 * time.Second}

// exchange is the last request/response pair of a scenario.
type exchange struct {
	method string
	url    string
	status int
	header http.Header
	body   []byte

	doc    any
	docErr error
	parsed bool
}

func (e *exchange) document() (any, error) {
	if !e.parsed {
		e.parsed = true
		if len(e.body) == 0 {
			e.docErr = fmt.Errorf("%s %s returned an empty body", e.method, e.url)
		} else if err := json.Unmarshal(e.body, &e.doc); err != nil {
			e.docErr = fmt.Errorf("%s %s returned invalid json: %w\n%s", e.method, e.url, err, e.body)
		}
	}
	return e.doc, e.docErr
}

func init() {
	Register(func(ctx *godog.ScenarioContext, s *Scenario) {
		ctx.Step(`^the path prefix is "([^"]*)"$`, func(prefix string) error {
			s.Prefix = prefix
			return nil
		})
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH|OPTIONS) path "([^"]*)"$`, func(ctx context.Context, method, path string) error {
			return s.Do(ctx, method, path, "")
		})
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH|OPTIONS) path "([^"]*)" with json body:$`, func(ctx context.Context, method, path string, body *godog.DocString) error {
			expanded, err := s.Expand(body.Content)
			if err != nil {
				return err
			}
			return s.Do(ctx, method, path, expanded)
		})

		ctx.Step(`^the response code should be (\d+)$`, s.statusShouldBe)
		ctx.Step(`^the response should match json:$`, func(want *godog.DocString) error {
			return s.withDocument(func(doc any) error { return s.expectEqual(doc, want.Content) })
		})
		ctx.Step(`^the response should contain json:$`, func(want *godog.DocString) error {
			return s.withDocument(func(doc any) error { return s.expectSubset(doc, want.Content) })
		})
		ctx.Step(`^the response should contain "([^"]*)"$`, s.bodyShouldContain)

		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, func(expr, name string) error {
			v, err := s.selectResponse(expr)
			if err != nil {
				return err
			}
			s.Vars[name] = v
			return nil
		})
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.selectionShouldBe)
		ctx.Step(`^the "([^"]*)" selection from the response should match json:$`, func(expr string, want *godog.DocString) error {
			v, err := s.selectResponse(expr)
			if err != nil {
				return err
			}
			return s.expectEqual(v, want.Content)
		})
		ctx.Step(`^\${([^}]*)} is not empty$`, s.shouldNotBeEmpty)
	})
}

// Do sends a request and records the response as the scenario's last
// exchange. Relative paths are joined to the suite base URL and the current
// path prefix; absolute URLs are used untouched.
func (s *Scenario) Do(ctx context.Context, method, path, body string) error {
	path, err := s.Expand(path)
	if err != nil {
		return err
	}
	target := path
	if !strings.Contains(path, "://") {
		target = s.Suite.BaseURL + s.Prefix + path
	}
	s.last = nil

	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, target, err)
	}
	s.last = &exchange{method: method, url: target, status: resp.StatusCode, header: resp.Header, body: data}
	return nil
}

// Body returns the last response body, or nil before any request.
func (s *Scenario) Body() []byte {
	if s.last == nil {
		return nil
	}
	return s.last.body
}

// Document returns the last response body decoded as JSON.
func (s *Scenario) Document() (any, error) {
	if s.last == nil {
		return nil, fmt.Errorf("no request has been sent yet")
	}
	return s.last.document()
}

func (s *Scenario) withDocument(fn func(doc any) error) error {
	doc, err := s.Document()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *Scenario) statusShouldBe(want int) error {
	if s.last == nil {
		return fmt.Errorf("no request has been sent yet")
	}
	if s.last.status != want {
		return fmt.Errorf("%s %s: status %d, want %d\n%s", s.last.method, s.last.url, s.last.status, want, s.last.body)
	}
	return nil
}

func (s *Scenario) bodyShouldContain(text string) error {
	text, err := s.Expand(text)
	if err != nil {
		return err
	}
	if body := s.Body(); !strings.Contains(string(body), text) {
		return fmt.Errorf("response does not contain %q:\n%s", text, body)
	}
	return nil
}

func (s *Scenario) selectResponse(expr string) (any, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	v, ok, err := Query(expr, doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%q selected nothing from:\n%s", expr, s.Body())
	}
	return v, nil
}

func (s *Scenario) selectionShouldBe(expr, want string) error {
	v, err := s.selectResponse(expr)
	if err != nil {
		return err
	}
	if want, err = s.Expand(want); err != nil {
		return err
	}
	got := "null"
	if v != nil {
		if got, err = Format(v); err != nil {
			return err
		}
	}
	if got != want {
		return fmt.Errorf("%q selected %s, want %s", expr, got, want)
	}
	return nil
}

func (s *Scenario) shouldNotBeEmpty(name string) error {
	v, err := s.Lookup(name)
	if err != nil {
		return err
	}
	if v == nil || v == "" {
		return fmt.Errorf("${%s} is empty", name)
	}
	return nil
}
