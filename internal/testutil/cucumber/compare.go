package cucumber

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

func decodeJSON(label, text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s json is empty", label)
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("%s json is invalid: %w\n%s", label, err, text)
	}
	return v, nil
}

func pretty(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}

func diff(want, got string) string {
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	return out
}

// expectEqual fails unless got and the expanded want are the same document.
func (s *Scenario) expectEqual(got any, wantText string) error {
	wantText, err := s.Expand(wantText)
	if err != nil {
		return err
	}
	want, err := decodeJSON("expected", wantText)
	if err != nil {
		return err
	}
	if reflect.DeepEqual(want, got) {
		return nil
	}
	return fmt.Errorf("json mismatch:\n%s", diff(pretty(want), pretty(got)))
}

// expectSubset fails unless every object member in want is present in got
// with an equal value. Arrays are compared element by element and must have
// the same length.
func (s *Scenario) expectSubset(got any, wantText string) error {
	wantText, err := s.Expand(wantText)
	if err != nil {
		return err
	}
	want, err := decodeJSON("expected", wantText)
	if err != nil {
		return err
	}
	if err := subset(want, got, "$"); err != nil {
		return fmt.Errorf("%w\nwant (subset):\n%s\ngot:\n%s", err, pretty(want), pretty(got))
	}
	return nil
}

func subset(want, got any, at string) error {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: want an object, got %T", at, got)
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok {
				return fmt.Errorf("%s: no member %q", at, k)
			}
			if err := subset(wv, gv, at+"."+k); err != nil {
				return err
			}
		}
		return nil
	case []any:
		g, ok := got.([]any)
		if !ok {
			return fmt.Errorf("%s: want an array, got %T", at, got)
		}
		if len(w) != len(g) {
			return fmt.Errorf("%s: want %d elements, got %d", at, len(w), len(g))
		}
		for i := range w {
			if err := subset(w[i], g[i], fmt.Sprintf("%s[%d]", at, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if !reflect.DeepEqual(want, got) {
		return fmt.Errorf("%s: want %v, got %v", at, want, got)
	}
	return nil
}
