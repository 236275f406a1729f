package cucumber

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// Expand substitutes every ${name} in text.
func (s *Scenario) Expand(text string) (string, error) {
	var firstErr error
	out := os.Expand(text, func(name string) string {
		v, err := s.Lookup(name)
		if err == nil {
			var str string
			if str, err = Format(v); err == nil {
				return str
			}
		}
		if firstErr == nil {
			firstErr = err
		}
		return ""
	})
	return out, firstErr
}

// Lookup resolves a placeholder name to its value.
func (s *Scenario) Lookup(name string) (any, error) {
	name = strings.TrimSpace(name)
	root, path, _ := strings.Cut(name, ".")
	if i := strings.IndexByte(root, '['); i > 0 {
		root, path = root[:i], root[i:]+prefixDot(path)
	}

	var value any
	if root == "response" {
		doc, err := s.Document()
		if err != nil {
			return nil, err
		}
		value = doc
	} else {
		v, ok := s.Vars[root]
		if !ok {
			return nil, fmt.Errorf("variable ${%s} is not defined", root)
		}
		value = v
	}
	if path == "" {
		return value, nil
	}
	v, ok, err := Query("."+path, value)
	if err != nil {
		return nil, fmt.Errorf("${%s}: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("${%s} selected nothing", name)
	}
	return v, nil
}

func prefixDot(path string) string {
	if path == "" {
		return ""
	}
	return "." + path
}

// Query evaluates a jq expression and returns its first output.
func Query(expr string, doc any) (any, bool, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %q: %w", expr, err)
	}
	iter := q.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, false, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, false, err
	}
	return v, true, nil
}

// Format renders a value the way it is substituted into step text: strings
// as-is, numbers without trailing zeros, everything else as compact JSON.
func Format(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
