package cucumber

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

func indentJSON(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}

func unifiedDiff(expected, actual string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return diff
}

// decodePair parses the actual body and the (optionally expanded) expected document.
func (s *TestScenario) decodePair(actual, expected string, expand bool) (got, want any, err error) {
	if err = json.Unmarshal([]byte(actual), &got); err != nil {
		return nil, nil, fmt.Errorf("actual is not json: %w\n%s", err, actual)
	}
	if expand {
		if expected, err = s.Expand(expected); err != nil {
			return nil, nil, err
		}
	}
	if strings.TrimSpace(expected) == "" {
		return nil, nil, fmt.Errorf("no expected json given; actual was:\n%s", indentJSON(got))
	}
	if err = json.Unmarshal([]byte(expected), &want); err != nil {
		return nil, nil, fmt.Errorf("expected is not json: %w\n%s", err, expected)
	}
	return got, want, nil
}

// JSONMustMatch requires actual and expected to be the same JSON document.
func (s *TestScenario) JSONMustMatch(actual, expected string, expand bool) error {
	got, want, err := s.decodePair(actual, expected, expand)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(want, got) {
		return fmt.Errorf("json mismatch:\n%s", unifiedDiff(indentJSON(want), indentJSON(got)))
	}
	return nil
}

// JSONMustContain requires every field of expected to be present in actual
// with an equal value. Arrays must have the same length and are compared
// element by element with the same rule.
func (s *TestScenario) JSONMustContain(actual, expected string, expand bool) error {
	got, want, err := s.decodePair(actual, expected, expand)
	if err != nil {
		return err
	}
	if msg := containsJSON(want, got, "$"); msg != "" {
		return fmt.Errorf("json does not contain expected fields: %s\nactual:\n%s", msg, indentJSON(got))
	}
	return nil
}

// containsJSON returns a description of the first difference, or "".
func containsJSON(want, got any, at string) string {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return fmt.Sprintf("%s: want object, got %s", at, indentJSON(got))
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok {
				return fmt.Sprintf("%s: missing %q", at, k)
			}
			if msg := containsJSON(wv, gv, at+"."+k); msg != "" {
				return msg
			}
		}
		return ""
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return fmt.Sprintf("%s: want %d element array, got %s", at, len(w), indentJSON(got))
		}
		for i := range w {
			if msg := containsJSON(w[i], g[i], fmt.Sprintf("%s[%d]", at, i)); msg != "" {
				return msg
			}
		}
		return ""
	default:
		if !reflect.DeepEqual(want, got) {
			return fmt.Sprintf("%s: want %s, got %s", at, indentJSON(want), indentJSON(got))
		}
		return ""
	}
}
