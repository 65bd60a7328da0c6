package cucumber

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// Expand replaces every ${expr} in value with the string form of Resolve(expr).
func (s *TestScenario) Expand(value string) (string, error) {
	var firstErr error
	out := os.Expand(value, func(expr string) string {
		v, err := s.Resolve(expr)
		if err == nil {
			var str string
			if str, err = toString(v); err == nil {
				return str
			}
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("${%s}: %w", expr, err)
		}
		return ""
	})
	return out, firstErr
}

// Resolve evaluates an expression of the form `path | pipe | pipe`.
//
// The path is a jq path whose root is either "response" (the last response
// body of the current user) or a scenario variable, e.g. response.id,
// response[0].members, chat.id. A double-quoted literal may stand in for the
// path so pipes can be applied to constants.
func (s *TestScenario) Resolve(expr string) (any, error) {
	parts := strings.Split(expr, "|")
	path := strings.TrimSpace(parts[0])
	value, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	for _, p := range parts[1:] {
		name := strings.TrimSpace(p)
		pipe, ok := pipes[name]
		if !ok {
			return nil, fmt.Errorf("unknown pipe %q", name)
		}
		if value, err = pipe(value); err != nil {
			return nil, fmt.Errorf("pipe %s: %w", name, err)
		}
	}
	return value, nil
}

func (s *TestScenario) lookup(path string) (any, error) {
	if unquoted, err := strconv.Unquote(path); err == nil && strings.HasPrefix(path, `"`) {
		return unquoted, nil
	}
	root := path
	if i := strings.IndexAny(path, ".["); i >= 0 {
		root = path[:i]
	}

	var doc any
	if root == "response" {
		body, err := s.Session().RespJSON()
		if err != nil {
			return nil, err
		}
		doc = body
	} else {
		v, ok := s.Variables[root]
		if !ok {
			return nil, fmt.Errorf("variable %q not defined yet", root)
		}
		if root == path {
			return v, nil
		}
		var err error
		if doc, err = jsonCompatible(v); err != nil {
			return nil, err
		}
	}
	if root == path {
		return doc, nil
	}

	rest := path[len(root):]
	if strings.HasPrefix(rest, "[") {
		rest = "." + rest
	}
	query, err := gojq.Parse(rest)
	if err != nil {
		return nil, err
	}
	result, ok := query.Run(doc).Next()
	if !ok {
		return nil, fmt.Errorf("%s selects nothing", path)
	}
	if err, isErr := result.(error); isErr {
		return nil, err
	}
	return result, nil
}

// jsonCompatible converts typed values into the generic maps and slices gojq
// understands. Containers always round-trip through JSON since a map[string]any
// may still hold typed slices such as []string.
func jsonCompatible(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, int, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	return out, json.Unmarshal(data, &out)
}

func toString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	return string(data), err
}

var pipes = map[string]func(any) (any, error){
	"json": func(v any) (any, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		return string(data), err
	},
	"json_escape": func(v any) (any, error) {
		data, err := json.Marshal(fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		return string(data[1 : len(data)-1]), nil
	},
	"string": func(v any) (any, error) {
		return fmt.Sprint(v), nil
	},
}
