// Package jsonpath queries JSON response bodies with a small JSONPath
// subset ($.a.b, $.a[0], $['a'], $[0]) translated to gjson syntax.
package jsonpath

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyBody is returned when the body to query is empty.
	ErrEmptyBody = errors.New("empty JSON body")
	// ErrInvalidJSON is returned when the body is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON body")
	// ErrNotFound is returned when a path matches nothing.
	ErrNotFound = errors.New("path not found")
)

// Extract returns the value at path as a string. Objects and arrays are
// returned as raw JSON, null as "null".
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyBody
	}
	if !gjson.ValidBytes(body) {
		return "", ErrInvalidJSON
	}
	gpath, err := Translate(path)
	if err != nil {
		return "", err
	}

	result := gjson.GetBytes(body, gpath)
	if !result.Exists() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	if result.IsObject() || result.IsArray() {
		return result.Raw, nil
	}
	return result.String(), nil
}

// Exists reports whether path matches a value in body.
func Exists(body []byte, path string) bool {
	gpath, err := Translate(path)
	if err != nil || !gjson.ValidBytes(body) {
		return false
	}
	return gjson.GetBytes(body, gpath).Exists()
}

// ExtractMultiple evaluates every named path. Values that resolved are returned
// even when others fail; the error lists the failures in name order.
func ExtractMultiple(body []byte, paths map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(paths))
	if len(paths) == 0 {
		return values, nil
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	for _, name := range names {
		value, err := Extract(body, paths[name])
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		values[name] = value
	}

	if len(failures) > 0 {
		return values, fmt.Errorf("extraction failed: %s", strings.Join(failures, "; "))
	}
	return values, nil
}

// Translate converts a JSONPath expression into a gjson path.
func Translate(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty JSONPath expression")
	}
	if !strings.HasPrefix(path, "$") {
		return "", fmt.Errorf("JSONPath must start with '$': %s", path)
	}

	rest := path[1:]
	var segments []string
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 {
				return "", fmt.Errorf("empty segment in %s", path)
			}
			segments = append(segments, escape(rest[:end]))
			rest = rest[end:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", fmt.Errorf("unclosed bracket in %s", path)
			}
			key := strings.Trim(rest[1:end], `'"`)
			if key == "" {
				return "", fmt.Errorf("empty bracket in %s", path)
			}
			if key == "*" {
				key = "#"
			} else if !isIndex(key) {
				key = escape(key)
			}
			segments = append(segments, key)
			rest = rest[end+1:]
		default:
			return "", fmt.Errorf("unexpected %q in %s", rest[0], path)
		}
	}

	if len(segments) == 0 {
		return "@this", nil
	}
	return strings.Join(segments, "."), nil
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// escape protects gjson metacharacters inside a single key.
func escape(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
