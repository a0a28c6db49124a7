// Package config loads request files and CLI defaults.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonschema"
)

//go:embed schema.json
var requestFileSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.Compile("requestfile", requestFileSchema)
})

// RequestFile is a sequence of requests executed in order by "gocurl run".
type RequestFile struct {
	Variables map[string]string `json:"variables,omitempty"`
	Requests  []Request         `json:"requests"`
}

// Request describes one transaction. Unset optional fields fall back to
// Defaults.
type Request struct {
	Name            string            `json:"name,omitempty"`
	URL             string            `json:"url"`
	Method          string            `json:"method,omitempty"`
	KeepMethod      bool              `json:"keepMethod,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	Headers         []string          `json:"headers,omitempty"`
	UserAgent       string            `json:"userAgent,omitempty"`
	Timeout         *int              `json:"timeout,omitempty"`
	VerifyHost      *bool             `json:"verifyHost,omitempty"`
	VerifyPeer      *bool             `json:"verifyPeer,omitempty"`
	FollowRedirects *bool             `json:"followRedirects,omitempty"`
	MaxRedirects    *int              `json:"maxRedirects,omitempty"`
	Credentials     string            `json:"credentials,omitempty"`
	Body            string            `json:"body,omitempty"`
	JSON            json.RawMessage   `json:"json,omitempty"`
	Form            map[string]string `json:"form,omitempty"`
	Expect          Expect            `json:"expect,omitempty"`
	Extract         map[string]string `json:"extract,omitempty"`
}

// Expect holds the checks applied to a response.
type Expect struct {
	// Status is the expected status code; 0 accepts any.
	Status int `json:"status,omitempty"`
	// Schema is a JSON Schema the response body must satisfy.
	Schema json.RawMessage `json:"schema,omitempty"`
	// Values maps JSONPath expressions to their expected string values.
	Values map[string]string `json:"values,omitempty"`
	// Assert lists boolean expressions over status, headers, body, text
	// and duration_ms.
	Assert []string `json:"assert,omitempty"`
}

// DisplayName returns the request name, or "#<n>" (1-based) when unnamed.
func (r Request) DisplayName(index int) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("#%d", index+1)
}

// LoadRequestFile reads, schema-checks and validates a request file. Files
// ending in .json are parsed as JSON, everything else as YAML.
func LoadRequestFile(path string) (*RequestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("request file not found: %s", path)
		}
		return nil, fmt.Errorf("error reading request file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}

	file, err := ParseRequestFile(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// ParseRequestFile decodes data in the given format ("json" or "yaml").
func ParseRequestFile(data []byte, format string) (*RequestFile, error) {
	doc, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	violations, err := schema.Validate(doc)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		errs := make(ValidationErrors, len(violations))
		for i, v := range violations {
			errs[i] = ValidationError{Path: pointerToPath(v.Location), Message: v.Message}
		}
		return nil, errs
	}

	var file RequestFile
	if err := json.Unmarshal(doc, &file); err != nil {
		return nil, fmt.Errorf("error decoding request file: %w", err)
	}

	if errs := Validate(&file); len(errs) > 0 {
		return nil, errs
	}
	return &file, nil
}

// toJSON normalizes a YAML or JSON document to JSON bytes.
func toJSON(data []byte, format string) ([]byte, error) {
	switch format {
	case "json":
		if !json.Valid(data) {
			var v any
			err := json.Unmarshal(data, &v)
			return nil, fmt.Errorf("error parsing JSON: %w", err)
		}
		return data, nil
	case "yaml", "yml", "":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("error parsing YAML: %w", err)
		}
		if v == nil {
			v = map[string]any{}
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("error converting YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported request file format: %s", format)
	}
}

// pointerToPath turns "/requests/0/url" into "requests[0].url".
func pointerToPath(pointer string) string {
	if pointer == "" {
		return "(root)"
	}
	var b strings.Builder
	for _, part := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if isDigits(part) && b.Len() > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
