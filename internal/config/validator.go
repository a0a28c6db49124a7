package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/denniscarrazeiro/php-curl-module/internal/condition"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonpath"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonschema"
)

var conditions = condition.New()

// ValidationError represents a request file validation error
type ValidationError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every problem found in a request file.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return "invalid request file: " + strings.Join(parts, "; ")
}

// Validate checks the rules the schema cannot express.
func Validate(file *RequestFile) ValidationErrors {
	var errs ValidationErrors

	if len(file.Requests) == 0 {
		errs = append(errs, ValidationError{
			Path:    "requests",
			Message: "at least one request is required",
		})
	}

	names := make(map[string]int)
	for i, req := range file.Requests {
		path := fmt.Sprintf("requests[%d]", i)

		if strings.TrimSpace(req.URL) == "" {
			errs = append(errs, ValidationError{Path: path + ".url", Message: "url is required"})
		} else if !strings.Contains(req.URL, "${") {
			if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, ValidationError{
					Path:    path + ".url",
					Message: fmt.Sprintf("invalid absolute URL: %s", req.URL),
				})
			}
		}

		if req.Name != "" {
			if first, ok := names[req.Name]; ok {
				errs = append(errs, ValidationError{
					Path:    path + ".name",
					Message: fmt.Sprintf("duplicate name %q (first used by requests[%d])", req.Name, first),
				})
			} else {
				names[req.Name] = i
			}
		}

		bodies := 0
		for _, set := range []bool{req.Body != "", len(req.JSON) > 0, len(req.Form) > 0} {
			if set {
				bodies++
			}
		}
		if bodies > 1 {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: "body, json and form are mutually exclusive",
			})
		}

		if req.Timeout != nil && *req.Timeout < 0 {
			errs = append(errs, ValidationError{Path: path + ".timeout", Message: "timeout cannot be negative"})
		}

		for _, header := range req.Headers {
			if !strings.Contains(header, ":") {
				errs = append(errs, ValidationError{
					Path:    path + ".headers",
					Message: fmt.Sprintf("header %q must be \"Name: Value\"", header),
				})
			}
		}

		for name, expr := range req.Extract {
			if _, err := jsonpath.Translate(expr); err != nil {
				errs = append(errs, ValidationError{Path: path + ".extract." + name, Message: err.Error()})
			}
		}
		for expr := range req.Expect.Values {
			if _, err := jsonpath.Translate(expr); err != nil {
				errs = append(errs, ValidationError{Path: path + ".expect.values", Message: err.Error()})
			}
		}

		for j, expression := range req.Expect.Assert {
			if err := conditions.Validate(expression); err != nil {
				errs = append(errs, ValidationError{Path: fmt.Sprintf("%s.expect.assert[%d]", path, j), Message: err.Error()})
			}
		}

		if len(req.Expect.Schema) > 0 {
			if _, err := jsonschema.Compile(req.DisplayName(i), req.Expect.Schema); err != nil {
				errs = append(errs, ValidationError{Path: path + ".expect.schema", Message: err.Error()})
			}
		}

		if len(req.JSON) > 0 && !json.Valid(req.JSON) {
			errs = append(errs, ValidationError{Path: path + ".json", Message: "invalid JSON"})
		}
	}

	return errs
}
