// Package jsonschema compiles JSON Schema documents and reports violations
// with their instance locations.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is a single schema failure.
type Violation struct {
	// Location is the JSON pointer of the offending value, "" for the root.
	Location string
	Message  string
}

func (v Violation) String() string {
	location := v.Location
	if location == "" {
		location = "/"
	}
	return fmt.Sprintf("%s: %s", location, v.Message)
}

// Violations is a list of schema failures. It implements error.
type Violations []Violation

// Error joins the violations with "; ".
func (vs Violations) Error() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// Schema is a compiled JSON Schema.
type Schema struct {
	compiled *jsonschema.Schema
}

// Compile parses and compiles schema. name identifies the schema in errors.
func Compile(name string, schema []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	const resource = "schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks a JSON document. The error is non-nil only when doc is not
// valid JSON; schema failures are returned as Violations.
func (s *Schema) Validate(doc []byte) (Violations, error) {
	var value any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: unexpected data after the document")
	}
	return s.ValidateValue(value), nil
}

// ValidateValue checks an already decoded value. Numbers must be float64 or
// json.Number, as produced by encoding/json.
func (s *Schema) ValidateValue(value any) Violations {
	err := s.compiled.Validate(value)
	if err == nil {
		return nil
	}
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return Violations{{Message: err.Error()}}
	}
	return leaves(validationErr)
}

// leaves flattens the cause tree, keeping only the most specific failures.
func leaves(err *jsonschema.ValidationError) Violations {
	if len(err.Causes) == 0 {
		return Violations{{Location: err.InstanceLocation, Message: err.Message}}
	}
	var out Violations
	for _, cause := range err.Causes {
		out = append(out, leaves(cause)...)
	}
	return out
}
