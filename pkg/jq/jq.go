// Package jq filters JSON response bodies with jq expressions.
package jq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds the run time of one query.
const DefaultTimeout = time.Second

// ErrInvalidJSON is returned when the body cannot be decoded as JSON.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// Query is a compiled jq expression.
type Query struct {
	expression string
	code       *gojq.Code
}

// Compile parses and compiles expression.
func Compile(expression string) (*Query, error) {
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expression, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq compilation of %q failed: %w", expression, err)
	}
	return &Query{expression: expression, code: code}, nil
}

// Run applies the query to a JSON body and returns every emitted value.
func (q *Query) Run(ctx context.Context, body []byte) ([]any, error) {
	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, ErrInvalidJSON
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var values []any
	iter := q.code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq %s: %w", q.expression, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Format renders values one per line: strings raw, everything else as
// compact JSON.
func Format(values []any) (string, error) {
	var b strings.Builder
	for _, v := range values {
		if s, ok := v.(string); ok {
			b.WriteString(s)
			b.WriteByte('\n')
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		b.Write(encoded)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
