// Package condition evaluates boolean expressions against a response, e.g.
//
//	status == 200 && body.user.name == "alice"
//	len(body.items) > 0
//	headers["Content-Type"] startsWith "application/json"
//	duration_ms < 500
package condition

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Result is the outcome of one expression.
type Result struct {
	Expression string
	Passed     bool
	Err        error
}

// Evaluator compiles expressions once and caches the programs. It is safe
// for concurrent use.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New creates an evaluator with an empty cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Validate reports whether expression compiles.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate runs expression against env. Undefined variables evaluate to nil.
func (e *Evaluator) Evaluate(expression string, env map[string]any) Result {
	res := Result{Expression: expression}

	program, err := e.compile(expression)
	if err != nil {
		res.Err = err
		return res
	}

	out, err := expr.Run(program, env)
	if err != nil {
		res.Err = fmt.Errorf("evaluating %q: %w", expression, err)
		return res
	}
	passed, ok := out.(bool)
	if !ok {
		res.Err = fmt.Errorf("expression %q returned %T, want bool", expression, out)
		return res
	}
	res.Passed = passed
	return res
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()
	return program, nil
}

// ResponseEnv builds the variables visible to an expression: status,
// headers (first value per canonical name), body (decoded JSON, or the raw
// text when the body is not JSON), text and duration_ms.
func ResponseEnv(status int, header http.Header, body []byte, durationMs int64) map[string]any {
	headers := make(map[string]any, len(header))
	for name, values := range header {
		if len(values) > 0 {
			headers[http.CanonicalHeaderKey(name)] = values[0]
		}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		decoded = string(body)
	}

	return map[string]any{
		"status":      status,
		"headers":     headers,
		"body":        decoded,
		"text":        string(body),
		"duration_ms": durationMs,
	}
}
