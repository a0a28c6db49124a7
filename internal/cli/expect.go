package cli

import (
	"fmt"
	"sort"

	"github.com/denniscarrazeiro/php-curl-module/curl"
	"github.com/denniscarrazeiro/php-curl-module/internal/condition"
	"github.com/denniscarrazeiro/php-curl-module/internal/config"
	"github.com/denniscarrazeiro/php-curl-module/internal/output"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonpath"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonschema"
)

var conditions = condition.New()

// evaluate checks a completed response against the expectations of a
// request file entry.
func evaluate(expect config.Expect, result *curl.Result) []output.CheckResult {
	var checks []output.CheckResult

	if expect.Status != 0 {
		check := output.CheckResult{Name: "status", Passed: result.StatusCode == expect.Status}
		if check.Passed {
			check.Message = fmt.Sprintf("%d", result.StatusCode)
		} else {
			check.Message = fmt.Sprintf("expected %d, got %d", expect.Status, result.StatusCode)
		}
		checks = append(checks, check)
	}

	if len(expect.Schema) > 0 {
		checks = append(checks, checkSchema(expect.Schema, result.Body))
	}

	paths := make([]string, 0, len(expect.Values))
	for path := range expect.Values {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		want := expect.Values[path]
		check := output.CheckResult{Name: path}
		got, err := jsonpath.Extract(result.Body, path)
		switch {
		case err != nil:
			check.Message = err.Error()
		case got != want:
			check.Message = fmt.Sprintf("expected %q, got %q", want, got)
		default:
			check.Passed = true
			check.Message = got
		}
		checks = append(checks, check)
	}

	if len(expect.Assert) > 0 {
		env := condition.ResponseEnv(result.StatusCode, result.Header, result.Body, result.Timing.Total.Milliseconds())
		for _, expression := range expect.Assert {
			res := conditions.Evaluate(expression, env)
			check := output.CheckResult{Name: expression, Passed: res.Passed}
			switch {
			case res.Err != nil:
				check.Passed = false
				check.Message = res.Err.Error()
			case res.Passed:
				check.Message = "true"
			default:
				check.Message = "false"
			}
			checks = append(checks, check)
		}
	}

	return checks
}

func checkSchema(schema, body []byte) output.CheckResult {
	check := output.CheckResult{Name: "schema"}
	compiled, err := jsonschema.Compile("expect", schema)
	if err != nil {
		check.Message = err.Error()
		return check
	}
	violations, err := compiled.Validate(body)
	switch {
	case err != nil:
		check.Message = err.Error()
	case len(violations) > 0:
		check.Message = violations.Error()
	default:
		check.Passed = true
		check.Message = "body matches schema"
	}
	return check
}

func allPassed(checks []output.CheckResult) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
