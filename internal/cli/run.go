package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/denniscarrazeiro/php-curl-module/curl"
	"github.com/denniscarrazeiro/php-curl-module/internal/config"
	"github.com/denniscarrazeiro/php-curl-module/internal/output"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonpath"
)

type runOptions struct {
	vars      []string
	envFiles  []string
	failFast  bool
	transport string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run FILE|PATTERN...",
		Short: "Execute the requests of YAML or JSON request files in order",
		Long: `Execute each request of one or more request files sequentially. Patterns
such as "tests/**/*.yaml" are expanded and run in lexical order. Every
request gets a fresh descriptor; values captured by "extract" are
available to later requests of the same file as ${name}. The command
fails when any request fails or does not meet its "expect" block.`,
		Example: `  gocurl run flow.yaml
  gocurl run --env-file .env --var base=http://localhost:8080 "tests/**/*.yaml"
  gocurl run --format junit flow.yaml > report.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runFiles(ctx, cmd.OutOrStdout(), a, args, opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Variable name=value available as ${name} (repeatable)")
	cmd.Flags().StringArrayVar(&opts.envFiles, "env-file", nil, "Read variables from a dotenv file (repeatable)")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Stop at the first failing request")
	cmd.Flags().StringVar(&opts.transport, "transport", "resty", "HTTP transport (resty, http)")
	return cmd
}

// variables merges dotenv files and --var flags; flags win.
func (o *runOptions) variables() (map[string]string, error) {
	vars := map[string]string{}
	if len(o.envFiles) > 0 {
		env, err := godotenv.Read(o.envFiles...)
		if err != nil {
			return nil, fmt.Errorf("reading --env-file: %w", err)
		}
		vars = env
	}
	for _, v := range o.vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", v)
		}
		vars[name] = value
	}
	return vars, nil
}

// expandPatterns resolves glob patterns to request files. Plain paths are
// kept as given so a missing file is reported by the loader.
func expandPatterns(patterns []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			if !seen[pattern] {
				seen[pattern] = true
				paths = append(paths, pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no request files match %q", pattern)
		}
		sort.Strings(matches)
		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				paths = append(paths, match)
			}
		}
	}
	return paths, nil
}

func runFiles(ctx context.Context, out io.Writer, a *app, patterns []string, opts *runOptions) error {
	base, err := opts.variables()
	if err != nil {
		return err
	}
	paths, err := expandPatterns(patterns)
	if err != nil {
		return err
	}

	files := make([]*config.RequestFile, len(paths))
	for i, path := range paths {
		if files[i], err = config.LoadRequestFile(path); err != nil {
			return err
		}
	}
	transport, err := newTransport(opts.transport, a.logger)
	if err != nil {
		return err
	}

	var reports []output.RunReport
	failed := false
	for i, file := range files {
		report := runFile(ctx, a, paths[i], file, maps.Clone(base), transport, opts.failFast)
		reports = append(reports, report)
		if report.Failed > 0 {
			failed = true
			if opts.failFast {
				break
			}
		}
	}

	fmt.Fprint(out, a.formatter(out).FormatRun(reports...))
	if failed {
		return errFailed
	}
	return nil
}

// runFile executes the requests of one file in order.
func runFile(ctx context.Context, a *app, path string, file *config.RequestFile, vars map[string]string, transport curl.Transport, failFast bool) output.RunReport {
	report := output.RunReport{File: path, Timestamp: time.Now().Format(time.RFC3339)}
	start := time.Now()
	for i := range file.Requests {
		step := runStep(ctx, a, file, i, vars, transport)
		report.Add(step)
		if !step.Passed && failFast {
			break
		}
	}
	report.DurationMs = time.Since(start).Milliseconds()
	return report
}

// runStep executes request i. Extracted values are written into vars.
func runStep(ctx context.Context, a *app, file *config.RequestFile, i int, vars map[string]string, transport curl.Transport) output.StepResult {
	req := file.Requests[i]
	step := output.StepResult{Name: req.DisplayName(i)}
	logger := a.logger.With("request", step.Name)

	c, err := file.Builder(i, a.defaults, vars)
	if err != nil {
		step.Error = err.Error()
		return step
	}
	c.ReturnTransfer(true).Transport(transport).Logger(logger)

	_, ok := c.ExecuteContext(ctx)
	result := c.Result()
	step.StatusCode, _ = c.StatusCode()
	step.DurationMs = result.Timing.Total.Milliseconds()
	if !ok {
		errs, _ := c.GetValidationErrors()
		step.Error = strings.Join(errs, "; ")
		return step
	}

	step.Checks = evaluate(req.Expect, result)

	if len(req.Extract) > 0 {
		values, err := jsonpath.ExtractMultiple(result.Body, req.Extract)
		for name, value := range values {
			vars[name] = value
		}
		if err != nil {
			step.Checks = append(step.Checks, output.CheckResult{Name: "extract", Message: err.Error()})
		} else {
			logger.Debug("extracted variables", "count", len(values))
		}
	}

	step.Passed = allPassed(step.Checks)
	return step
}
