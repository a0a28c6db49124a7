package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/denniscarrazeiro/php-curl-module/curl"
	"github.com/denniscarrazeiro/php-curl-module/internal/log"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jq"
	"github.com/denniscarrazeiro/php-curl-module/pkg/jsonpath"
)

// requestFlags are the options shared by "request" and the method shortcuts.
type requestFlags struct {
	method      string
	headers     []string
	data        string
	form        []string
	user        string
	userAgent   string
	timeout     int
	location    bool
	maxRedirs   int
	verifyHost  bool
	verifyPeer  bool
	contentType string
	keepMethod  bool
	query       string
	jqExpr      string
	repeat      int
	rate        float64
	requestID   bool
	outputFile  string
	transport   string

	defaultHeaders []string
}

func (f *requestFlags) register(fs *pflag.FlagSet, withMethod bool) {
	if withMethod {
		fs.StringVarP(&f.method, "request", "X", "", "Custom request method (a body still forces POST unless --keep-method)")
	}
	fs.StringArrayVarP(&f.headers, "header", "H", nil, `Header line "Name: Value" (repeatable)`)
	fs.StringVarP(&f.data, "data", "d", "", "Raw request body; @file reads it from a file")
	fs.StringArrayVarP(&f.form, "form", "F", nil, "Form field key=value sent as multipart/form-data (repeatable)")
	fs.StringVarP(&f.user, "user", "u", "", "Basic auth credentials user:password")
	fs.StringVarP(&f.userAgent, "user-agent", "A", "", "User-Agent header")
	fs.IntVarP(&f.timeout, "max-time", "m", 0, "Transaction timeout in seconds (0 disables it)")
	fs.BoolVarP(&f.location, "location", "L", false, "Follow redirects")
	fs.IntVar(&f.maxRedirs, "max-redirs", 0, "Maximum number of redirects to follow")
	fs.BoolVar(&f.verifyHost, "verify-host", false, "Check that the certificate matches the host")
	fs.BoolVar(&f.verifyPeer, "verify-peer", false, "Check that the certificate chain is trusted")
	fs.StringVar(&f.contentType, "content-type", "", "Add a Content-Type header")
	fs.BoolVar(&f.keepMethod, "keep-method", false, "Keep PUT, PATCH and DELETE when a body is present")
	fs.StringVarP(&f.query, "query", "q", "", "Print only the value at this JSONPath of the response body")
	fs.StringVar(&f.jqExpr, "jq", "", "Print only the output of this jq expression applied to the response body")
	fs.IntVarP(&f.repeat, "repeat", "n", 1, "Execute the request this many times and print latency statistics")
	fs.Float64Var(&f.rate, "rate", 0, "Maximum executions per second with --repeat (0 = unlimited)")
	fs.BoolVar(&f.requestID, "request-id", false, "Add an X-Request-Id header with a fresh UUID")
	fs.StringVarP(&f.outputFile, "output", "o", "", "Write the response body to this file")
	fs.StringVar(&f.transport, "transport", "resty", "HTTP transport (resty, http)")
}

// applyDefaults fills the flags the user did not set from configuration.
func (f *requestFlags) applyDefaults(fs *pflag.FlagSet, a *app) {
	d := a.defaults
	f.defaultHeaders = d.Headers
	if !fs.Changed("user-agent") {
		f.userAgent = d.UserAgent
	}
	if !fs.Changed("max-time") {
		f.timeout = d.Timeout
	}
	if !fs.Changed("location") {
		f.location = d.FollowRedirects
	}
	if !fs.Changed("max-redirs") {
		f.maxRedirs = d.MaxRedirects
	}
	if !fs.Changed("verify-host") {
		f.verifyHost = d.VerifyHost
	}
	if !fs.Changed("verify-peer") {
		f.verifyPeer = d.VerifyPeer
	}
}

func (f *requestFlags) validate() error {
	if f.data != "" && len(f.form) > 0 {
		return fmt.Errorf("--data and --form are mutually exclusive")
	}
	if f.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	if f.rate < 0 {
		return fmt.Errorf("--rate cannot be negative")
	}
	if f.timeout < 0 {
		return fmt.Errorf("--max-time cannot be negative")
	}
	if f.query != "" && f.jqExpr != "" {
		return fmt.Errorf("--query and --jq are mutually exclusive")
	}
	if f.query != "" {
		if _, err := jsonpath.Translate(f.query); err != nil {
			return fmt.Errorf("--query: %w", err)
		}
	}
	if f.jqExpr != "" {
		if _, err := jq.Compile(f.jqExpr); err != nil {
			return fmt.Errorf("--jq: %w", err)
		}
	}
	return nil
}

// body resolves --data and --form.
func (f *requestFlags) body() (raw string, fields map[string]string, err error) {
	if strings.HasPrefix(f.data, "@") {
		content, err := os.ReadFile(f.data[1:])
		if err != nil {
			return "", nil, fmt.Errorf("reading --data file: %w", err)
		}
		return string(content), nil, nil
	}
	if len(f.form) == 0 {
		return f.data, nil, nil
	}
	fields = make(map[string]string, len(f.form))
	for _, field := range f.form {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("invalid --form field %q, want key=value", field)
		}
		fields[key] = value
	}
	return "", fields, nil
}

// builder returns a function creating one descriptor per execution, all
// sharing the selected transport.
func (f *requestFlags) builder(target string, policy curl.MethodPolicy, logger *slog.Logger) (func() *curl.Curl, error) {
	raw, fields, err := f.body()
	if err != nil {
		return nil, err
	}
	transport, err := newTransport(f.transport, logger)
	if err != nil {
		return nil, err
	}

	return func() *curl.Curl {
		var c *curl.Curl
		if f.contentType != "" {
			c = curl.New(f.contentType)
		} else {
			c = curl.New()
		}

		requestLogger := logger
		if f.requestID {
			id := uuid.NewString()
			c.AppendHeader("X-Request-Id: " + id)
			requestLogger = log.WithRequestID(logger, id)
		}

		c.URL(target).
			UserAgent(f.userAgent).
			Timeout(f.timeout).
			FollowLocation(f.location).
			MaxRedirects(f.maxRedirs).
			SSLVerifyHost(f.verifyHost).
			SSLVerifyPeer(f.verifyPeer).
			BodyMethodPolicy(policy).
			Transport(transport).
			Logger(requestLogger)

		for _, header := range f.defaultHeaders {
			c.AppendHeader(header)
		}
		for _, header := range f.headers {
			c.AppendHeader(header)
		}
		if f.method != "" {
			c.CustomRequest(f.method)
		}
		if f.user != "" {
			c.UserPwd(f.user)
		}
		switch {
		case fields != nil:
			c.PostFields(fields)
		case raw != "":
			c.PostString(raw)
		}
		return c
	}, nil
}

func newTransport(name string, logger *slog.Logger) (curl.Transport, error) {
	switch strings.ToLower(name) {
	case "", "resty":
		return curl.NewRestyTransport(curl.WithRestyLogger(logger)), nil
	case "http", "net/http":
		return curl.NewHTTPTransport(curl.WithHTTPLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want resty or http)", name)
	}
}

func newRequestCmd(a *app) *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "request URL",
		Short: "Send a request to the specified URL",
		Example: `  gocurl request https://httpbin.org/get
  gocurl request -X PUT --keep-method -d '{"a":1}' --content-type application/json https://httpbin.org/put
  gocurl request -F name=xyz -u user:pass https://httpbin.org/post`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := curl.ForcePost
			if f.keepMethod {
				policy = curl.KeepEntityMethods
			}
			return runRequest(cmd, a, f, args[0], policy)
		},
	}
	f.register(cmd.Flags(), true)
	return cmd
}

// newMethodCmd creates a shortcut such as "gocurl put URL". PUT, PATCH and
// DELETE shortcuts keep their method when a body is sent.
func newMethodCmd(a *app, method string) *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " URL",
		Short: fmt.Sprintf("Send a %s request to the specified URL", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.method = method
			policy := curl.ForcePost
			if f.keepMethod || method == "PUT" || method == "PATCH" || method == "DELETE" {
				policy = curl.KeepEntityMethods
			}
			return runRequest(cmd, a, f, args[0], policy)
		},
	}
	f.register(cmd.Flags(), false)
	return cmd
}

func runRequest(cmd *cobra.Command, a *app, f *requestFlags, target string, policy curl.MethodPolicy) error {
	f.applyDefaults(cmd.Flags(), a)
	if err := f.validate(); err != nil {
		return err
	}

	build, err := f.builder(target, policy, a.logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if f.repeat > 1 {
		return runRepeated(ctx, cmd.OutOrStdout(), a, f, build)
	}
	return runOnce(ctx, cmd.OutOrStdout(), a, f, build())
}

func runOnce(ctx context.Context, out io.Writer, a *app, f *requestFlags, c *curl.Curl) error {
	formatter := a.formatter(out)
	filtered := f.query != "" || f.jqExpr != ""
	if !filtered {
		fmt.Fprint(out, formatter.FormatRequest(c.Build()))
	}

	if f.outputFile != "" {
		file, err := os.Create(f.outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer file.Close()
		c.ReturnTransfer(false).Output(file)
	} else {
		c.ReturnTransfer(true)
	}

	body, ok := c.ExecuteContext(ctx)
	if !ok {
		if result := c.Result(); result != nil && result.Err != nil {
			fmt.Fprint(out, formatter.FormatResult(result))
		}
		errs, _ := c.GetValidationErrors()
		fmt.Fprint(out, formatter.FormatErrors(errs))
		return errFailed
	}

	if f.query != "" {
		value, err := jsonpath.Extract([]byte(body), f.query)
		if err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("--query %s: %w", f.query, err)}
		}
		fmt.Fprintln(out, value)
		return nil
	}
	if f.jqExpr != "" {
		return printJQ(ctx, out, f.jqExpr, body)
	}

	result := *c.Result()
	if f.outputFile != "" {
		result.Body = nil
	}
	fmt.Fprint(out, formatter.FormatResult(&result))
	return nil
}

func printJQ(ctx context.Context, out io.Writer, expression, body string) error {
	query, err := jq.Compile(expression)
	if err != nil {
		return err
	}
	values, err := query.Run(ctx, []byte(body))
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("--jq: %w", err)}
	}
	rendered, err := jq.Format(values)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	return nil
}
