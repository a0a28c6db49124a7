package curl

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"
)

const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "Curl/1.0"

	// DefaultTimeout is the transaction timeout in seconds (24 hours).
	DefaultTimeout = 86400

	// DefaultMaxRedirects caps redirect chains when following is enabled.
	DefaultMaxRedirects = 10
)

// Curl is a mutable request descriptor. Mutators return the same *Curl so
// calls can be chained; Execute performs the transaction and stores its
// outcome on the descriptor. Use one Curl per request lifecycle.
type Curl struct {
	url            string
	headers        []string
	userAgent      string
	timeout        int
	sslVerifyHost  bool
	sslVerifyPeer  bool
	returnTransfer bool
	followLocation bool
	maxRedirects   int
	customRequest  string
	userPwd        string
	body           Body
	contentType    string
	rootCAs        *x509.CertPool
	policy         MethodPolicy

	output    io.Writer
	transport Transport
	logger    *slog.Logger

	executed   bool
	statusCode int
	result     *Result
	errors     []string
}

// New creates a descriptor with default settings. When a content type is
// given, a "Content-Type: <type>" header is appended immediately.
func New(contentType ...string) *Curl {
	c := &Curl{
		userAgent:    DefaultUserAgent,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		policy:       ForcePost,
		output:       os.Stdout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if len(contentType) > 0 {
		c.contentType = contentType[0]
		c.AddHeader(fmt.Sprintf("Content-Type: %s", c.contentType))
	}
	return c
}

// URL sets the target URL.
func (c *Curl) URL(url string) *Curl {
	c.url = url
	return c
}

// UserAgent sets the User-Agent header value.
func (c *Curl) UserAgent(userAgent string) *Curl {
	c.userAgent = userAgent
	return c
}

// AddHeader appends a "Name: Value" line to the header list. An empty
// string clears the whole list instead; prefer AppendHeader and
// ClearHeaders, which say what they do.
func (c *Curl) AddHeader(header string) *Curl {
	if header == "" {
		return c.ClearHeaders()
	}
	return c.AppendHeader(header)
}

// AppendHeader appends a "Name: Value" line. An empty string is ignored.
func (c *Curl) AppendHeader(header string) *Curl {
	if header != "" {
		c.headers = append(c.headers, header)
	}
	return c
}

// ClearHeaders empties the header list, including a Content-Type added by New.
func (c *Curl) ClearHeaders() *Curl {
	c.headers = []string{}
	return c
}

// Timeout sets the transaction timeout in seconds. Zero disables it.
func (c *Curl) Timeout(seconds int) *Curl {
	c.timeout = seconds
	return c
}

// ReturnTransfer selects whether Execute returns the body (true) or writes
// it to the output writer (false).
func (c *Curl) ReturnTransfer(returnTransfer bool) *Curl {
	c.returnTransfer = returnTransfer
	return c
}

// PostFields sets form fields as the request body, sent as
// multipart/form-data. A non-empty body makes the request a POST; see
// BodyMethodPolicy.
func (c *Curl) PostFields(fields map[string]string) *Curl {
	c.body = FormBody(fields)
	return c
}

// PostString sets a raw request body, e.g. "a=1&b=2" or a JSON document.
func (c *Curl) PostString(raw string) *Curl {
	c.body = RawBody(raw)
	return c
}

// SSLVerifyHost sets whether the server certificate must match the host.
func (c *Curl) SSLVerifyHost(verify bool) *Curl {
	c.sslVerifyHost = verify
	return c
}

// SSLVerifyPeer sets whether the server certificate chain must be trusted.
func (c *Curl) SSLVerifyPeer(verify bool) *Curl {
	c.sslVerifyPeer = verify
	return c
}

// RootCAs sets the trust roots used by peer verification. nil selects the
// system pool.
func (c *Curl) RootCAs(pool *x509.CertPool) *Curl {
	c.rootCAs = pool
	return c
}

// FollowLocation sets whether redirects are followed.
func (c *Curl) FollowLocation(follow bool) *Curl {
	c.followLocation = follow
	return c
}

// MaxRedirects caps the number of redirects followed.
func (c *Curl) MaxRedirects(n int) *Curl {
	c.maxRedirects = n
	return c
}

// UserPwd sets Basic authentication credentials as "username:password".
func (c *Curl) UserPwd(userPwd string) *Curl {
	c.userPwd = userPwd
	return c
}

// CustomRequest overrides the HTTP method, e.g. "PUT" or "DELETE".
func (c *Curl) CustomRequest(method string) *Curl {
	c.customRequest = method
	return c
}

// BodyMethodPolicy selects how a custom method interacts with a body.
func (c *Curl) BodyMethodPolicy(policy MethodPolicy) *Curl {
	c.policy = policy
	return c
}

// Output sets where the body is written when ReturnTransfer is false.
func (c *Curl) Output(w io.Writer) *Curl {
	c.output = w
	return c
}

// Transport injects the transport collaborator. nil restores the default.
func (c *Curl) Transport(t Transport) *Curl {
	c.transport = t
	return c
}

// Logger sets the structured logger.
func (c *Curl) Logger(logger *slog.Logger) *Curl {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// ValidationErrors replaces the error list. Calling it with no errors leaves
// the current list untouched; use ClearValidationErrors to empty it.
func (c *Curl) ValidationErrors(errs ...string) *Curl {
	if len(errs) > 0 {
		c.errors = slices.Clone(errs)
	}
	return c
}

// ClearValidationErrors empties the error list.
func (c *Curl) ClearValidationErrors() *Curl {
	c.errors = nil
	return c
}

// GetValidationErrors returns the error list. ok is false when there are no
// errors.
func (c *Curl) GetValidationErrors() (errs []string, ok bool) {
	if len(c.errors) == 0 {
		return nil, false
	}
	return slices.Clone(c.errors), true
}

// StatusCode returns the status of the last execution. ok is false before
// the first execution; a failed transaction reports 0.
func (c *Curl) StatusCode() (code int, ok bool) {
	return c.statusCode, c.executed
}

// Headers returns a copy of the configured header lines.
func (c *Curl) Headers() []string {
	return slices.Clone(c.headers)
}

// Result returns the full outcome of the last execution, nil before it.
func (c *Curl) Result() *Result {
	return c.result
}

// Err returns the transport failure of the last execution, if any.
func (c *Curl) Err() error {
	if c.result == nil || c.result.Err == nil {
		return nil
	}
	return c.result.Err
}

// Build snapshots the current configuration into an immutable Spec.
func (c *Curl) Build() *Spec {
	return &Spec{
		url:            c.url,
		method:         ResolveMethod(c.customRequest, !c.body.IsEmpty(), c.policy),
		customMethod:   c.customRequest,
		headers:        slices.Clone(c.headers),
		userAgent:      c.userAgent,
		timeout:        time.Duration(c.timeout) * time.Second,
		verifyHost:     c.sslVerifyHost,
		verifyPeer:     c.sslVerifyPeer,
		rootCAs:        c.rootCAs,
		followRedirect: c.followLocation,
		maxRedirects:   c.maxRedirects,
		credentials:    c.userPwd,
		body:           c.body,
		policy:         c.policy,
	}
}

// Execute performs the transaction with a background context.
func (c *Curl) Execute() (body string, ok bool) {
	return c.ExecuteContext(context.Background())
}

// ExecuteContext performs the transaction and overwrites all result state.
//
// With ReturnTransfer(true) it returns the body and true. Otherwise the body
// is written to the output writer and ("", true) is returned. When the
// transaction fails it returns ("", false) and the error list holds one
// "Curl error: ..." message.
func (c *Curl) ExecuteContext(ctx context.Context) (body string, ok bool) {
	c.executed = true
	c.statusCode = 0
	c.result = nil
	c.errors = nil

	transport := c.transport
	if transport == nil {
		transport = NewRestyTransport(WithRestyLogger(c.logger))
	}

	res := do(ctx, transport, c.Build(), c.logger)
	c.result = res
	c.statusCode = res.StatusCode

	if res.Err != nil {
		c.ValidationErrors(res.Err.Message())
		return "", false
	}

	if c.returnTransfer {
		return string(res.Body), true
	}

	if _, err := c.output.Write(res.Body); err != nil {
		c.ValidationErrors("Curl error: failed writing body: " + err.Error())
		return "", false
	}
	return "", true
}
