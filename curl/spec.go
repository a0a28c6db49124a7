package curl

import (
	"crypto/x509"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"
)

// MethodPolicy decides which HTTP method is used when a request body is set.
type MethodPolicy int

const (
	// ForcePost sends every request that carries a body as POST, even when a
	// custom method was configured. This is the default.
	ForcePost MethodPolicy = iota

	// KeepEntityMethods keeps a custom PUT, PATCH or DELETE method when a body
	// is set. Any other custom method is still replaced by POST.
	KeepEntityMethods
)

// String returns the policy name.
func (p MethodPolicy) String() string {
	switch p {
	case ForcePost:
		return "force-post"
	case KeepEntityMethods:
		return "keep-entity-methods"
	default:
		return "unknown"
	}
}

// Body is a request payload: either form fields or a raw string.
type Body struct {
	fields map[string]string
	raw    string
	form   bool
}

// FormBody returns a Body holding form fields, sent as multipart/form-data.
func FormBody(fields map[string]string) Body {
	return Body{fields: maps.Clone(fields), form: true}
}

// RawBody returns a Body sent verbatim.
func RawBody(raw string) Body {
	return Body{raw: raw}
}

// IsEmpty reports whether the body carries no data. An empty body does not
// trigger POST semantics.
func (b Body) IsEmpty() bool {
	if b.form {
		return len(b.fields) == 0
	}
	return b.raw == ""
}

// IsForm reports whether the body holds form fields.
func (b Body) IsForm() bool {
	return b.form
}

// Fields returns a copy of the form fields, or nil for a raw body.
func (b Body) Fields() map[string]string {
	if !b.form {
		return nil
	}
	return maps.Clone(b.fields)
}

// Raw returns the raw payload, or "" for a form body.
func (b Body) Raw() string {
	return b.raw
}

// Spec is an immutable snapshot of a request configuration. It is produced
// by Curl.Build and consumed by Do and by Transport implementations.
type Spec struct {
	url            string
	method         string
	customMethod   string
	headers        []string
	userAgent      string
	timeout        time.Duration
	verifyHost     bool
	verifyPeer     bool
	rootCAs        *x509.CertPool
	followRedirect bool
	maxRedirects   int
	credentials    string
	body           Body
	policy         MethodPolicy
}

// URL returns the target URL.
func (s *Spec) URL() string { return s.url }

// Method returns the resolved HTTP method.
func (s *Spec) Method() string { return s.method }

// CustomMethod returns the configured method override, "" when unset.
func (s *Spec) CustomMethod() string { return s.customMethod }

// HeaderLines returns a copy of the configured "Name: Value" lines in order.
func (s *Spec) HeaderLines() []string { return slices.Clone(s.headers) }

// UserAgent returns the user agent string.
func (s *Spec) UserAgent() string { return s.userAgent }

// Timeout returns the transaction timeout. Zero means no timeout.
func (s *Spec) Timeout() time.Duration { return s.timeout }

// VerifyHost reports whether the certificate must match the host name.
func (s *Spec) VerifyHost() bool { return s.verifyHost }

// VerifyPeer reports whether the certificate chain must be trusted.
func (s *Spec) VerifyPeer() bool { return s.verifyPeer }

// RootCAs returns the trust roots for peer verification; nil means the
// system pool.
func (s *Spec) RootCAs() *x509.CertPool { return s.rootCAs }

// FollowRedirects reports whether 3xx responses are followed.
func (s *Spec) FollowRedirects() bool { return s.followRedirect }

// MaxRedirects returns the redirect limit applied when following.
func (s *Spec) MaxRedirects() int { return s.maxRedirects }

// Body returns the request payload.
func (s *Spec) Body() Body { return s.body }

// Policy returns the body method policy the method was resolved with.
func (s *Spec) Policy() MethodPolicy { return s.policy }

// Credentials splits the "user:password" string. ok is false when no
// credentials are configured.
func (s *Spec) Credentials() (user, password string, ok bool) {
	if s.credentials == "" {
		return "", "", false
	}
	user, password, _ = strings.Cut(s.credentials, ":")
	return user, password, true
}

// Header builds the outbound header set. The user agent goes first; a
// configured line with the same name replaces it. Lines without a colon are
// returned in skipped. Repeated names accumulate in order.
func (s *Spec) Header() (h http.Header, skipped []string) {
	h = make(http.Header)
	h.Set("User-Agent", s.userAgent)

	replaced := make(map[string]bool)
	for _, line := range s.headers {
		name, value, ok := ParseHeaderLine(line)
		if !ok {
			skipped = append(skipped, line)
			continue
		}
		key := http.CanonicalHeaderKey(name)
		if !replaced[key] {
			h.Del(key)
			replaced[key] = true
		}
		h.Add(key, value)
	}

	if !s.body.IsEmpty() && !s.body.IsForm() && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return h, skipped
}

// ParseHeaderLine splits a "Name: Value" line. ok is false when the line has
// no colon or an empty name.
func ParseHeaderLine(line string) (name, value string, ok bool) {
	name, value, found := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// entityMethods keep their verb under KeepEntityMethods.
var entityMethods = map[string]bool{
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// ResolveMethod picks the HTTP method for a request. A non-empty body forces
// POST unless policy is KeepEntityMethods and custom is PUT, PATCH or DELETE.
// Without a body the custom method is used verbatim, falling back to GET.
func ResolveMethod(custom string, hasBody bool, policy MethodPolicy) string {
	if hasBody {
		if policy == KeepEntityMethods && entityMethods[strings.ToUpper(custom)] {
			return strings.ToUpper(custom)
		}
		return http.MethodPost
	}
	if custom != "" {
		return custom
	}
	return http.MethodGet
}
