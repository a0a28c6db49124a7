package curl

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindDNS        ErrorKind = "dns"
	KindConnection ErrorKind = "connection"
	KindTLS        ErrorKind = "tls"
	KindURL        ErrorKind = "url"
	KindOther      ErrorKind = "other"
)

// TransportError is a transaction that did not complete. Remote error
// statuses are not TransportErrors.
type TransportError struct {
	Kind   ErrorKind
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message is the single human-readable entry stored in the error list.
func (e *TransportError) Message() string {
	return "Curl error: " + e.Err.Error()
}

func newTransportError(spec *Spec, err error) *TransportError {
	return &TransportError{
		Kind:   classify(err),
		Method: spec.Method(),
		URL:    sanitizeURL(spec.URL()),
		Err:    err,
	}
}

// classify maps an error from the transport to an ErrorKind. Order matters:
// a DNS error is also a net.Error and a TLS error may arrive inside a
// *url.Error.
func classify(err error) ErrorKind {
	var (
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		authErr     x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		netErr      net.Error
		opErr       *net.OpError
		urlErr      *url.Error
		alertErr    tls.AlertError
		parseURLErr bool
	)

	if errors.As(err, &urlErr) {
		parseURLErr = urlErr.Op == "parse" || strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") ||
			strings.Contains(urlErr.Err.Error(), "no Host in request URL")
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &dnsErr):
		return KindDNS
	case errors.As(err, &certErr), errors.As(err, &recordErr), errors.As(err, &authErr),
		errors.As(err, &hostErr), errors.As(err, &invalidErr), errors.As(err, &alertErr):
		return KindTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return KindConnection
	case errors.As(err, &opErr):
		return KindConnection
	case parseURLErr:
		return KindURL
	default:
		return KindOther
	}
}

// sanitizeURL redacts userinfo so credentials never reach logs or errors.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("REDACTED")
	return u.String()
}
