package curl

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptrace"
	"slices"
	"strings"
	"time"
)

// HTTPTransport performs transactions with a plain net/http client and
// records phase timings through httptrace.
type HTTPTransport struct {
	roundTripper http.RoundTripper
	logger       *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithRoundTripper replaces the per-session *http.Transport. TLS settings
// from the Spec are not applied to a custom RoundTripper.
func WithRoundTripper(rt http.RoundTripper) HTTPOption {
	return func(t *HTTPTransport) {
		t.roundTripper = rt
	}
}

// WithHTTPLogger sets the logger used for session diagnostics.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// NewHTTPTransport creates a net/http based transport.
func NewHTTPTransport(options ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Open builds a dedicated http.Client for spec.
func (t *HTTPTransport) Open(spec *Spec) (Session, error) {
	rt := t.roundTripper
	var owned *http.Transport
	if rt == nil {
		owned = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			TLSClientConfig:   tlsConfig(spec),
			DisableKeepAlives: true,
		}
		rt = owned
	}

	client := &http.Client{
		Transport: rt,
		Timeout:   spec.Timeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !spec.FollowRedirects() {
				return http.ErrUseLastResponse
			}
			if len(via) >= spec.MaxRedirects() {
				return fmt.Errorf("stopped after %d redirects", spec.MaxRedirects())
			}
			return nil
		},
	}

	return &httpSession{client: client, owned: owned, spec: spec, logger: t.logger}, nil
}

type httpSession struct {
	client *http.Client
	owned  *http.Transport
	spec   *Spec
	logger *slog.Logger
}

func (s *httpSession) Perform(ctx context.Context) (*Response, error) {
	httpReq, err := s.newRequest(ctx)
	if err != nil {
		return nil, err
	}

	timing := Timing{
		StartTime: time.Now(),
	}

	var dnsStart, connectStart, tlsHandshakeStart time.Time
	lastPhaseEnd := timing.StartTime

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			end := time.Now()
			timing.DNSLookup = end.Sub(dnsStart)
			lastPhaseEnd = end
		},
		ConnectStart: func(string, string) {
			connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				end := time.Now()
				timing.TCPConnect = end.Sub(connectStart)
				lastPhaseEnd = end
			}
		},
		TLSHandshakeStart: func() {
			tlsHandshakeStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				end := time.Now()
				timing.TLSHandshake = end.Sub(tlsHandshakeStart)
				lastPhaseEnd = end
			}
		},
		GotFirstResponseByte: func() {
			timing.TimeToFirstByte = time.Since(lastPhaseEnd)
		},
	}

	httpReq = httpReq.WithContext(httptrace.WithClientTrace(ctx, trace))

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	transferStart := time.Now()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	timing.ContentTransfer = time.Since(transferStart)
	timing.Total = time.Since(timing.StartTime)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       body,
		Timing:     timing,
	}, nil
}

func (s *httpSession) newRequest(ctx context.Context) (*http.Request, error) {
	header, skipped := s.spec.Header()
	for _, line := range skipped {
		s.logger.Debug("skipping header line without colon", "line", line)
	}

	var bodyReader io.Reader
	body := s.spec.Body()
	if !body.IsEmpty() {
		if body.IsForm() {
			buf, contentType, err := encodeMultipart(body.Fields())
			if err != nil {
				return nil, err
			}
			bodyReader = buf
			header.Set("Content-Type", contentType)
		} else {
			bodyReader = strings.NewReader(body.Raw())
		}
	}

	req, err := http.NewRequestWithContext(ctx, s.spec.Method(), s.spec.URL(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = header

	if user, password, ok := s.spec.Credentials(); ok {
		req.SetBasicAuth(user, password)
	}
	return req, nil
}

func (s *httpSession) Close() error {
	if s.owned != nil {
		s.owned.CloseIdleConnections()
	}
	return nil
}

// encodeMultipart writes fields in sorted key order so the payload is
// deterministic.
func encodeMultipart(fields map[string]string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if err := w.WriteField(key, fields[key]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
