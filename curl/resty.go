package curl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyTransport is the default Transport. Every session gets its own
// resty.Client, so nothing is pooled between transactions.
type RestyTransport struct {
	logger *slog.Logger
}

// RestyOption configures a RestyTransport.
type RestyOption func(*RestyTransport)

// WithRestyLogger routes resty's own warnings and debug output to logger.
func WithRestyLogger(logger *slog.Logger) RestyOption {
	return func(t *RestyTransport) {
		t.logger = logger
	}
}

// NewRestyTransport creates the default transport.
func NewRestyTransport(options ...RestyOption) *RestyTransport {
	t := &RestyTransport{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Open configures a resty client for spec.
func (t *RestyTransport) Open(spec *Spec) (Session, error) {
	client := resty.New().
		SetTimeout(spec.Timeout()).
		SetTLSClientConfig(tlsConfig(spec)).
		SetLogger(restyLogger{t.logger})

	if spec.FollowRedirects() {
		client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(spec.MaxRedirects()))
	} else {
		client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}

	if user, password, ok := spec.Credentials(); ok {
		client.SetBasicAuth(user, password)
	}

	return &restySession{client: client, spec: spec, logger: t.logger}, nil
}

type restySession struct {
	client *resty.Client
	spec   *Spec
	logger *slog.Logger
}

func (s *restySession) Perform(ctx context.Context) (*Response, error) {
	header, skipped := s.spec.Header()
	for _, line := range skipped {
		s.logger.Debug("skipping header line without colon", "line", line)
	}

	req := s.client.R().SetContext(ctx).EnableTrace()
	req.Header = header

	body := s.spec.Body()
	if !body.IsEmpty() {
		if body.IsForm() {
			req.SetMultipartFormData(body.Fields())
		} else {
			req.SetBody(body.Raw())
		}
	}

	start := time.Now()
	resp, err := req.Execute(s.spec.Method(), s.spec.URL())
	if err != nil {
		return nil, err
	}

	trace := resp.Request.TraceInfo()
	return &Response{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Header:     resp.Header(),
		Body:       resp.Body(),
		Timing: Timing{
			StartTime:       start,
			DNSLookup:       trace.DNSLookup,
			TCPConnect:      trace.TCPConnTime,
			TLSHandshake:    trace.TLSHandshake,
			TimeToFirstByte: trace.ServerTime,
			ContentTransfer: trace.ResponseTime,
			Total:           time.Since(start),
		},
	}, nil
}

func (s *restySession) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

// restyLogger adapts slog to resty.Logger.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
