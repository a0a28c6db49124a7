package curl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Result is the outcome of one transaction. Err is non-nil only when the
// transaction did not complete; a 4xx or 5xx response is a completed one.
type Result struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Timing     Timing
	Err        *TransportError
}

// OK reports whether the transaction completed.
func (r *Result) OK() bool {
	return r.Err == nil
}

// IsSuccess returns true if the status code is in the 2xx range.
func (r *Result) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect returns true if the status code is in the 3xx range.
func (r *Result) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// Do performs a single transaction for spec through transport. The session
// is closed before Do returns, whatever the outcome.
func Do(ctx context.Context, transport Transport, spec *Spec) *Result {
	return do(ctx, transport, spec, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(ctx context.Context, transport Transport, spec *Spec, logger *slog.Logger) *Result {
	result := &Result{
		Method: spec.Method(),
		URL:    spec.URL(),
	}
	logURL := sanitizeURL(spec.URL())
	start := time.Now()

	session, err := transport.Open(spec)
	if err != nil {
		result.Err = newTransportError(spec, err)
		logger.Warn("opening transport session failed", "method", result.Method, "url", logURL, "error", err)
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug("closing transport session failed", "error", err)
		}
	}()

	resp, err := session.Perform(ctx)
	elapsed := time.Since(start)
	duration := elapsed.Milliseconds()
	if err != nil {
		result.Err = newTransportError(spec, err)
		result.Timing = Timing{StartTime: start, Total: elapsed}
		logger.Warn("http request failed",
			"method", result.Method,
			"url", logURL,
			"kind", result.Err.Kind,
			"duration_ms", duration,
			"error", err.Error(),
		)
		return result
	}

	result.StatusCode = resp.StatusCode
	result.Status = resp.Status
	result.Header = resp.Header
	result.Body = resp.Body
	result.Timing = resp.Timing
	if result.Timing.Total == 0 {
		result.Timing.Total = elapsed
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "http request",
		"method", result.Method,
		"url", logURL,
		"status", resp.StatusCode,
		"bytes", len(resp.Body),
		"duration_ms", duration,
	)
	return result
}
