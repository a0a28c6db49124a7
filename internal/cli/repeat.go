package cli

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/denniscarrazeiro/php-curl-module/curl"
	"github.com/denniscarrazeiro/php-curl-module/internal/stats"
)

// runRepeated executes the request sequentially, paced by --rate, and prints
// latency statistics. Every iteration gets a fresh descriptor, so
// --request-id and its logger differ per execution. Any failed transaction
// makes the command fail.
func runRepeated(ctx context.Context, out io.Writer, a *app, f *requestFlags, build func() *curl.Curl) error {
	formatter := a.formatter(out)
	fmt.Fprint(out, formatter.FormatRequest(build().Build()))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if f.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(f.rate), 1)
	}

	recorder := stats.NewRecorder()
	var lastErr *curl.TransportError
	for i := 0; i < f.repeat; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("rate limiter: %w", err)}
		}

		c := build().ReturnTransfer(true)
		c.ExecuteContext(ctx)
		result := c.Result()
		recorder.Record(result.Timing.Total, result.StatusCode, result.OK(), int64(len(result.Body)))

		if !result.OK() {
			lastErr = result.Err
			a.logger.Warn("repeated request failed", "iteration", i+1, "kind", result.Err.Kind, "error", result.Err.Err)
		}
		if a.verbose {
			fmt.Fprint(out, formatter.FormatResult(result))
		}
	}

	summary := recorder.Summary()
	fmt.Fprint(out, formatter.FormatSummary(summary))
	if lastErr != nil {
		fmt.Fprint(out, formatter.FormatErrors([]string{lastErr.Message()}))
		return errFailed
	}
	return nil
}
