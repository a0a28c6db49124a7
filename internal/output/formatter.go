package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/denniscarrazeiro/php-curl-module/curl"
	"github.com/denniscarrazeiro/php-curl-module/internal/stats"
)

// maxPreview caps request body previews in text output.
const maxPreview = 512

// Formatter is responsible for formatting transactions in text format
type Formatter struct {
	Verbose bool
	NoColor bool

	scheme *ColorScheme
}

// NewFormatter creates a new formatter with the given options
func NewFormatter(verbose, noColor bool) *Formatter {
	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}
	return &Formatter{Verbose: verbose, NoColor: noColor, scheme: scheme}
}

func (f *Formatter) colors() *ColorScheme {
	if f.scheme == nil {
		if f.NoColor {
			f.scheme = NoColorScheme()
		} else {
			f.scheme = DefaultColorScheme()
		}
	}
	return f.scheme
}

// FormatRequest describes the request a spec will send.
func (f *Formatter) FormatRequest(spec *curl.Spec) string {
	var buf strings.Builder
	c := f.colors()

	fmt.Fprintf(&buf, "▶ REQUEST: %s %s\n", c.Method.Sprint(spec.Method()), c.URL.Sprint(spec.URL()))

	header, skipped := spec.Header()
	if f.Verbose || len(spec.HeaderLines()) > 0 {
		buf.WriteString("  Headers:\n")
		writeHeaders(&buf, c, header)
	}
	for _, line := range skipped {
		fmt.Fprintf(&buf, "  %s skipped header without ':': %q\n", c.Error.Sprint("!"), line)
	}

	if f.Verbose {
		fmt.Fprintf(&buf, "  Timeout: %s  Follow redirects: %t  Verify host: %t  Verify peer: %t\n",
			formatTimeout(spec.Timeout()), spec.FollowRedirects(), spec.VerifyHost(), spec.VerifyPeer())
		if user, _, ok := spec.Credentials(); ok {
			fmt.Fprintf(&buf, "  Auth: basic (%s)\n", user)
		}
	}

	body := spec.Body()
	switch {
	case body.IsForm():
		buf.WriteString("  Form:\n")
		fields := body.Fields()
		for _, key := range sortedKeys(fields) {
			fmt.Fprintf(&buf, "    %s=%s\n", key, fields[key])
		}
	case !body.IsEmpty():
		buf.WriteString("  Body: ")
		buf.WriteString(truncate(formatJSONString(body.Raw()), maxPreview))
		buf.WriteString("\n")
	}

	return buf.String()
}

// FormatResult describes the outcome of an execution.
func (f *Formatter) FormatResult(result *curl.Result) string {
	var buf strings.Builder
	c := f.colors()

	if result.Err != nil {
		fmt.Fprintf(&buf, "◀ FAILED: %s (%s, %dms)\n",
			c.Error.Sprint(result.Err.Message()), result.Err.Kind, result.Timing.Total.Milliseconds())
		return buf.String()
	}

	fmt.Fprintf(&buf, "◀ RESPONSE: %s (%dms)\n",
		c.Status(result.StatusCode).Sprint(result.Status), result.Timing.Total.Milliseconds())

	if f.Verbose {
		t := result.Timing
		buf.WriteString("  Timing:\n")
		fmt.Fprintf(&buf, "    DNS Lookup:         %dms\n", t.DNSLookup.Milliseconds())
		fmt.Fprintf(&buf, "    TCP Connection:     %dms\n", t.TCPConnect.Milliseconds())
		fmt.Fprintf(&buf, "    TLS Handshake:      %dms\n", t.TLSHandshake.Milliseconds())
		fmt.Fprintf(&buf, "    Time to First Byte: %dms\n", t.TimeToFirstByte.Milliseconds())
		fmt.Fprintf(&buf, "    Content Transfer:   %dms\n", t.ContentTransfer.Milliseconds())
		fmt.Fprintf(&buf, "    Total:              %dms\n", t.Total.Milliseconds())

		buf.WriteString("  Headers:\n")
		writeHeaders(&buf, c, result.Header)
	}

	if len(result.Body) > 0 {
		buf.WriteString("  Body:\n")
		buf.WriteString(formatJSONString(string(result.Body)))
		buf.WriteString("\n")
	}

	return buf.String()
}

// FormatErrors lists the messages of a failed execution.
func (f *Formatter) FormatErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	var buf strings.Builder
	for _, e := range errs {
		fmt.Fprintf(&buf, "%s %s\n", ErrorIcon(f.NoColor), f.colors().Error.Sprint(e))
	}
	return buf.String()
}

// FormatSummary renders latency statistics of repeated executions.
func (f *Formatter) FormatSummary(s stats.Summary) string {
	var buf strings.Builder
	c := f.colors()

	fmt.Fprintf(&buf, "%s\n", c.Highlight.Sprint("Summary"))
	fmt.Fprintf(&buf, "  Requests:   %d (%d failed, %.1f%% ok)\n", s.Count, s.Failures, s.SuccessRate()*100)
	fmt.Fprintf(&buf, "  Elapsed:    %s (%.1f req/s)\n", s.Elapsed.Round(time.Millisecond), s.Throughput())
	fmt.Fprintf(&buf, "  Latency:    min %s  mean %s  max %s\n", ms(s.Min), ms(s.Mean), ms(s.Max))
	fmt.Fprintf(&buf, "  Percentile: p50 %s  p90 %s  p99 %s\n", ms(s.P50), ms(s.P90), ms(s.P99))

	codes := make([]int, 0, len(s.Statuses))
	for code := range s.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	if len(codes) > 0 {
		buf.WriteString("  Status:    ")
		for _, code := range codes {
			label := fmt.Sprint(code)
			if code == 0 {
				label = "failed"
			}
			fmt.Fprintf(&buf, " %s=%d", c.Status(code).Sprint(label), s.Statuses[code])
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// FormatRun renders the outcome of one or more request files. Several
// reports get a heading per file and a grand total.
func (f *Formatter) FormatRun(reports ...RunReport) string {
	var buf strings.Builder
	c := f.colors()

	var total, passed, failed int
	var elapsed int64
	for i, report := range reports {
		if len(reports) > 1 {
			if i > 0 {
				buf.WriteString("\n")
			}
			fmt.Fprintf(&buf, "%s\n", c.Highlight.Sprint(report.File))
		}
		f.writeSteps(&buf, c, report.Steps)
		buf.WriteString("\n")
		f.writeCounts(&buf, c, report.Total, report.Passed, report.Failed, report.DurationMs)

		total += report.Total
		passed += report.Passed
		failed += report.Failed
		elapsed += report.DurationMs
	}
	if len(reports) > 1 {
		fmt.Fprintf(&buf, "\n%d files, ", len(reports))
		f.writeCounts(&buf, c, total, passed, failed, elapsed)
	}
	return buf.String()
}

func (f *Formatter) writeSteps(buf *strings.Builder, c *ColorScheme, steps []StepResult) {
	for _, step := range steps {
		icon := SuccessIcon(f.NoColor)
		if !step.Passed {
			icon = ErrorIcon(f.NoColor)
		}
		status := "-"
		if step.StatusCode > 0 {
			status = fmt.Sprint(step.StatusCode)
		}
		fmt.Fprintf(buf, "%s %s %s (%dms)\n", icon, step.Name, c.Status(step.StatusCode).Sprint(status), step.DurationMs)
		if step.Error != "" {
			fmt.Fprintf(buf, "    %s\n", c.Error.Sprint(step.Error))
		}
		for _, check := range step.Checks {
			if check.Passed && !f.Verbose {
				continue
			}
			mark := SuccessIcon(f.NoColor)
			if !check.Passed {
				mark = ErrorIcon(f.NoColor)
			}
			fmt.Fprintf(buf, "    %s %s: %s\n", mark, check.Name, check.Message)
		}
	}
}

func (f *Formatter) writeCounts(buf *strings.Builder, c *ColorScheme, total, passed, failed int, elapsed int64) {
	result := c.Success.Sprintf("%d passed", passed)
	if failed > 0 {
		result += ", " + c.Error.Sprintf("%d failed", failed)
	}
	fmt.Fprintf(buf, "%d requests: %s (%dms)\n", total, result, elapsed)
}

func writeHeaders(buf *strings.Builder, c *ColorScheme, header map[string][]string) {
	for _, key := range sortedKeys(header) {
		for _, value := range header[key] {
			fmt.Fprintf(buf, "    %s: %s\n", c.HeaderKey.Sprint(key), value)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTimeout(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// formatJSONString attempts to pretty-print a JSON string
func formatJSONString(s string) string {
	var prettyJSON bytes.Buffer
	err := json.Indent(&prettyJSON, []byte(s), "  ", "  ")
	if err != nil {
		return s
	}
	return prettyJSON.String()
}
