package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/denniscarrazeiro/php-curl-module/curl"
	"github.com/denniscarrazeiro/php-curl-module/internal/stats"
)

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
	// FormatJUnit outputs request file runs as JUnit XML
	FormatJUnit OutputFormat = "junit"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatText, FormatJSON, FormatYAML, FormatJUnit:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, yaml or junit)", s)
	}
}

// FormatProvider is an interface for different output formatters. A method
// returning "" means the format has nothing to print for that event.
type FormatProvider interface {
	FormatRequest(spec *curl.Spec) string
	FormatResult(result *curl.Result) string
	FormatErrors(errs []string) string
	FormatSummary(s stats.Summary) string
	FormatRun(reports ...RunReport) string
}

// RequestData represents the structured data of a request
type RequestData struct {
	Method  string              `json:"method" yaml:"method"`
	URL     string              `json:"url" yaml:"url"`
	Headers map[string][]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Form    map[string]string   `json:"form,omitempty" yaml:"form,omitempty"`
	Body    string              `json:"body,omitempty" yaml:"body,omitempty"`
}

// TimingData represents detailed timing information in milliseconds
type TimingData struct {
	DNSLookup       int64 `json:"dnsLookupMs,omitempty" yaml:"dnsLookupMs,omitempty"`
	TCPConnection   int64 `json:"tcpConnectionMs,omitempty" yaml:"tcpConnectionMs,omitempty"`
	TLSHandshake    int64 `json:"tlsHandshakeMs,omitempty" yaml:"tlsHandshakeMs,omitempty"`
	TimeToFirstByte int64 `json:"timeToFirstByteMs,omitempty" yaml:"timeToFirstByteMs,omitempty"`
	ContentTransfer int64 `json:"contentTransferMs,omitempty" yaml:"contentTransferMs,omitempty"`
	Total           int64 `json:"totalMs" yaml:"totalMs"`
}

// ResultData represents the structured data of an execution
type ResultData struct {
	Method     string              `json:"method" yaml:"method"`
	URL        string              `json:"url" yaml:"url"`
	OK         bool                `json:"ok" yaml:"ok"`
	StatusCode int                 `json:"statusCode" yaml:"statusCode"`
	Status     string              `json:"status,omitempty" yaml:"status,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body       interface{}         `json:"body,omitempty" yaml:"body,omitempty"`
	Timing     TimingData          `json:"timing" yaml:"timing"`
	Error      string              `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind  string              `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
	Timestamp  string              `json:"timestamp" yaml:"timestamp"`
}

// SummaryData is stats.Summary with durations in milliseconds
type SummaryData struct {
	Count      int64         `json:"count" yaml:"count"`
	Failures   int64         `json:"failures" yaml:"failures"`
	ElapsedMs  float64       `json:"elapsedMs" yaml:"elapsedMs"`
	Throughput float64       `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	MinMs      float64       `json:"minMs" yaml:"minMs"`
	MeanMs     float64       `json:"meanMs" yaml:"meanMs"`
	P50Ms      float64       `json:"p50Ms" yaml:"p50Ms"`
	P90Ms      float64       `json:"p90Ms" yaml:"p90Ms"`
	P99Ms      float64       `json:"p99Ms" yaml:"p99Ms"`
	MaxMs      float64       `json:"maxMs" yaml:"maxMs"`
	Statuses   map[int]int64 `json:"statuses" yaml:"statuses"`
}

// CheckResult is one expectation evaluated against a response
type CheckResult struct {
	Name    string `json:"name" yaml:"name"`
	Passed  bool   `json:"passed" yaml:"passed"`
	Message string `json:"message" yaml:"message"`
}

// StepResult is the outcome of one request of a request file
type StepResult struct {
	Name       string        `json:"name" yaml:"name"`
	Passed     bool          `json:"passed" yaml:"passed"`
	StatusCode int           `json:"statusCode" yaml:"statusCode"`
	DurationMs int64         `json:"durationMs" yaml:"durationMs"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Checks     []CheckResult `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// RunReport is the outcome of a request file
type RunReport struct {
	File       string       `json:"file" yaml:"file"`
	Total      int          `json:"total" yaml:"total"`
	Passed     int          `json:"passed" yaml:"passed"`
	Failed     int          `json:"failed" yaml:"failed"`
	DurationMs int64        `json:"durationMs" yaml:"durationMs"`
	Steps      []StepResult `json:"steps" yaml:"steps"`
	Timestamp  string       `json:"timestamp" yaml:"timestamp"`
}

// Add appends a step and updates the counters.
func (r *RunReport) Add(step StepResult) {
	r.Steps = append(r.Steps, step)
	r.Total++
	if step.Passed {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewRequestData converts a spec for structured output.
func NewRequestData(spec *curl.Spec) RequestData {
	header, _ := spec.Header()
	body := spec.Body()
	data := RequestData{
		Method:  spec.Method(),
		URL:     spec.URL(),
		Headers: header,
	}
	if body.IsForm() {
		data.Form = body.Fields()
	} else {
		data.Body = body.Raw()
	}
	return data
}

// NewResultData converts a result for structured output. JSON bodies are
// embedded as values, anything else as a string.
func NewResultData(result *curl.Result) ResultData {
	t := result.Timing
	data := ResultData{
		Method:     result.Method,
		URL:        result.URL,
		OK:         result.OK(),
		StatusCode: result.StatusCode,
		Status:     result.Status,
		Headers:    result.Header,
		Timing: TimingData{
			DNSLookup:       t.DNSLookup.Milliseconds(),
			TCPConnection:   t.TCPConnect.Milliseconds(),
			TLSHandshake:    t.TLSHandshake.Milliseconds(),
			TimeToFirstByte: t.TimeToFirstByte.Milliseconds(),
			ContentTransfer: t.ContentTransfer.Milliseconds(),
			Total:           t.Total.Milliseconds(),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if result.Err != nil {
		data.Error = result.Err.Message()
		data.ErrorKind = string(result.Err.Kind)
	}
	if len(result.Body) > 0 {
		var body interface{}
		if err := json.Unmarshal(result.Body, &body); err != nil {
			body = string(result.Body)
		}
		data.Body = body
	}
	return data
}

// NewSummaryData converts a stats summary for structured output.
func NewSummaryData(s stats.Summary) SummaryData {
	toMs := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return SummaryData{
		Count:      s.Count,
		Failures:   s.Failures,
		ElapsedMs:  toMs(s.Elapsed),
		Throughput: s.Throughput(),
		MinMs:      toMs(s.Min),
		MeanMs:     toMs(s.Mean),
		P50Ms:      toMs(s.P50),
		P90Ms:      toMs(s.P90),
		P99Ms:      toMs(s.P99),
		MaxMs:      toMs(s.Max),
		Statuses:   s.Statuses,
	}
}

// JSONFormatter formats output as JSON, one document per event
type JSONFormatter struct {
	Verbose bool
	Pretty  bool
}

func (f *JSONFormatter) marshal(v interface{}) string {
	var out []byte
	var err error
	if f.Pretty {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal output: %s"}`, err) + "\n"
	}
	return string(out) + "\n"
}

// FormatRequest formats a request as JSON when verbose
func (f *JSONFormatter) FormatRequest(spec *curl.Spec) string {
	if !f.Verbose {
		return ""
	}
	return f.marshal(map[string]RequestData{"request": NewRequestData(spec)})
}

// FormatResult formats a result as JSON
func (f *JSONFormatter) FormatResult(result *curl.Result) string {
	return f.marshal(NewResultData(result))
}

// FormatErrors formats errors as JSON
func (f *JSONFormatter) FormatErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return f.marshal(map[string][]string{"errors": errs})
}

// FormatSummary formats a summary as JSON
func (f *JSONFormatter) FormatSummary(s stats.Summary) string {
	return f.marshal(map[string]SummaryData{"summary": NewSummaryData(s)})
}

// FormatRun formats run reports as JSON. Several reports are wrapped in a
// "runs" array.
func (f *JSONFormatter) FormatRun(reports ...RunReport) string {
	if len(reports) == 1 {
		return f.marshal(reports[0])
	}
	return f.marshal(map[string][]RunReport{"runs": reports})
}

// YAMLFormatter formats output as YAML documents
type YAMLFormatter struct {
	Verbose bool
}

func (f *YAMLFormatter) marshal(v interface{}) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: failed to marshal output: %s\n", err)
	}
	return "---\n" + string(out)
}

// FormatRequest formats a request as YAML when verbose
func (f *YAMLFormatter) FormatRequest(spec *curl.Spec) string {
	if !f.Verbose {
		return ""
	}
	return f.marshal(map[string]RequestData{"request": NewRequestData(spec)})
}

// FormatResult formats a result as YAML
func (f *YAMLFormatter) FormatResult(result *curl.Result) string {
	return f.marshal(NewResultData(result))
}

// FormatErrors formats errors as YAML
func (f *YAMLFormatter) FormatErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return f.marshal(map[string][]string{"errors": errs})
}

// FormatSummary formats a summary as YAML
func (f *YAMLFormatter) FormatSummary(s stats.Summary) string {
	return f.marshal(map[string]SummaryData{"summary": NewSummaryData(s)})
}

// FormatRun formats each run report as its own YAML document
func (f *YAMLFormatter) FormatRun(reports ...RunReport) string {
	var b strings.Builder
	for _, report := range reports {
		b.WriteString(f.marshal(report))
	}
	return b.String()
}

// JUnitFormatter renders request file runs as JUnit XML. Single executions
// produce no output in this format.
type JUnitFormatter struct {
	SuiteName string
}

// JUnitTestSuites is the root element of a JUnit report
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Time       string           `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one request file
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase is one request
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure describes why a request failed
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

func (f *JUnitFormatter) FormatRequest(*curl.Spec) string    { return "" }
func (f *JUnitFormatter) FormatResult(*curl.Result) string   { return "" }
func (f *JUnitFormatter) FormatErrors([]string) string       { return "" }
func (f *JUnitFormatter) FormatSummary(stats.Summary) string { return "" }

// FormatRun formats run reports as JUnit XML, one test suite per file
func (f *JUnitFormatter) FormatRun(reports ...RunReport) string {
	root := JUnitTestSuites{}
	var total int64
	for _, report := range reports {
		suite := f.suite(report)
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.TestSuites = append(root.TestSuites, suite)
		total += report.DurationMs
	}
	root.Time = seconds(total)

	out, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Sprintf("<!-- failed to marshal report: %s -->\n", err)
	}
	return xml.Header + string(out) + "\n"
}

func (f *JUnitFormatter) suite(report RunReport) JUnitTestSuite {
	name := report.File
	if f.SuiteName != "" {
		name = f.SuiteName
	}

	suite := JUnitTestSuite{
		Name:      name,
		Tests:     report.Total,
		Failures:  report.Failed,
		Time:      seconds(report.DurationMs),
		Timestamp: report.Timestamp,
	}
	for _, step := range report.Steps {
		tc := JUnitTestCase{Name: step.Name, ClassName: name, Time: seconds(step.DurationMs)}
		if !step.Passed {
			failure := &JUnitFailure{Type: "AssertionError", Message: step.Error}
			if step.Error != "" {
				failure.Type = "TransportError"
			}
			for _, check := range step.Checks {
				if !check.Passed {
					if failure.Message == "" {
						failure.Message = check.Message
					}
					failure.Content += check.Name + ": " + check.Message + "\n"
				}
			}
			tc.Failure = failure
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	return suite
}

func seconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}

// GetFormatter returns the appropriate formatter for the given format
func GetFormatter(format OutputFormat, verbose bool, noColor bool) FormatProvider {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Verbose: verbose, Pretty: !noColor}
	case FormatYAML:
		return &YAMLFormatter{Verbose: verbose}
	case FormatJUnit:
		return &JUnitFormatter{}
	default:
		return NewFormatter(verbose, noColor)
	}
}
