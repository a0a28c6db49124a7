// Package stats aggregates latencies of repeated executions.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Range: 1 microsecond to 1 hour, 3 significant figures.
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// Recorder collects per-execution latencies and outcomes.
//
// Recorder is safe for concurrent use. HDR histogram RecordValue is not,
// so the histogram is guarded by a mutex while counters are atomic.
type Recorder struct {
	hist   *hdrhistogram.Histogram
	histMu sync.Mutex

	statusMu sync.Mutex
	statuses map[int]int64

	total    atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64

	start time.Time
}

// Summary is a point-in-time view of a Recorder.
type Summary struct {
	Count    int64         `json:"count" yaml:"count"`
	Failures int64         `json:"failures" yaml:"failures"`
	Bytes    int64         `json:"bytes" yaml:"bytes"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
	Min      time.Duration `json:"min" yaml:"min"`
	Mean     time.Duration `json:"mean" yaml:"mean"`
	P50      time.Duration `json:"p50" yaml:"p50"`
	P90      time.Duration `json:"p90" yaml:"p90"`
	P99      time.Duration `json:"p99" yaml:"p99"`
	Max      time.Duration `json:"max" yaml:"max"`
	// Statuses counts responses by status code; failed transactions are
	// recorded under 0.
	Statuses map[int]int64 `json:"statuses" yaml:"statuses"`
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		hist:     hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
		statuses: make(map[int]int64),
		start:    time.Now(),
	}
}

// Record adds one execution. status is 0 when the transaction failed.
func (r *Recorder) Record(latency time.Duration, status int, ok bool, bytes int64) {
	micros := latency.Microseconds()
	if micros < histogramMin {
		micros = histogramMin
	}
	if micros > histogramMax {
		micros = histogramMax
	}

	r.histMu.Lock()
	r.hist.RecordValue(micros)
	r.histMu.Unlock()

	r.statusMu.Lock()
	r.statuses[status]++
	r.statusMu.Unlock()

	r.total.Add(1)
	r.bytes.Add(bytes)
	if !ok {
		r.failures.Add(1)
	}
}

// Summary returns the aggregated statistics so far.
func (r *Recorder) Summary() Summary {
	s := Summary{
		Count:    r.total.Load(),
		Failures: r.failures.Load(),
		Bytes:    r.bytes.Load(),
		Elapsed:  time.Since(r.start),
		Statuses: make(map[int]int64),
	}

	r.statusMu.Lock()
	for code, n := range r.statuses {
		s.Statuses[code] = n
	}
	r.statusMu.Unlock()

	if s.Count == 0 {
		return s
	}

	r.histMu.Lock()
	defer r.histMu.Unlock()
	s.Min = micros(r.hist.Min())
	s.Mean = micros(int64(r.hist.Mean()))
	s.P50 = micros(r.hist.ValueAtQuantile(50))
	s.P90 = micros(r.hist.ValueAtQuantile(90))
	s.P99 = micros(r.hist.ValueAtQuantile(99))
	s.Max = micros(r.hist.Max())
	return s
}

// SuccessRate returns the fraction of executions that succeeded.
func (s Summary) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Count-s.Failures) / float64(s.Count)
}

// Throughput returns executions per second over the elapsed time.
func (s Summary) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Count) / s.Elapsed.Seconds()
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
