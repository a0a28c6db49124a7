package curl

import (
	"context"
	"net/http"
	"time"
)

// Transport opens one session per transaction. Implementations configure the
// session from the Spec: method, URL, headers, credentials, body, timeout,
// TLS verification and redirect behaviour.
type Transport interface {
	Open(spec *Spec) (Session, error)
}

// Session performs a single transaction. Close is always called, on success
// and failure alike, and must release any network resources held.
type Session interface {
	Perform(ctx context.Context) (*Response, error)
	Close() error
}

// Response is what a Session reports for a completed transaction.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Timing     Timing
}

// Timing stores the phase durations of one transaction. Phases a transport
// cannot observe stay zero.
type Timing struct {
	// StartTime is when the transaction started
	StartTime time.Time

	// DNSLookup is the time spent resolving the host
	DNSLookup time.Duration

	// TCPConnect is the time spent establishing the TCP connection
	TCPConnect time.Duration

	// TLSHandshake is the time spent in the TLS handshake (HTTPS only)
	TLSHandshake time.Duration

	// TimeToFirstByte is measured from the end of the last connection phase
	TimeToFirstByte time.Duration

	// ContentTransfer is the time spent reading the body
	ContentTransfer time.Duration

	// Total is the time from start to the body being read
	Total time.Duration
}
