// Package curl provides a fluent HTTP request builder that performs exactly
// one blocking HTTP transaction per execution and reports its outcome.
//
// A Curl value accumulates request configuration through chained mutators and
// holds the result of its most recent execution:
//
//	c := curl.New("application/json")
//	body, ok := c.URL("https://api.example.com/users").
//	    AddHeader("X-API-Key: secret").
//	    PostString(`{"name":"New User"}`).
//	    ReturnTransfer(true).
//	    Execute()
//	if !ok {
//	    errs, _ := c.GetValidationErrors()
//	    log.Fatal(strings.Join(errs, ", "))
//	}
//	status, _ := c.StatusCode()
//	fmt.Println(status, body)
//
// Transport failures (timeouts, DNS errors, refused connections, TLS errors)
// never surface as Go errors from Execute. They are reported by a false ok
// value together with a single "Curl error: ..." entry in the error list.
// A non-2xx response is a completed transaction; inspect StatusCode.
//
// Stateless Usage:
//
// Build snapshots a Curl into an immutable Spec. Do performs one transaction
// for a Spec and returns a distinct Result, leaving the Spec untouched:
//
//	spec := curl.New().URL("https://example.com").Timeout(5).Build()
//	res := curl.Do(ctx, curl.NewRestyTransport(), spec)
//	if res.Err != nil {
//	    log.Fatal(res.Err)
//	}
//
// Thread Safety:
//
// A Curl is not safe for concurrent use; create one per request. Spec values
// are immutable and may be shared between goroutines.
package curl
