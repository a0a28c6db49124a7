package curl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transports lists every Transport the execution tests run against.
var transports = map[string]func() Transport{
	"resty":    func() Transport { return NewRestyTransport() },
	"net/http": func() Transport { return NewHTTPTransport() },
}

func TestCurl_MutatorsReturnSameInstance(t *testing.T) {
	c := New("application/json")

	mutators := map[string]func() *Curl{
		"URL":                   func() *Curl { return c.URL("https://example.com") },
		"UserAgent":             func() *Curl { return c.UserAgent("Google Chrome") },
		"AddHeader":             func() *Curl { return c.AddHeader("x-app-id: 123") },
		"AddHeader empty":       func() *Curl { return c.AddHeader("") },
		"AppendHeader":          func() *Curl { return c.AppendHeader("X-A: b") },
		"ClearHeaders":          func() *Curl { return c.ClearHeaders() },
		"Timeout":               func() *Curl { return c.Timeout(1) },
		"ReturnTransfer":        func() *Curl { return c.ReturnTransfer(true) },
		"PostFields":            func() *Curl { return c.PostFields(map[string]string{"name": "xyz"}) },
		"PostString":            func() *Curl { return c.PostString("name=xyz") },
		"SSLVerifyHost":         func() *Curl { return c.SSLVerifyHost(true) },
		"SSLVerifyPeer":         func() *Curl { return c.SSLVerifyPeer(true) },
		"RootCAs":               func() *Curl { return c.RootCAs(nil) },
		"FollowLocation":        func() *Curl { return c.FollowLocation(true) },
		"MaxRedirects":          func() *Curl { return c.MaxRedirects(3) },
		"UserPwd":               func() *Curl { return c.UserPwd("user:pass") },
		"CustomRequest":         func() *Curl { return c.CustomRequest("PUT") },
		"BodyMethodPolicy":      func() *Curl { return c.BodyMethodPolicy(KeepEntityMethods) },
		"Output":                func() *Curl { return c.Output(io.Discard) },
		"Transport":             func() *Curl { return c.Transport(nil) },
		"Logger":                func() *Curl { return c.Logger(nil) },
		"ValidationErrors":      func() *Curl { return c.ValidationErrors("boom") },
		"ValidationErrors none": func() *Curl { return c.ValidationErrors() },
		"ClearValidationErrors": func() *Curl { return c.ClearValidationErrors() },
	}

	for name, mutate := range mutators {
		t.Run(name, func(t *testing.T) {
			assert.Same(t, c, mutate())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	spec := New().Build()

	assert.Equal(t, DefaultUserAgent, spec.UserAgent())
	assert.Equal(t, 86400*time.Second, spec.Timeout())
	assert.False(t, spec.VerifyHost())
	assert.False(t, spec.VerifyPeer())
	assert.False(t, spec.FollowRedirects())
	assert.Equal(t, http.MethodGet, spec.Method())
	assert.Empty(t, spec.HeaderLines())
	assert.True(t, spec.Body().IsEmpty())
	_, _, ok := spec.Credentials()
	assert.False(t, ok)
}

func TestNew_ContentTypeSeedsHeader(t *testing.T) {
	c := New("application/json")
	assert.Equal(t, []string{"Content-Type: application/json"}, c.Headers())
}

func TestCurl_AddHeader(t *testing.T) {
	c := New().AddHeader("X-One: 1").AddHeader("X-Two: 2")
	assert.Equal(t, []string{"X-One: 1", "X-Two: 2"}, c.Headers())

	c.AddHeader("X-Three: 3")
	assert.Equal(t, []string{"X-One: 1", "X-Two: 2", "X-Three: 3"}, c.Headers())

	c.AddHeader("")
	assert.Empty(t, c.Headers())
	assert.NotNil(t, c.Headers())
}

func TestCurl_AppendAndClearHeaders(t *testing.T) {
	c := New("text/plain").AppendHeader("").AppendHeader("X-A: b")
	assert.Equal(t, []string{"Content-Type: text/plain", "X-A: b"}, c.Headers())

	c.ClearHeaders()
	assert.Empty(t, c.Headers())
}

func TestCurl_ValidationErrors(t *testing.T) {
	c := New()

	errs, ok := c.GetValidationErrors()
	assert.False(t, ok)
	assert.Nil(t, errs)

	c.ValidationErrors()
	_, ok = c.GetValidationErrors()
	assert.False(t, ok, "injecting nothing must not create an error list")

	c.ValidationErrors("first", "second")
	errs, ok = c.GetValidationErrors()
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second"}, errs)

	c.ValidationErrors()
	errs, _ = c.GetValidationErrors()
	assert.Equal(t, []string{"first", "second"}, errs, "empty injection is a no-op")

	c.ClearValidationErrors()
	_, ok = c.GetValidationErrors()
	assert.False(t, ok)
}

func TestCurl_StatusCodeBeforeExecute(t *testing.T) {
	code, ok := New().StatusCode()
	assert.False(t, ok)
	assert.Zero(t, code)
	assert.Nil(t, New().Result())
	assert.NoError(t, New().Err())
}

func TestCurl_Execute_ReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().URL(server.URL).ReturnTransfer(true).Transport(newTransport())

			body, ok := c.Execute()
			require.True(t, ok)
			assert.Equal(t, "ok", body)

			code, executed := c.StatusCode()
			assert.True(t, executed)
			assert.Equal(t, http.StatusOK, code)

			_, hasErrors := c.GetValidationErrors()
			assert.False(t, hasErrors)
			assert.NoError(t, c.Err())
		})
	}
}

func TestCurl_Execute_WritesBodyToOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("streamed"))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			c := New().URL(server.URL).Output(&out).Transport(newTransport())

			body, ok := c.Execute()
			require.True(t, ok)
			assert.Empty(t, body)
			assert.Equal(t, "streamed", out.String())
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCurl_Execute_OutputWriteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	c := New().URL(server.URL).Output(failingWriter{})
	_, ok := c.Execute()
	assert.False(t, ok)

	errs, hasErrors := c.GetValidationErrors()
	require.True(t, hasErrors)
	assert.Contains(t, errs[0], "disk full")
}

func TestCurl_Execute_BodyForcesPostWithCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(r.Method + " " + string(body)))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().
				URL(server.URL).
				UserPwd("user:pass").
				CustomRequest("PUT").
				PostString("a=1").
				ReturnTransfer(true).
				Transport(newTransport())

			body, ok := c.Execute()
			require.True(t, ok)
			assert.Equal(t, "POST a=1", body)
			code, _ := c.StatusCode()
			assert.Equal(t, http.StatusOK, code)
		})
	}
}

func TestCurl_Execute_KeepEntityMethods(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(r.Method + " " + string(body)))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			body, ok := New("application/json").
				URL(server.URL).
				CustomRequest("PUT").
				PostString(`{"id":1}`).
				BodyMethodPolicy(KeepEntityMethods).
				ReturnTransfer(true).
				Transport(newTransport()).
				Execute()

			require.True(t, ok)
			assert.Equal(t, `PUT {"id":1}`, body)
		})
	}
}

func TestCurl_Execute_CustomMethodWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Method))
	}))
	defer server.Close()

	body, ok := New().URL(server.URL).CustomRequest("DELETE").ReturnTransfer(true).Execute()
	require.True(t, ok)
	assert.Equal(t, "DELETE", body)
}

func TestCurl_Execute_FormFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write([]byte(r.Method + " " + r.FormValue("name") + " " + r.FormValue("email")))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().
				URL(server.URL).
				PostFields(map[string]string{"name": "New User", "email": "new.user@example.com"}).
				ReturnTransfer(true).
				Transport(newTransport())

			body, ok := c.Execute()
			require.True(t, ok)
			assert.Equal(t, "POST New User new.user@example.com", body)
		})
	}
}

func TestCurl_Execute_HeadersAndUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Join([]string{
			r.UserAgent(),
			strings.Join(r.Header.Values("X-Multi"), ","),
			r.Header.Get("Content-Type"),
		}, "|")))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			body, ok := New().
				URL(server.URL).
				AddHeader("X-Multi: one").
				AddHeader("X-Multi: two").
				AddHeader("no colon here").
				PostString("q=1").
				ReturnTransfer(true).
				Transport(newTransport()).
				Execute()
			require.True(t, ok)
			assert.Equal(t, "Curl/1.0|one,two|application/x-www-form-urlencoded", body)

			body, ok = New().
				URL(server.URL).
				UserAgent("Google Chrome").
				AddHeader("User-Agent: from-header").
				ReturnTransfer(true).
				Transport(newTransport()).
				Execute()
			require.True(t, ok)
			assert.Equal(t, "from-header||", body)
		})
	}
}

func TestCurl_Execute_RemoteErrorIsNotAFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"missing"}`))
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().URL(server.URL).ReturnTransfer(true).Transport(newTransport())
			body, ok := c.Execute()
			require.True(t, ok)
			assert.Equal(t, `{"error":"missing"}`, body)
			code, _ := c.StatusCode()
			assert.Equal(t, http.StatusNotFound, code)
			_, hasErrors := c.GetValidationErrors()
			assert.False(t, hasErrors)
		})
	}
}

func TestCurl_Execute_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old-url", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new-url", http.StatusFound)
	})
	mux.HandleFunc("/new-url", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("arrived"))
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().URL(server.URL + "/old-url").ReturnTransfer(true).Transport(newTransport())
			_, ok := c.Execute()
			require.True(t, ok)
			code, _ := c.StatusCode()
			assert.Equal(t, http.StatusFound, code)

			c.FollowLocation(true)
			body, ok := c.Execute()
			require.True(t, ok)
			assert.Equal(t, "arrived", body)
			code, _ = c.StatusCode()
			assert.Equal(t, http.StatusOK, code)

			loop := New().URL(server.URL + "/loop").FollowLocation(true).MaxRedirects(2).
				ReturnTransfer(true).Transport(newTransport())
			_, ok = loop.Execute()
			assert.False(t, ok)
			errs, hasErrors := loop.GetValidationErrors()
			require.True(t, hasErrors)
			assert.Len(t, errs, 1)
		})
	}
}

func TestCurl_Execute_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().URL(server.URL).Timeout(1).ReturnTransfer(true).Transport(newTransport())

			body, ok := c.Execute()
			assert.False(t, ok)
			assert.Empty(t, body)

			errs, hasErrors := c.GetValidationErrors()
			require.True(t, hasErrors)
			require.Len(t, errs, 1)
			assert.True(t, strings.HasPrefix(errs[0], "Curl error: "))

			var transportErr *TransportError
			require.ErrorAs(t, c.Err(), &transportErr)
			assert.Equal(t, KindTimeout, transportErr.Kind)

			code, executed := c.StatusCode()
			assert.True(t, executed)
			assert.Zero(t, code)
		})
	}
}

func TestCurl_Execute_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().URL("http://" + addr).ReturnTransfer(true).Transport(newTransport())
			_, ok := c.Execute()
			assert.False(t, ok)

			var transportErr *TransportError
			require.ErrorAs(t, c.Err(), &transportErr)
			assert.Equal(t, KindConnection, transportErr.Kind)
		})
	}
}

func TestCurl_Execute_MissingURL(t *testing.T) {
	for name, newTransport := range transports {
		t.Run(name, func(t *testing.T) {
			c := New().ReturnTransfer(true).Transport(newTransport())
			_, ok := c.Execute()
			assert.False(t, ok)
			errs, hasErrors := c.GetValidationErrors()
			require.True(t, hasErrors)
			assert.Len(t, errs, 1)
		})
	}
}

func TestCurl_Execute_IsRepeatable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("same"))
	}))
	defer server.Close()

	c := New().URL(server.URL).ReturnTransfer(true)

	first, ok := c.Execute()
	require.True(t, ok)
	firstCode, _ := c.StatusCode()

	second, ok := c.Execute()
	require.True(t, ok)
	secondCode, _ := c.StatusCode()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, firstCode, secondCode)
	assert.Equal(t, http.StatusAccepted, secondCode)
}

func TestCurl_Execute_ResetsPreviousErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New().URL(server.URL).ReturnTransfer(true).ValidationErrors("stale")
	_, ok := c.Execute()
	require.True(t, ok)

	_, hasErrors := c.GetValidationErrors()
	assert.False(t, hasErrors)
}

// recordingTransport counts sessions and returns a canned outcome.
type recordingTransport struct {
	opened  int
	closed  int
	openErr error
	err     error
	resp    *Response
	spec    *Spec
}

func (r *recordingTransport) Open(spec *Spec) (Session, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.opened++
	r.spec = spec
	return r, nil
}

func (r *recordingTransport) Perform(ctx context.Context) (*Response, error) {
	return r.resp, r.err
}

func (r *recordingTransport) Close() error {
	r.closed++
	return nil
}

func TestCurl_Execute_AlwaysClosesSession(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		resp   *Response
		wantOK bool
	}{
		{
			name:   "success",
			resp:   &Response{StatusCode: 200, Body: []byte("ok")},
			wantOK: true,
		},
		{
			name:   "failure",
			err:    errors.New("connection reset by peer"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &recordingTransport{err: tt.err, resp: tt.resp}
			c := New().URL("http://example.invalid").ReturnTransfer(true).Transport(transport)

			_, ok := c.Execute()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, 1, transport.opened)
			assert.Equal(t, 1, transport.closed)
		})
	}
}

func TestCurl_Execute_OpenFailure(t *testing.T) {
	transport := &recordingTransport{openErr: errors.New("no handles left")}
	c := New().URL("http://example.com").Transport(transport)

	_, ok := c.Execute()
	assert.False(t, ok)
	errs, _ := c.GetValidationErrors()
	assert.Equal(t, []string{"Curl error: no handles left"}, errs)
}

func TestCurl_Execute_PassesSnapshotToTransport(t *testing.T) {
	transport := &recordingTransport{resp: &Response{StatusCode: 204}}
	c := New().
		URL("https://api.example.com/users").
		UserPwd("username:password").
		AddHeader("X-API-Key: your_api_key").
		Timeout(5).
		Transport(transport)

	_, ok := c.Execute()
	require.True(t, ok)

	c.AddHeader("X-Late: 1").Timeout(9)

	spec := transport.spec
	assert.Equal(t, []string{"X-API-Key: your_api_key"}, spec.HeaderLines())
	assert.Equal(t, 5*time.Second, spec.Timeout())
	user, pass, ok := spec.Credentials()
	assert.True(t, ok)
	assert.Equal(t, "username", user)
	assert.Equal(t, "password", pass)
}
