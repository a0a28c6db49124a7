package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/denniscarrazeiro/php-curl-module/curl"
)

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Substitute replaces ${name} references with values from vars. Unknown
// references are left as they are.
func Substitute(input string, vars map[string]string) string {
	return substitute(input, vars, func(value string) string { return value })
}

// SubstituteJSON is Substitute for a JSON document: values are escaped so
// that quotes or backslashes inside them keep the enclosing string valid.
func SubstituteJSON(input string, vars map[string]string) string {
	return substitute(input, vars, escapeJSON)
}

func substitute(input string, vars map[string]string, encode func(string) string) string {
	if len(vars) == 0 {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(ref string) string {
		name := variablePattern.FindStringSubmatch(ref)[1]
		if value, ok := vars[name]; ok {
			return encode(value)
		}
		return ref
	})
}

func escapeJSON(value string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(value)
	quoted := bytes.TrimSpace(buf.Bytes())
	return string(quoted[1 : len(quoted)-1])
}

// Unresolved returns the ${name} references still present in input.
func Unresolved(input string) []string {
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		names = append(names, m[1])
	}
	return names
}

// Builder returns a fresh descriptor for request i with variables applied.
// File variables are overridden by vars.
func (f *RequestFile) Builder(i int, defaults Defaults, vars map[string]string) (*curl.Curl, error) {
	if i < 0 || i >= len(f.Requests) {
		return nil, fmt.Errorf("request index %d out of range (%d requests)", i, len(f.Requests))
	}
	merged := make(map[string]string, len(f.Variables)+len(vars))
	for k, v := range f.Variables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return f.Requests[i].Builder(defaults, merged)
}

// Builder applies defaults and then the request's own settings.
func (r Request) Builder(defaults Defaults, vars map[string]string) (*curl.Curl, error) {
	target := Substitute(r.URL, vars)
	if missing := Unresolved(target); len(missing) > 0 {
		return nil, fmt.Errorf("unresolved variable %q in url", missing[0])
	}

	contentType := r.ContentType
	if contentType == "" && len(r.JSON) > 0 {
		contentType = "application/json"
	}

	var c *curl.Curl
	if contentType != "" {
		c = curl.New(contentType)
	} else {
		c = curl.New()
	}

	c.URL(target).
		UserAgent(defaults.UserAgent).
		Timeout(defaults.Timeout).
		SSLVerifyHost(defaults.VerifyHost).
		SSLVerifyPeer(defaults.VerifyPeer).
		FollowLocation(defaults.FollowRedirects).
		MaxRedirects(defaults.MaxRedirects)

	if r.UserAgent != "" {
		c.UserAgent(Substitute(r.UserAgent, vars))
	}
	if r.Timeout != nil {
		c.Timeout(*r.Timeout)
	}
	if r.VerifyHost != nil {
		c.SSLVerifyHost(*r.VerifyHost)
	}
	if r.VerifyPeer != nil {
		c.SSLVerifyPeer(*r.VerifyPeer)
	}
	if r.FollowRedirects != nil {
		c.FollowLocation(*r.FollowRedirects)
	}
	if r.MaxRedirects != nil {
		c.MaxRedirects(*r.MaxRedirects)
	}

	for _, header := range defaults.Headers {
		c.AppendHeader(header)
	}
	for _, header := range r.Headers {
		c.AppendHeader(Substitute(header, vars))
	}
	if r.Method != "" {
		c.CustomRequest(r.Method)
	}
	if r.KeepMethod {
		c.BodyMethodPolicy(curl.KeepEntityMethods)
	}
	if r.Credentials != "" {
		c.UserPwd(Substitute(r.Credentials, vars))
	}

	switch {
	case len(r.Form) > 0:
		fields := make(map[string]string, len(r.Form))
		for k, v := range r.Form {
			fields[k] = Substitute(v, vars)
		}
		c.PostFields(fields)
	case len(r.JSON) > 0:
		c.PostString(SubstituteJSON(string(r.JSON), vars))
	case r.Body != "":
		c.PostString(Substitute(r.Body, vars))
	}

	return c, nil
}
