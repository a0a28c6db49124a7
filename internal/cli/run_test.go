package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiServer issues a token on POST /login and requires it on GET /me.
func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token": "t0k3n", "user": {"id": 7}}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0k3n" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "name": "alice"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const flowFile = `
requests:
  - name: login
    url: ${base}/login
    json: {"user": "alice"}
    expect:
      status: 200
    extract:
      token: $.token
  - name: profile
    url: ${base}/me
    headers:
      - "Authorization: Bearer ${token}"
    expect:
      status: 200
      values:
        $.name: alice
      schema:
        type: object
        required: [id, name]
      assert:
        - body.id == 7 && headers["Content-Type"] == "application/json"
`

func TestRun_Flow(t *testing.T) {
	server := apiServer(t)
	path := writeFile(t, "flow.yaml", flowFile)

	code, out, errOut := run(t, "run", "--no-color", "--var", "base="+server.URL, path)

	assert.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "✓ login 200")
	assert.Contains(t, out, "✓ profile 200")
	assert.Contains(t, out, "2 requests: 2 passed")
}

func TestRun_FailedExpectation(t *testing.T) {
	server := apiServer(t)
	path := writeFile(t, "flow.yaml", `
requests:
  - name: profile
    url: ${base}/me
    expect:
      status: 200
  - name: login
    url: ${base}/login
    body: "user=alice"
`)

	code, out, _ := run(t, "run", "--no-color", "--var", "base="+server.URL, path)

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "✗ profile 401")
	assert.Contains(t, out, "expected 200, got 401")
	assert.Contains(t, out, "✓ login 200")
	assert.Contains(t, out, "1 passed, 1 failed")
}

func TestRun_FailFast(t *testing.T) {
	server := apiServer(t)
	path := writeFile(t, "flow.yaml", `
requests:
  - {name: first, url: "${base}/me", expect: {status: 200}}
  - {name: second, url: "${base}/login", method: POST}
`)

	code, out, _ := run(t, "run", "--no-color", "--fail-fast", "--var", "base="+server.URL, path)

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "1 requests: 0 passed, 1 failed")
	assert.NotContains(t, out, "second")
}

func TestRun_TransportFailureAndUnresolvedVariable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	dead := server.URL
	server.Close()

	path := writeFile(t, "flow.json", `{"requests": [
		{"name": "down", "url": "`+dead+`"},
		{"name": "templated", "url": "${missing}/x"}
	]}`)

	code, out, _ := run(t, "run", "--no-color", path)

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "✗ down -")
	assert.Contains(t, out, "Curl error:")
	assert.Contains(t, out, `unresolved variable "missing"`)
}

func TestRun_JSONReport(t *testing.T) {
	server := apiServer(t)
	path := writeFile(t, "flow.yaml", flowFile)

	code, out, _ := run(t, "run", "--format", "json", "--var", "base="+server.URL, path)
	require.Equal(t, 0, code)

	var report struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
		Steps  []struct {
			Name   string `json:"name"`
			Checks []struct {
				Name   string `json:"name"`
				Passed bool   `json:"passed"`
			} `json:"checks"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Passed)
	require.Len(t, report.Steps, 2)
	assert.Len(t, report.Steps[1].Checks, 4)
}

func TestRun_JUnitReport(t *testing.T) {
	server := apiServer(t)
	path := writeFile(t, "flow.yaml", flowFile)

	code, out, _ := run(t, "run", "--format", "junit", "--var", "base="+server.URL, path)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `<testsuites tests="2" failures="0"`)
	assert.Contains(t, out, `<testcase name="login"`)
}

func TestRun_InvalidFile(t *testing.T) {
	path := writeFile(t, "bad.yaml", "requests:\n  - method: GET\n")

	code, _, errOut := run(t, "run", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "requests[0]")

	code, _, errOut = run(t, "run", "--var", "novalue", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid --var")

	code, _, errOut = run(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

func TestRun_EnvFile(t *testing.T) {
	server := apiServer(t)
	path := writeFile(t, "flow.yaml", flowFile)
	envFile := writeFile(t, ".env", "base="+server.URL+"\n")

	code, out, errOut := run(t, "run", "--no-color", "--env-file", envFile, path)
	assert.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "2 requests: 2 passed")

	code, out, _ = run(t, "run", "--no-color", "--env-file", envFile, "--var", "base=http://127.0.0.1:1", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Curl error:")

	code, _, errOut = run(t, "run", "--env-file", filepath.Join(t.TempDir(), "nope.env"), path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--env-file")
}

func TestRun_GlobPattern(t *testing.T) {
	server := apiServer(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(flowFile), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.yaml"), []byte(`
requests:
  - {name: me, url: "${base}/me", expect: {status: 401}}
`), 0644))

	code, out, errOut := run(t, "run", "--no-color", "--var", "base="+server.URL, filepath.Join(dir, "**", "*.yaml"))

	assert.Equal(t, 0, code, errOut)
	assert.Contains(t, out, filepath.Join(dir, "a.yaml"))
	assert.Contains(t, out, filepath.Join(dir, "nested", "b.yaml"))
	assert.Contains(t, out, "✓ me 401")
	assert.Contains(t, out, "2 files, 3 requests: 3 passed")

	code, _, errOut = run(t, "run", filepath.Join(dir, "*.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no request files match")
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	paths, err := expandPatterns([]string{filepath.Join(dir, "*.yaml"), filepath.Join(dir, "a.yaml"), "plain.yaml"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yaml"), "plain.yaml"}, paths)
}
