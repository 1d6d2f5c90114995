package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/beaconspec/packages/browser/browsertest"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/runner"
)

const runBody = `{
  "test": {
    "name": "Add to cart",
    "steps": [
      {"action": "goto", "value": "https://x.example.com/"},
      {"action": "test", "test": {
        "id": 1, "name": "cart event", "type": "requestMatchRegex",
        "for": "GA", "match": {"key": "ea", "value": "add_to_cart"},
        "options": {"matchAnyRequest": true}
      }}
    ]
  },
  "options": {"trackRequests": [{"name": "GA", "url": "/collect"}]}
}`

func newTestServer(t *testing.T, l *browsertest.Launcher, opts ...Option) *Server {
	t.Helper()
	cfg := runner.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.TypeDelay = 0
	return NewServer(runner.NewRunner(cfg, runner.WithLauncher(l)), opts...)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestHandleRun_Pass(t *testing.T) {
	l := &browsertest.Launcher{
		Routes: map[string][]string{
			"https://x.example.com/": {"https://www.google-analytics.com/collect?ea=add_to_cart"},
		},
	}
	s := newTestServer(t, l)

	for _, path := range []string{"/", "/run"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, path, runBody)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var out []ResultJSON
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, []ResultJSON{{ID: "1", Name: "cart event", Result: "PASS"}}, out)
		})
	}
}

func TestHandleRun_Fail(t *testing.T) {
	l := &browsertest.Launcher{
		Routes: map[string][]string{
			"https://x.example.com/": {"https://www.google-analytics.com/collect?ea=page_view"},
		},
	}
	s := newTestServer(t, l)

	rec := do(t, s, http.MethodPost, "/", runBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "FAIL", out[0]["result"])
	assert.NotEmpty(t, out[0]["message"])
}

func TestHandleRun_IgnoresProcessEnvironment(t *testing.T) {
	t.Setenv("BEACONSPEC_TEST_SECRET", "hunter2")
	l := &browsertest.Launcher{
		Routes: map[string][]string{
			"https://x.example.com/": {"https://www.google-analytics.com/collect?ea=page_view"},
		},
	}
	s := newTestServer(t, l)

	body := strings.Replace(runBody, `"value": "add_to_cart"`, `"value": "{{BEACONSPEC_TEST_SECRET}}"`, 1)
	rec := do(t, s, http.MethodPost, "/", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.NotContains(t, rec.Body.String(), "hunter2")
	var out []ResultJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Message, "{{BEACONSPEC_TEST_SECRET}}")
}

func TestHandleRun_RejectsNonPost(t *testing.T) {
	l := &browsertest.Launcher{}
	s := newTestServer(t, l)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := do(t, s, method, "/", runBody)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, msgInvalidMethod, decodeError(t, rec))
		})
	}
	assert.Empty(t, l.Launches())
}

func TestHandleRun_RejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", ``, msgInvalidTest},
		{"not json", `test=1`, msgInvalidTest},
		{"array body", `[]`, msgInvalidTest},
		{"missing test", `{"options": {}}`, msgInvalidTest},
		{"test is string", `{"test": "goto"}`, msgInvalidTest},
		{"test is array", `{"test": []}`, msgInvalidTest},
		{"options is string", `{"test": {"name": "x", "steps": []}, "options": "fast"}`, msgInvalidOptions},
		{"options is array", `{"test": {"name": "x", "steps": []}, "options": []}`, msgInvalidOptions},
	}

	l := &browsertest.Launcher{}
	s := newTestServer(t, l)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec))
		})
	}
	assert.Empty(t, l.Launches())
}

func TestHandleRun_ValidationError(t *testing.T) {
	l := &browsertest.Launcher{}
	s := newTestServer(t, l)

	body := `{"test": {"name": "x", "steps": [{"action": "scroll", "value": 1}]}}`
	rec := do(t, s, http.MethodPost, "/", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
	assert.Empty(t, l.Launches())
}

func TestHandleRun_StepFailure(t *testing.T) {
	l := &browsertest.Launcher{Elements: []string{}}
	s := newTestServer(t, l)

	body := `{"test": {"name": "x", "steps": [{"action": "click", "element": "#missing"}]}}`
	rec := do(t, s, http.MethodPost, "/", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "#missing")

	require.Len(t, l.Browsers(), 1)
	assert.Equal(t, 1, l.Browsers()[0].Closed())
}

func TestHandleRun_BodyTooLarge(t *testing.T) {
	l := &browsertest.Launcher{}
	s := newTestServer(t, l, WithMaxBodyBytes(16))

	rec := do(t, s, http.MethodPost, "/", runBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, l.Launches())
}

func TestHandleRun_RateLimitQueues(t *testing.T) {
	l := &browsertest.Launcher{}
	s := newTestServer(t, l, WithRateLimit(20, 1))

	body := `{"test": {"name": "x", "steps": []}}`
	start := time.Now()
	for i := 0; i < 3; i++ {
		rec := do(t, s, http.MethodPost, "/", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	// Two runs beyond the burst wait about 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, l.Launches(), 3)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &browsertest.Launcher{})
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_RunAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer(t, &browsertest.Launcher{}, WithListener(ln))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
