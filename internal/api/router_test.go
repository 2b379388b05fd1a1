package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nemo-admissions/nemo-relay/internal/handlers"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type pipeRuntime struct {
	body string
}

func (p pipeRuntime) Invoke(context.Context, string, []byte) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(p.body)), nil
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()

	relay := handlers.NewRelay(pipeRuntime{body: "data: {\"final_result\": \"Hello\"}\n\n"}, discard)
	srv := httptest.NewServer(NewRouter(relay, opts, discard))
	t.Cleanup(srv.Close)
	return srv
}

func postInvocation(t *testing.T, srv *httptest.Server) *http.Response {
	t.Helper()

	resp, err := http.Post(srv.URL+"/invocations", "application/json",
		strings.NewReader(`{"runtimeSessionId":"abc","payload":{"prompt":"hi"}}`))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouterRelaysThroughMiddleware(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := postInvocation(t, srv)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "data: {\"final_result\": \"Hello\"}\n\n", string(body))
}

func TestRouterHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	postInvocation(t, srv)

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return strings.Contains(string(body), `nemo_relay_invocations_total{outcome="streamed"}`) &&
			strings.Contains(string(body), `nemo_http_requests_total{method="GET",path="/healthz",status="200"}`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouterCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/invocations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://admissions.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouterRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 2}})

	require.Equal(t, http.StatusOK, postInvocation(t, srv).StatusCode)
	require.Equal(t, http.StatusOK, postInvocation(t, srv).StatusCode)

	resp := postInvocation(t, srv)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestRateLimiterRefillsAndEvicts(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, discard)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	require.True(t, rl.Allow("10.0.0.1"))

	now = now.Add(visitorIdleTTL + time.Minute)
	require.True(t, rl.Allow("10.0.0.3"))
	require.Len(t, rl.visitors, 1)
}
