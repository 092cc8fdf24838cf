package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/metrics"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestLimiters builds one limiter per algorithm, each admitting n requests
// per client at a single instant.
func newTestLimiters(t *testing.T, vc *clock.VirtualClock, n int, opts ...limiter.Option) []limiter.RateLimiter {
	t.Helper()
	base := []limiter.Option{limiter.WithClock(vc), limiter.WithSweepInterval(0)}
	var out []limiter.RateLimiter
	for _, alg := range limiter.Algorithms {
		p := limiter.Policy{Limit: n, Window: time.Minute}
		switch alg {
		case limiter.AlgorithmTokenBucket:
			p = limiter.Policy{Capacity: n, RefillRate: 1}
		case limiter.AlgorithmLeakyBucket:
			p = limiter.Policy{Capacity: n, LeakInterval: time.Second}
		}
		lim, err := limiter.New(alg, p, append(base, opts...)...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = lim.Close() })
		out = append(out, lim)
	}
	return out
}

func newTestServer(t *testing.T, limiters []limiter.RateLimiter, vc *clock.VirtualClock, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	srv, err := New("127.0.0.1:0", vc, limiters, opts...)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Root(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 5), vc)

	rec := do(t, srv.Handler(), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Service    string   `json:"service"`
		Status     string   `json:"status"`
		Time       string   `json:"time"`
		Algorithms []string `json:"algorithms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gatekeeper", body.Service)
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, epoch.Format(time.RFC3339), body.Time)
	assert.Len(t, body.Algorithms, len(limiter.Algorithms))
}

func TestServer_Health(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 5), vc)

	rec := do(t, srv.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_NotFound(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 5), vc)

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/nonexistent").Code)
}

func TestServer_DuplicateAlgorithm(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	lims := newTestLimiters(t, vc, 5)

	_, err := New(":0", vc, []limiter.RateLimiter{lims[0], lims[0]})
	assert.Error(t, err)
}

func TestServer_RateLimitEndpoint(t *testing.T) {
	routes := map[string]limiter.Algorithm{
		"fixedwindow":   limiter.AlgorithmFixedWindow,
		"tokenbucket":   limiter.AlgorithmTokenBucket,
		"leakybucket":   limiter.AlgorithmLeakyBucket,
		"slidinglog":    limiter.AlgorithmSlidingLog,
		"slidingwindow": limiter.AlgorithmSlidingWindow,
	}
	for route, alg := range routes {
		t.Run(route, func(t *testing.T) {
			vc := clock.NewVirtualClock(epoch)
			srv := newTestServer(t, newTestLimiters(t, vc, 2), vc)
			target := "/api/ratelimit/" + route

			for i := 0; i < 2; i++ {
				rec := do(t, srv.Handler(), http.MethodGet, target)
				require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
				assert.Equal(t, alg.DisplayName()+" Rate Limiting endpoint.", rec.Body.String())
				assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
				assert.Equal(t, []string{"1", "0"}[i], rec.Header().Get("X-RateLimit-Remaining"))
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}

			rec := do(t, srv.Handler(), http.MethodGet, target)
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, TooManyRequestsMessage(alg), rec.Body.String())
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
		})
	}
}

func TestServer_RateLimitEndpoint_SeparateAlgorithms(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 1), vc)

	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/ratelimit/fixedwindow").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv.Handler(), http.MethodGet, "/api/ratelimit/fixedwindow").Code)
	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/ratelimit/slidinglog").Code)
}

func TestServer_RateLimitEndpoint_UnknownOrDisabled(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	lims := newTestLimiters(t, vc, 1)
	srv := newTestServer(t, lims[:1], vc)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/ratelimit/bogus")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown algorithm")

	rec = do(t, srv.Handler(), http.MethodGet, "/api/ratelimit/tokenbucket")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not enabled")
}

func TestServer_CheckKey(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 2), vc)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/api/check/fixed_window/alice")
		require.Equal(t, http.StatusOK, rec.Code)

		var d limiter.Decision
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
		assert.Equal(t, 2, d.Limit)
	}

	rec := do(t, h, http.MethodGet, "/api/check/fixed_window/alice")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var d limiter.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.False(t, d.Allowed)
	assert.Equal(t, epoch.Add(time.Minute), d.RetryAt)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Keys are independent.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/check/fixed_window/bob").Code)

	// The window rolls with the virtual clock.
	vc.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/check/fixed_window/alice").Code)
}

func TestServer_ResetKey(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 1), vc)
	h := srv.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/check/tokenbucket/alice").Code)
	require.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/check/tokenbucket/alice").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/check/tokenbucket/alice").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/check/tokenbucket/alice").Code)
}

func TestServer_Metrics(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	m := metrics.NewCollector(prometheus.NewRegistry())
	srv := newTestServer(t, newTestLimiters(t, vc, 1, limiter.WithObserver(m)), vc, WithMetrics(m))
	h := srv.Handler()

	do(t, h, http.MethodGet, "/api/check/slidingwindow/alice")
	do(t, h, http.MethodGet, "/api/check/slidingwindow/alice")

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `gatekeeper_decisions_total{algorithm="sliding_window",result="allowed"} 1`)
	assert.Contains(t, body, `gatekeeper_decisions_total{algorithm="sliding_window",result="denied"} 1`)
	assert.Contains(t, body, `gatekeeper_http_requests_total{code="429",route="/api/check/{algorithm}/{key}"} 1`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv := newTestServer(t, newTestLimiters(t, vc, 1), vc)

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/ws").Code)
}

func TestServer_Recording(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	var buf bytes.Buffer
	rec := recorder.New(&buf)
	srv := newTestServer(t, newTestLimiters(t, vc, 5), vc, WithRecorder(rec))
	h := srv.Handler()

	do(t, h, http.MethodGet, "/api/ratelimit/leakybucket")
	vc.Advance(time.Second)
	do(t, h, http.MethodGet, "/api/check/sliding_log/alice")
	do(t, h, http.MethodGet, "/health")

	records := rec.Records()
	require.Len(t, records, 2, "only API routes are recorded")

	assert.Equal(t, limiter.AlgorithmLeakyBucket, records[0].Algorithm)
	assert.Equal(t, "192.0.2.1", records[0].Key)
	assert.Equal(t, "GET /api/ratelimit/leakybucket", records[0].Endpoint)
	assert.Equal(t, epoch, records[0].Timestamp)

	assert.Equal(t, limiter.AlgorithmSlidingLog, records[1].Algorithm)
	assert.Equal(t, "alice", records[1].Key)
	assert.Equal(t, epoch.Add(time.Second), records[1].Timestamp)
}

func TestServer_WebSocketStreamsDecisions(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	hub := NewHub(zaptest.NewLogger(t))
	srv := newTestServer(t, newTestLimiters(t, vc, 1, limiter.WithObserver(hub)), vc, WithHub(hub))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	res, err := http.Get(ts.URL + "/api/check/token_bucket/alice")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event recorder.DecisionEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, limiter.AlgorithmTokenBucket, event.Algorithm)
	assert.Equal(t, "alice", event.Key)
	assert.True(t, event.Decision.Allowed)
	assert.Equal(t, epoch, event.Time)
	assert.NotEmpty(t, event.ID)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	hub.ObserveDecision(limiter.Event{Algorithm: limiter.AlgorithmFixedWindow, Key: "a"})
	hub.Broadcast(recorder.DecisionEvent{ID: "x"})
	assert.Equal(t, 0, hub.ClientCount())
}
