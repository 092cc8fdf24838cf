package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

func testServerConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Server.RecordFile = filepath.Join(t.TempDir(), "traffic.json")
	cfg.Limiter.Algorithms = []limiter.Algorithm{limiter.AlgorithmFixedWindow, limiter.AlgorithmLeakyBucket}
	cfg.Limiter.Policies[limiter.AlgorithmFixedWindow] = limiter.Policy{Limit: 1, Window: time.Minute}
	return cfg
}

func TestNewServerStack(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	st, err := newServerStack(testServerConfig(t), vc, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeLimiters(st.limiters)

	require.Len(t, st.limiters, 2)
	require.NotNil(t, st.recorder)

	h := st.server.Handler()
	send := func(target string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("/api/ratelimit/fixedwindow"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/ratelimit/fixedwindow"))
	assert.Equal(t, http.StatusNotFound, send("/api/ratelimit/slidinglog"), "not enabled")

	assert.Equal(t, 3, st.recorder.Len())
	series, err := testutil.GatherAndCount(st.metrics.Registry(), "gatekeeper_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one allowed and one denied series")
}

func TestNewServerStack_NoRecorder(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Server.RecordFile = ""

	st, err := newServerStack(cfg, clock.NewVirtualClock(epoch), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeLimiters(st.limiters)
	assert.Nil(t, st.recorder)
}

func TestRunServer_ShutsDownAndExports(t *testing.T) {
	cfg := testServerConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg, zaptest.NewLogger(t)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	records, err := recorder.LoadFile(cfg.Server.RecordFile)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunServer_BadAddress(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Server.Addr = "256.0.0.1:bad"

	err := runServer(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestServerCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, "server", "--algorithms", "fixed_window", "--window", "-1s")
	assert.ErrorIs(t, err, limiter.ErrInvalidPolicy)
}
