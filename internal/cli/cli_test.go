package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testLimiters builds a limiter for each algorithm admitting n requests per
// client at a single instant.
func testLimiters(t *testing.T, vc *clock.VirtualClock, n int, algs ...limiter.Algorithm) []limiter.RateLimiter {
	t.Helper()
	cfg := config.LimiterConfig{
		Algorithms: algs,
		Policies: map[limiter.Algorithm]limiter.Policy{
			limiter.AlgorithmFixedWindow:   {Limit: n, Window: time.Minute},
			limiter.AlgorithmSlidingLog:    {Limit: n, Window: time.Minute},
			limiter.AlgorithmSlidingWindow: {Limit: n, Window: time.Minute},
			limiter.AlgorithmTokenBucket:   {Capacity: n, RefillRate: 1},
			limiter.AlgorithmLeakyBucket:   {Capacity: n, LeakInterval: time.Second},
		},
	}
	lims, err := buildLimiters(cfg, vc, zaptest.NewLogger(t), limiter.WithSweepInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeLimiters(lims) })
	return lims
}
