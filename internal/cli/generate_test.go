package cli

import (
	"math/rand"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

func TestGenerateTraffic_Patterns(t *testing.T) {
	for _, pattern := range []string{"steady", "burst", "ramp"} {
		t.Run(pattern, func(t *testing.T) {
			dur := 5 * time.Minute
			records, err := generateTraffic(rand.New(rand.NewSource(1)), epoch, 103, 4, dur, pattern)
			require.NoError(t, err)
			require.Len(t, records, 103)

			assert.True(t, slices.IsSortedFunc(records, func(a, b recorder.TrafficRecord) int {
				return a.Timestamp.Compare(b.Timestamp)
			}), "records are in timestamp order")

			for _, rec := range records {
				assert.False(t, rec.Timestamp.Before(epoch))
				assert.True(t, rec.Timestamp.Before(epoch.Add(dur)))
				assert.Contains(t, []string{"user-1", "user-2", "user-3", "user-4"}, rec.Key)
				assert.NotEmpty(t, rec.ID)
				assert.True(t, strings.HasSuffix(rec.Endpoint, strings.ReplaceAll(string(rec.Algorithm), "_", "")),
					"endpoint %q matches algorithm %q", rec.Endpoint, rec.Algorithm)
			}
		})
	}
}

func TestGenerateTraffic_SteadyIsEvenlySpaced(t *testing.T) {
	records, err := generateTraffic(rand.New(rand.NewSource(1)), epoch, 4, 1, time.Minute, "steady")
	require.NoError(t, err)
	for i, rec := range records {
		assert.Equal(t, epoch.Add(time.Duration(i)*15*time.Second), rec.Timestamp)
	}
}

func TestGenerateTraffic_UnknownPattern(t *testing.T) {
	_, err := generateTraffic(rand.New(rand.NewSource(1)), epoch, 10, 1, time.Minute, "zigzag")
	assert.ErrorContains(t, err, "zigzag")
}

func TestGenerateTrafficCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.json")
	out, err := execute(t, "generate", "traffic", "--output", path, "--count", "25", "--keys", "2", "--pattern", "burst", "--seed", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 25 traffic records")

	records, err := recorder.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 25)
}

func TestGenerateTrafficCmd_ReplaysCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.json")
	_, err := execute(t, "generate", "traffic", "--output", path, "--count", "40", "--seed", "7")
	require.NoError(t, err)

	res := runReplayJSONFile(t, path, "--algorithms", "all")
	assert.Equal(t, 40, res.Summary.Replayed)
	assert.Len(t, res.Summary.Algorithms, len(limiter.Algorithms))
}

func TestGenerateTrafficCmd_InvalidFlags(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "generate", "traffic", "--output", filepath.Join(dir, "a.json"), "--count", "0")
	assert.Error(t, err)
	_, err = execute(t, "generate", "traffic", "--output", filepath.Join(dir, "b.json"), "--pattern", "zigzag")
	assert.Error(t, err)
}

func TestGenerateConfigCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	out, err := execute(t, "generate", "config", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.Default().Limiter.Algorithms, cfg.Limiter.Algorithms)
}
