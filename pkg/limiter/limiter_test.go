package limiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/limiter"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTokenBucketPublicAPI(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb, err := limiter.NewTokenBucket(2, 1, limiter.WithClock(vc), limiter.WithSweepInterval(0))
	require.NoError(t, err)
	defer tb.Close()

	ctx := context.Background()
	assert.True(t, tb.Allow(ctx, "user1").Allowed)
	assert.True(t, tb.Allow(ctx, "user1").Allowed)
	d := tb.Allow(ctx, "user1")
	assert.False(t, d.Allowed)
	assert.Equal(t, epoch.Add(time.Second), d.RetryAt)

	vc.Advance(time.Second)
	assert.True(t, tb.Allow(ctx, "user1").Allowed)
}

func TestConstructors(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	opts := []limiter.Option{limiter.WithClock(vc), limiter.WithSweepInterval(0)}

	build := map[limiter.Algorithm]func() (limiter.RateLimiter, error){
		limiter.AlgorithmFixedWindow:   func() (limiter.RateLimiter, error) { return limiter.NewFixedWindow(3, time.Minute, opts...) },
		limiter.AlgorithmTokenBucket:   func() (limiter.RateLimiter, error) { return limiter.NewTokenBucket(3, 1, opts...) },
		limiter.AlgorithmLeakyBucket:   func() (limiter.RateLimiter, error) { return limiter.NewLeakyBucket(3, time.Second, opts...) },
		limiter.AlgorithmSlidingLog:    func() (limiter.RateLimiter, error) { return limiter.NewSlidingLog(3, time.Minute, opts...) },
		limiter.AlgorithmSlidingWindow: func() (limiter.RateLimiter, error) { return limiter.NewSlidingWindow(3, time.Minute, opts...) },
	}
	require.Len(t, build, len(limiter.Algorithms))

	for alg, newLimiter := range build {
		lim, err := newLimiter()
		require.NoError(t, err, alg)
		assert.Equal(t, alg, lim.Algorithm())

		admitted := 0
		for lim.Allow(context.Background(), "k").Allowed {
			admitted++
		}
		assert.Equal(t, 3, admitted, alg)
		require.NoError(t, lim.Close())
	}
}

func TestNew_InvalidPolicy(t *testing.T) {
	_, err := limiter.New(limiter.AlgorithmSlidingLog, limiter.Policy{Limit: 0, Window: time.Minute})
	assert.ErrorIs(t, err, limiter.ErrInvalidPolicy)

	_, err = limiter.ParseAlgorithm("gcra")
	assert.ErrorIs(t, err, limiter.ErrUnknownAlgorithm)
}

func TestNew_DefaultPolicies(t *testing.T) {
	for _, alg := range limiter.Algorithms {
		lim, err := limiter.New(alg, limiter.DefaultPolicy(alg), limiter.WithSweepInterval(0))
		require.NoError(t, err, alg)
		require.NoError(t, lim.Close())
	}
}
