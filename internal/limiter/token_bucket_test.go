package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	lim, vc := newTestLimiter(t, AlgorithmTokenBucket, Policy{Capacity: 10, RefillRate: 5})

	for i := 0; i < 10; i++ {
		assert.True(t, lim.Allow(ctx, "client").Allowed, "request %d", i+1)
	}
	assert.False(t, lim.Allow(ctx, "client").Allowed, "11th request")

	vc.Advance(time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, lim.Allow(ctx, "client").Allowed, "refilled request %d", i+1)
	}
	assert.False(t, lim.Allow(ctx, "client").Allowed, "6th after refill")
}

func TestTokenBucket_DecisionFields(t *testing.T) {
	lim, _ := newTestLimiter(t, AlgorithmTokenBucket, Policy{Capacity: 10, RefillRate: 5})

	d := lim.Allow(ctx, "a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
	assert.Equal(t, 10, d.Limit)
	assert.WithinDuration(t, epoch.Add(200*time.Millisecond), d.ResetAt, time.Microsecond)

	drain(lim, "a")
	d = lim.Allow(ctx, "a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.WithinDuration(t, epoch.Add(200*time.Millisecond), d.RetryAt, time.Microsecond, "one token per 200ms")
	assert.WithinDuration(t, epoch.Add(2*time.Second), d.ResetAt, time.Microsecond)
}

func TestTokenBucket_CappedAtCapacity(t *testing.T) {
	lim, vc := newTestLimiter(t, AlgorithmTokenBucket, Policy{Capacity: 3, RefillRate: 5})
	lim.Allow(ctx, "a")

	vc.Advance(time.Hour)
	assert.Equal(t, 3, drain(lim, "a"))
}

func TestTokenBucket_FractionalCreditCarries(t *testing.T) {
	lim, vc := newTestLimiter(t, AlgorithmTokenBucket, Policy{Capacity: 1, RefillRate: 1})
	require.True(t, lim.Allow(ctx, "a").Allowed)

	// Denials still advance the refill instant, so the elapsed time is
	// credited once and only once.
	vc.Advance(500 * time.Millisecond)
	assert.False(t, lim.Allow(ctx, "a").Allowed)
	vc.Advance(250 * time.Millisecond)
	assert.False(t, lim.Allow(ctx, "a").Allowed)
	vc.Advance(250 * time.Millisecond)
	assert.True(t, lim.Allow(ctx, "a").Allowed)
	assert.False(t, lim.Allow(ctx, "a").Allowed)
}

func TestTokenBucket_RewindDoesNotMoveRefillBack(t *testing.T) {
	lim, vc := newTestLimiter(t, AlgorithmTokenBucket, Policy{Capacity: 1, RefillRate: 1})
	require.True(t, lim.Allow(ctx, "a").Allowed)

	vc.Rewind(10 * time.Second)
	assert.False(t, lim.Allow(ctx, "a").Allowed)

	// Back at the original instant plus one second: exactly one token.
	vc.Advance(11 * time.Second)
	assert.True(t, lim.Allow(ctx, "a").Allowed)
	assert.False(t, lim.Allow(ctx, "a").Allowed)
}

func TestBucket_DecideIsPure(t *testing.T) {
	b := newTokenBucket(Policy{Capacity: 2, RefillRate: 1})
	st := b.init(epoch)

	d1, next1 := b.decide(st, epoch)
	d2, next2 := b.decide(st, epoch)
	assert.Equal(t, d1, d2)
	assert.Equal(t, next1, next2)
	assert.Equal(t, 2.0, st.level, "input state untouched")
}
