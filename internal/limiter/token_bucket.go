package limiter

import (
	"math"
	"time"
)

// bucket is the refill arithmetic shared by the token bucket and the leaky
// bucket. Both track how much room a client has left and replenish it
// continuously; they differ only in how the replenish rate is configured.
type bucket struct {
	capacity int
	// credit converts elapsed time into replenished units.
	credit func(elapsed time.Duration) float64
	// wait converts a unit deficit into the time needed to cover it.
	wait func(units float64) time.Duration
}

type bucketState struct {
	level      float64
	lastRefill time.Time
}

// newTokenBucket configures the bucket by rate: RefillRate tokens per second.
//
// Each request takes one token. Tokens accrue continuously rather than in
// whole ticks so fractional credit is never lost between calls, and the
// bucket never holds more than Capacity.
func newTokenBucket(p Policy) bucket {
	rate := p.RefillRate
	return bucket{
		capacity: p.Capacity,
		credit: func(elapsed time.Duration) float64 {
			return elapsed.Seconds() * rate
		},
		wait: func(units float64) time.Duration {
			return ceilDuration(units / rate * float64(time.Second))
		},
	}
}

func (b bucket) init(now time.Time) bucketState {
	return bucketState{level: float64(b.capacity), lastRefill: now}
}

func (b bucket) decide(st bucketState, now time.Time) (Decision, bucketState) {
	// The reference instant only moves forward; a clock that stepped back
	// earns nothing until it catches up again.
	st.level = math.Min(float64(b.capacity), st.level+b.credit(elapsedSince(st.lastRefill, now)))
	st.lastRefill = latest(st.lastRefill, now)

	if st.level >= 1 {
		st.level--
		return Decision{
			Allowed:   true,
			Remaining: int(st.level),
			Limit:     b.capacity,
			ResetAt:   now.Add(b.wait(float64(b.capacity) - st.level)),
		}, st
	}

	return Decision{
		Allowed:   false,
		Remaining: 0,
		Limit:     b.capacity,
		ResetAt:   now.Add(b.wait(float64(b.capacity) - st.level)),
		RetryAt:   now.Add(b.wait(1 - st.level)),
	}, st
}

// ceilDuration rounds a nanosecond count up so a computed wait never lands
// before the moment the credit is actually available.
func ceilDuration(ns float64) time.Duration {
	if ns <= 0 {
		return 0
	}
	return floatDuration(math.Ceil(ns))
}
