package limiter

import "time"

// newLeakyBucket configures the bucket by interval: one unit of room drains
// back every LeakInterval.
//
// This is the capacity-replenishment form of the leaky bucket. Instead of
// tracking a water level that leaks out, the bucket tracks how much room is
// available, which makes its decision function the token bucket's with
// RefillRate = 1/LeakInterval. Credit is computed from the raw durations so
// an interval such as 200ms behaves exactly like a rate of 5/s.
func newLeakyBucket(p Policy) bucket {
	interval := p.LeakInterval
	return bucket{
		capacity: p.Capacity,
		credit: func(elapsed time.Duration) float64 {
			return float64(elapsed) / float64(interval)
		},
		wait: func(units float64) time.Duration {
			return ceilDuration(units * float64(interval))
		},
	}
}
