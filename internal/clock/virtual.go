package clock

import (
	"sync"
	"time"
)

// VirtualClock is a manually driven clock for deterministic tests and
// simulations. Advancing it is instant, so window and refill behaviour over
// hours can be checked in microseconds.
//
// Unlike a wall clock it can also be rewound, which is how the engine's
// handling of clock skew is exercised.
//
// Safe for concurrent use.
type VirtualClock struct {
	mu      sync.RWMutex
	current time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtualClock creates a VirtualClock starting at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{current: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Since returns the virtual duration elapsed since t.
func (c *VirtualClock) Since(t time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Sub(t)
}

// After returns a channel that receives the virtual time once the clock has
// been moved to or past now+d. Non-positive durations fire immediately.
func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}

	c.waiters = append(c.waiters, waiter{deadline: c.current.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires due waiters.
// Panics if d is negative; use Rewind to move backward.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	c.fireLocked()
}

// Set jumps the clock to t and fires due waiters.
// Panics if t is before the current time.
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.current) {
		panic("clock: cannot set time to the past")
	}

	c.current = t
	c.fireLocked()
}

// Rewind moves the clock backward by d, simulating a wall-clock step such as
// an NTP correction. Pending waiters are left untouched.
// Panics if d is negative.
func (c *VirtualClock) Rewind(d time.Duration) {
	if d < 0 {
		panic("clock: cannot rewind by negative duration")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(-d)
}

// fireLocked delivers to every waiter whose deadline has been reached.
// c.mu must be held.
func (c *VirtualClock) fireLocked() {
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if w.deadline.After(c.current) {
			pending = append(pending, w)
			continue
		}
		w.ch <- c.current
	}
	c.waiters = pending
}
