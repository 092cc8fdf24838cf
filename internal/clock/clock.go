// Package clock holds the time sources the admission engine reads from.
package clock

import "time"

// Clock is how limiters, the state store and its janitor learn the current
// instant. Nothing else about time is needed to decide a request.
//
// Implementations must be safe for concurrent use. Successive readings may
// go backwards; callers clamp.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// NewRealClock returns the system clock. It is the default for every limiter.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns time.Now.
func (*RealClock) Now() time.Time {
	return time.Now()
}
