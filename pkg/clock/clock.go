// Package clock exposes the clocks gatekeeper limiters read time from.
package clock

import (
	"time"

	internalclock "github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
)

// Clock abstracts time so limiters work with both real and virtual time.
type Clock = internalclock.Clock

// RealClock reads the system clock.
type RealClock = internalclock.RealClock

// VirtualClock is a controllable clock for time-travel testing. It can also
// be rewound to simulate wall-clock steps.
type VirtualClock = internalclock.VirtualClock

// NewRealClock creates a real wall-clock implementation.
func NewRealClock() *RealClock {
	return internalclock.NewRealClock()
}

// NewVirtualClock creates a virtual clock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	return internalclock.NewVirtualClock(start)
}
