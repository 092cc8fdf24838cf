package limiter

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidPolicy wraps every policy validation failure.
var ErrInvalidPolicy = errors.New("invalid policy")

// Policy holds the limiter parameters. Which fields matter depends on the
// algorithm:
//
//	fixed_window, sliding_log, sliding_window: Limit, Window
//	token_bucket:                              Capacity, RefillRate
//	leaky_bucket:                              Capacity, LeakInterval
//
// A limiter copies its Policy at construction and never changes it.
type Policy struct {
	Limit        int           `json:"limit,omitempty" yaml:"limit,omitempty"`
	Window       time.Duration `json:"window,omitempty" yaml:"window,omitempty"`
	Capacity     int           `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	RefillRate   float64       `json:"refill_rate,omitempty" yaml:"refill_rate,omitempty"` // tokens per second
	LeakInterval time.Duration `json:"leak_interval,omitempty" yaml:"leak_interval,omitempty"`
}

// DefaultPolicy returns the stock policy for alg.
func DefaultPolicy(alg Algorithm) Policy {
	switch alg {
	case AlgorithmTokenBucket:
		return Policy{Capacity: 10, RefillRate: 5}
	case AlgorithmLeakyBucket:
		return Policy{Capacity: 10, LeakInterval: time.Second}
	default:
		return Policy{Limit: 5, Window: time.Minute}
	}
}

// Validate reports whether p is usable with alg.
func (p Policy) Validate(alg Algorithm) error {
	switch alg {
	case AlgorithmFixedWindow, AlgorithmSlidingLog, AlgorithmSlidingWindow:
		if p.Limit <= 0 {
			return fmt.Errorf("%w: %s: limit must be positive, got %d", ErrInvalidPolicy, alg, p.Limit)
		}
		if p.Window <= 0 {
			return fmt.Errorf("%w: %s: window must be positive, got %s", ErrInvalidPolicy, alg, p.Window)
		}
	case AlgorithmTokenBucket:
		if p.Capacity <= 0 {
			return fmt.Errorf("%w: %s: capacity must be positive, got %d", ErrInvalidPolicy, alg, p.Capacity)
		}
		if !(p.RefillRate > 0) {
			return fmt.Errorf("%w: %s: refill rate must be positive, got %g", ErrInvalidPolicy, alg, p.RefillRate)
		}
	case AlgorithmLeakyBucket:
		if p.Capacity <= 0 {
			return fmt.Errorf("%w: %s: capacity must be positive, got %d", ErrInvalidPolicy, alg, p.Capacity)
		}
		if p.LeakInterval <= 0 {
			return fmt.Errorf("%w: %s: leak interval must be positive, got %s", ErrInvalidPolicy, alg, p.LeakInterval)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownAlgorithm, alg)
	}
	return nil
}

// Horizon is how long a client must stay idle before its state is
// indistinguishable from a brand-new client's. Evicting earlier than this
// would change decisions.
//
// Horizons that do not fit in a Duration saturate at maxDuration.
func (p Policy) Horizon(alg Algorithm) time.Duration {
	switch alg {
	case AlgorithmTokenBucket:
		return floatDuration(math.Ceil(float64(p.Capacity) / p.RefillRate * float64(time.Second)))
	case AlgorithmLeakyBucket:
		return mulDuration(p.LeakInterval, p.Capacity)
	case AlgorithmSlidingWindow:
		return addDuration(p.Window, p.Window)
	case AlgorithmSlidingLog:
		// An entry still counts when exactly Window old.
		return addDuration(p.Window, time.Nanosecond)
	default:
		return p.Window
	}
}

const maxDuration = time.Duration(math.MaxInt64)

func floatDuration(ns float64) time.Duration {
	if math.IsNaN(ns) || ns >= float64(maxDuration) {
		return maxDuration
	}
	return time.Duration(ns)
}

func addDuration(a, b time.Duration) time.Duration {
	if b > 0 && a > maxDuration-b {
		return maxDuration
	}
	return a + b
}

func mulDuration(d time.Duration, n int) time.Duration {
	if d > 0 && n > 0 && int64(n) > int64(maxDuration/d) {
		return maxDuration
	}
	return d * time.Duration(n)
}
