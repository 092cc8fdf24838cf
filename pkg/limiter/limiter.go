// Package limiter is the public face of the gatekeeper admission engine.
//
// Pick an algorithm and a policy, then ask the limiter about each request:
//
//	lim, err := limiter.NewSlidingWindow(100, time.Minute)
//	if err != nil {
//		return err
//	}
//	defer lim.Close()
//
//	if d := lim.Allow(ctx, clientID); !d.Allowed {
//		// reject, d.RetryAt says when to come back
//	}
package limiter

import (
	"time"

	"go.uber.org/zap"

	internallimiter "github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm = internallimiter.Algorithm

const (
	AlgorithmFixedWindow   = internallimiter.AlgorithmFixedWindow
	AlgorithmTokenBucket   = internallimiter.AlgorithmTokenBucket
	AlgorithmLeakyBucket   = internallimiter.AlgorithmLeakyBucket
	AlgorithmSlidingLog    = internallimiter.AlgorithmSlidingLog
	AlgorithmSlidingWindow = internallimiter.AlgorithmSlidingWindow
)

// Algorithms lists every supported algorithm.
var Algorithms = internallimiter.Algorithms

var (
	ErrUnknownAlgorithm = internallimiter.ErrUnknownAlgorithm
	ErrInvalidPolicy    = internallimiter.ErrInvalidPolicy
)

type (
	// Limiter answers admission questions.
	Limiter = internallimiter.Limiter
	// RateLimiter is a Limiter that owns per-client state.
	RateLimiter = internallimiter.RateLimiter
	// Decision captures the result of a rate limit check.
	Decision = internallimiter.Decision
	// Policy holds the numeric parameters of an algorithm.
	Policy = internallimiter.Policy
	// Option configures a limiter at construction.
	Option = internallimiter.Option
	// Observer receives decisions and sweeps.
	Observer = internallimiter.Observer
	// Event describes one decision.
	Event = internallimiter.Event
	// SweepEvent describes one idle-eviction pass.
	SweepEvent = internallimiter.SweepEvent
)

// ParseAlgorithm parses an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	return internallimiter.ParseAlgorithm(s)
}

// DefaultPolicy returns the stock policy for alg.
func DefaultPolicy(alg Algorithm) Policy {
	return internallimiter.DefaultPolicy(alg)
}

// New creates a limiter for alg with the given policy.
func New(alg Algorithm, policy Policy, opts ...Option) (RateLimiter, error) {
	return internallimiter.New(alg, policy, opts...)
}

// NewFixedWindow creates a fixed window counter limiter.
func NewFixedWindow(limit int, window time.Duration, opts ...Option) (RateLimiter, error) {
	return internallimiter.NewFixedWindow(limit, window, opts...)
}

// NewTokenBucket creates a token bucket limiter refilling refillRate tokens
// per second.
func NewTokenBucket(capacity int, refillRate float64, opts ...Option) (RateLimiter, error) {
	return internallimiter.NewTokenBucket(capacity, refillRate, opts...)
}

// NewLeakyBucket creates a leaky bucket limiter draining one request every
// leakInterval.
func NewLeakyBucket(capacity int, leakInterval time.Duration, opts ...Option) (RateLimiter, error) {
	return internallimiter.NewLeakyBucket(capacity, leakInterval, opts...)
}

// NewSlidingLog creates a sliding window log limiter.
func NewSlidingLog(limit int, window time.Duration, opts ...Option) (RateLimiter, error) {
	return internallimiter.NewSlidingLog(limit, window, opts...)
}

// NewSlidingWindow creates a weighted sliding window counter limiter.
func NewSlidingWindow(limit int, window time.Duration, opts ...Option) (RateLimiter, error) {
	return internallimiter.NewSlidingWindow(limit, window, opts...)
}

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return internallimiter.WithClock(c)
}

// WithIdleTTL sets how long an idle client keeps its state. It must be at
// least the policy's horizon.
func WithIdleTTL(d time.Duration) Option {
	return internallimiter.WithIdleTTL(d)
}

// WithSweepInterval sets how often idle clients are evicted. Zero disables
// the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return internallimiter.WithSweepInterval(d)
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return internallimiter.WithLogger(l)
}

// WithObserver receives every decision and sweep.
func WithObserver(obs Observer) Option {
	return internallimiter.WithObserver(obs)
}
