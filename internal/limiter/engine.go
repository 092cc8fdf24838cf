package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// algorithm is a pure decision function over one client's state. decide must
// not mutate anything reachable from st: the store may call it again with the
// same input if a concurrent update wins the race.
type algorithm[S any] interface {
	init(now time.Time) S
	decide(st S, now time.Time) (Decision, S)
}

// engine binds an algorithm to a store, a clock and a policy. It is the only
// RateLimiter implementation; the algorithm is picked once at construction.
type engine[S any] struct {
	alg      Algorithm
	policy   Policy
	algo     algorithm[S]
	clock    clock.Clock
	store    *store.Store[S]
	janitor  *store.Janitor
	logger   *zap.Logger
	observer Observer
}

// New builds a RateLimiter running alg under policy. The policy is validated
// here and never again.
func New(alg Algorithm, policy Policy, opts ...Option) (RateLimiter, error) {
	if err := policy.Validate(alg); err != nil {
		return nil, err
	}

	switch alg {
	case AlgorithmFixedWindow:
		return newEngine[fixedWindowState](alg, policy, newFixedWindow(policy), opts)
	case AlgorithmTokenBucket:
		return newEngine[bucketState](alg, policy, newTokenBucket(policy), opts)
	case AlgorithmLeakyBucket:
		return newEngine[bucketState](alg, policy, newLeakyBucket(policy), opts)
	case AlgorithmSlidingLog:
		return newEngine[slidingLogState](alg, policy, newSlidingLog(policy), opts)
	case AlgorithmSlidingWindow:
		return newEngine[slidingWindowState](alg, policy, newSlidingWindow(policy), opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAlgorithm, alg)
	}
}

// NewFixedWindow admits limit requests per window, counting from each
// client's first request.
func NewFixedWindow(limit int, window time.Duration, opts ...Option) (RateLimiter, error) {
	return New(AlgorithmFixedWindow, Policy{Limit: limit, Window: window}, opts...)
}

// NewTokenBucket admits bursts up to capacity, refilling at refillRate tokens
// per second.
func NewTokenBucket(capacity int, refillRate float64, opts ...Option) (RateLimiter, error) {
	return New(AlgorithmTokenBucket, Policy{Capacity: capacity, RefillRate: refillRate}, opts...)
}

// NewLeakyBucket admits bursts up to capacity, regaining one slot every
// leakInterval.
func NewLeakyBucket(capacity int, leakInterval time.Duration, opts ...Option) (RateLimiter, error) {
	return New(AlgorithmLeakyBucket, Policy{Capacity: capacity, LeakInterval: leakInterval}, opts...)
}

// NewSlidingLog admits limit requests in any span of length window.
func NewSlidingLog(limit int, window time.Duration, opts ...Option) (RateLimiter, error) {
	return New(AlgorithmSlidingLog, Policy{Limit: limit, Window: window}, opts...)
}

// NewSlidingWindow approximates limit requests per sliding window using two
// counters.
func NewSlidingWindow(limit int, window time.Duration, opts ...Option) (RateLimiter, error) {
	return New(AlgorithmSlidingWindow, Policy{Limit: limit, Window: window}, opts...)
}

func newEngine[S any](alg Algorithm, policy Policy, algo algorithm[S], opts []Option) (RateLimiter, error) {
	horizon := policy.Horizon(alg)
	o := buildOptions(horizon, opts)

	if o.idleTTL < horizon {
		return nil, fmt.Errorf("%w: %s: idle ttl %s is shorter than the policy horizon %s",
			ErrInvalidPolicy, alg, o.idleTTL, horizon)
	}
	if o.sweepInterval < 0 || (o.sweepInterval > 0 && o.sweepInterval < store.MinSweepInterval) {
		return nil, fmt.Errorf("%w: %s: sweep interval must be zero or at least %s, got %s",
			ErrInvalidPolicy, alg, store.MinSweepInterval, o.sweepInterval)
	}

	e := &engine[S]{
		alg:      alg,
		policy:   policy,
		algo:     algo,
		clock:    o.clock,
		store:    store.New[S](o.clock, o.idleTTL),
		logger:   o.logger.With(zap.String("algorithm", string(alg))),
		observer: o.observer,
	}

	if o.sweepInterval > 0 {
		j, err := store.NewJanitor(e.store, e.clock, o.sweepInterval, e.logger, e.reportSweep)
		if err != nil {
			return nil, fmt.Errorf("starting janitor: %w", err)
		}
		e.janitor = j
		j.Start()
	}

	e.logger.Debug("limiter created",
		zap.Any("policy", policy),
		zap.Duration("idle_ttl", o.idleTTL),
		zap.Duration("sweep_interval", o.sweepInterval),
	)
	return e, nil
}

func (e *engine[S]) Allow(_ context.Context, key string) Decision {
	start := time.Now()
	now := e.clock.Now()

	var d Decision
	e.store.Update(key,
		func() S { return e.algo.init(now) },
		func(st S) S {
			var next S
			d, next = e.algo.decide(st, now)
			return next
		},
	)

	if !d.Allowed {
		e.logger.Debug("request denied",
			zap.String("key", key),
			zap.Time("retry_at", d.RetryAt),
		)
	}
	e.observer.ObserveDecision(Event{
		Algorithm: e.alg,
		Key:       key,
		Decision:  d,
		At:        now,
		Latency:   time.Since(start),
	})
	return d
}

func (e *engine[S]) Reset(key string) {
	if e.store.Delete(key) {
		e.logger.Debug("client reset", zap.String("key", key))
	}
}

func (e *engine[S]) Len() int {
	return e.store.Len()
}

func (e *engine[S]) Sweep() int {
	evicted := e.store.Sweep(e.clock.Now())
	e.reportSweep(evicted, e.store.Len())
	return evicted
}

func (e *engine[S]) reportSweep(evicted, remaining int) {
	e.observer.ObserveSweep(SweepEvent{
		Algorithm: e.alg,
		Evicted:   evicted,
		Remaining: remaining,
		At:        e.clock.Now(),
	})
}

func (e *engine[S]) Algorithm() Algorithm {
	return e.alg
}

func (e *engine[S]) Policy() Policy {
	return e.policy
}

func (e *engine[S]) Close() error {
	if e.janitor != nil {
		e.janitor.Stop()
	}
	return nil
}
