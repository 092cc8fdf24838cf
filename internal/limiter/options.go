package limiter

import (
	"time"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// minIdleTTL is the floor for the default idle TTL.
const minIdleTTL = time.Minute

type options struct {
	clock         clock.Clock
	idleTTL       time.Duration
	sweepInterval time.Duration
	sweepSet      bool
	logger        *zap.Logger
	observer      Observer
}

// Option configures a RateLimiter.
type Option func(*options)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIdleTTL sets how long a client may stay idle before its state is
// evicted. It must be at least the policy's Horizon, otherwise construction
// fails. Defaults to twice the horizon, and never less than a minute.
func WithIdleTTL(d time.Duration) Option {
	return func(o *options) {
		o.idleTTL = d
	}
}

// WithSweepInterval sets how often the background janitor evicts idle
// clients. Zero disables the janitor, leaving eviction to explicit Sweep
// calls. Positive intervals below one second are rejected because the
// janitor schedules at one second resolution. Defaults to half the idle TTL,
// with a one second floor.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = d
		o.sweepSet = true
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver attaches an observer for decisions and sweeps.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func buildOptions(horizon time.Duration, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.NewRealClock()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.idleTTL == 0 {
		o.idleTTL = addDuration(horizon, horizon)
		if o.idleTTL < minIdleTTL {
			o.idleTTL = minIdleTTL
		}
	}
	if !o.sweepSet {
		o.sweepInterval = o.idleTTL / 2
		if o.sweepInterval < store.MinSweepInterval {
			o.sweepInterval = store.MinSweepInterval
		}
	}
	return o
}
