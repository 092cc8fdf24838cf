package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
)

// Sweeper is anything that can drop idle entries. *Store satisfies it.
type Sweeper interface {
	Sweep(now time.Time) int
	Len() int
}

// SweepFunc is called after every scheduled sweep.
type SweepFunc func(evicted, remaining int)

// Janitor runs Sweep on a fixed interval. Overlapping runs are skipped, so a
// slow sweep never stacks up behind itself.
type Janitor struct {
	target   Sweeper
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	onSweep  SweepFunc

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// MinSweepInterval is the finest schedule the janitor supports. cron's
// @every rounds shorter intervals up to it.
const MinSweepInterval = time.Second

// NewJanitor creates a janitor for target. It does nothing until Start.
func NewJanitor(target Sweeper, c clock.Clock, interval time.Duration, logger *zap.Logger, onSweep SweepFunc) (*Janitor, error) {
	if target == nil {
		return nil, fmt.Errorf("sweep target is required")
	}
	if interval < MinSweepInterval {
		return nil, fmt.Errorf("sweep interval must be at least %s, got %s", MinSweepInterval, interval)
	}
	if c == nil {
		c = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := cronLogger{logger.Sugar()}
	j := &Janitor{
		target:   target,
		clock:    c,
		interval: interval,
		logger:   logger,
		onSweep:  onSweep,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
	if _, err := j.cron.AddFunc(fmt.Sprintf("@every %s", interval), j.RunOnce); err != nil {
		return nil, fmt.Errorf("scheduling sweep: %w", err)
	}
	return j, nil
}

// RunOnce performs a single sweep immediately.
func (j *Janitor) RunOnce() {
	evicted := j.target.Sweep(j.clock.Now())
	remaining := j.target.Len()
	if evicted > 0 {
		j.logger.Debug("evicted idle clients",
			zap.Int("evicted", evicted),
			zap.Int("remaining", remaining),
		)
	}
	if j.onSweep != nil {
		j.onSweep(evicted, remaining)
	}
}

// Start begins the schedule. Calling Start twice is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.cron.Start()
	j.logger.Debug("janitor started", zap.Duration("interval", j.interval))
}

// Stop halts the schedule and waits for a sweep in progress to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	<-j.cron.Stop().Done()
	j.logger.Debug("janitor stopped")
}

// cronLogger routes cron's internal logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
