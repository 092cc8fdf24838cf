// Package replay feeds recorded traffic through one or more limiters on a
// virtual clock, so algorithms can be compared on identical input.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// ErrNoRecords is returned by Run when nothing has been loaded.
var ErrNoRecords = errors.New("no records loaded")

// Replayer replays recorded traffic through a set of limiters at a
// configurable speed. Every limiter must read time from the replayer's clock.
type Replayer struct {
	records  []recorder.TrafficRecord
	limiters []limiter.RateLimiter
	clock    *clock.VirtualClock
	filter   Filter
	speed    float64 // 1.0 = real-time, 10.0 = 10x, 0 = instant
	logger   *zap.Logger
}

// Result captures the outcome of replaying a single record through one
// limiter.
type Result struct {
	Record    recorder.TrafficRecord `json:"record"`
	Algorithm limiter.Algorithm      `json:"algorithm"`
	Decision  limiter.Decision       `json:"decision"`
	Time      time.Time              `json:"time"` // virtual time when decision was made
}

// Summary aggregates replay statistics.
type Summary struct {
	TotalRecords int                                     `json:"total_records"`
	Filtered     int                                     `json:"filtered"`
	Replayed     int                                     `json:"replayed"`
	Duration     time.Duration                           `json:"duration"`      // virtual time span
	WallDuration time.Duration                           `json:"wall_duration"` // actual wall clock time
	Algorithms   map[limiter.Algorithm]*AlgorithmSummary `json:"algorithms"`
}

// AlgorithmSummary has the stats for one limiter.
type AlgorithmSummary struct {
	Allowed int                   `json:"allowed"`
	Denied  int                   `json:"denied"`
	PerKey  map[string]KeySummary `json:"per_key"`
}

// DenyRate returns the fraction of decisions that were denials.
func (s *AlgorithmSummary) DenyRate() float64 {
	total := s.Allowed + s.Denied
	if total == 0 {
		return 0
	}
	return float64(s.Denied) / float64(total)
}

// KeySummary has per-key stats.
type KeySummary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// New creates a new replayer over vc. Negative speeds are treated as instant.
func New(vc *clock.VirtualClock, speed float64, filter Filter, logger *zap.Logger, limiters ...limiter.RateLimiter) *Replayer {
	if speed < 0 {
		speed = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		limiters: limiters,
		clock:    vc,
		speed:    speed,
		filter:   filter,
		logger:   logger,
	}
}

// Load reads traffic records from a JSON reader.
func (r *Replayer) Load(reader io.Reader) error {
	records, err := recorder.LoadJSON(reader)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	r.records = records
	return nil
}

// LoadRecords sets the records directly.
func (r *Replayer) LoadRecords(records []recorder.TrafficRecord) {
	r.records = make([]recorder.TrafficRecord, len(records))
	copy(r.records, records)
}

// Run replays all loaded records through every limiter. Each record is
// decided by all limiters at the same virtual instant, in the order the
// limiters were given. The callback is called once per decision.
//
// Run fails with ErrNoRecords only when nothing was loaded. A filter that
// matches no record yields an empty Summary and a nil error.
func (r *Replayer) Run(ctx context.Context, cb func(Result)) (*Summary, error) {
	if len(r.records) == 0 {
		return nil, ErrNoRecords
	}
	if len(r.limiters) == 0 {
		return nil, fmt.Errorf("no limiters to replay through")
	}

	sorted := make([]recorder.TrafficRecord, len(r.records))
	copy(sorted, r.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var filtered []recorder.TrafficRecord
	for _, rec := range sorted {
		if r.filter.Match(rec) {
			filtered = append(filtered, rec)
		}
	}

	summary := &Summary{
		TotalRecords: len(sorted),
		Filtered:     len(filtered),
		Algorithms:   make(map[limiter.Algorithm]*AlgorithmSummary, len(r.limiters)),
	}
	for _, lim := range r.limiters {
		summary.Algorithms[lim.Algorithm()] = &AlgorithmSummary{PerKey: make(map[string]KeySummary)}
	}
	if len(filtered) == 0 {
		return summary, nil
	}

	r.logger.Info("replay started",
		zap.Int("records", len(filtered)),
		zap.Int("limiters", len(r.limiters)),
		zap.Float64("speed", r.speed),
	)

	// The clock catches up with the first replayed record, but never rewinds.
	if first := filtered[0].Timestamp; first.After(r.clock.Now()) {
		r.clock.Set(first)
	}

	wallStart := time.Now()
	for i, rec := range filtered {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		// Advance virtual clock to match the record's timestamp offset.
		if i > 0 {
			if gap := rec.Timestamp.Sub(filtered[i-1].Timestamp); gap > 0 {
				if err := r.pace(ctx, gap); err != nil {
					return summary, err
				}
				r.clock.Advance(gap)
			}
		}

		for _, lim := range r.limiters {
			d := lim.Allow(ctx, rec.Key)
			summary.Algorithms[lim.Algorithm()].add(rec.Key, d)
			if cb != nil {
				cb(Result{Record: rec, Algorithm: lim.Algorithm(), Decision: d, Time: r.clock.Now()})
			}
		}
		summary.Replayed++
	}

	summary.Duration = filtered[len(filtered)-1].Timestamp.Sub(filtered[0].Timestamp)
	summary.WallDuration = time.Since(wallStart)

	r.logger.Info("replay finished",
		zap.Int("replayed", summary.Replayed),
		zap.Duration("virtual", summary.Duration),
		zap.Duration("wall", summary.WallDuration),
	)
	return summary, nil
}

// pace sleeps for gap scaled by speed. Sub-millisecond pauses are skipped.
func (r *Replayer) pace(ctx context.Context, gap time.Duration) error {
	if r.speed <= 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.speed)
	if scaled <= time.Millisecond {
		return nil
	}
	t := time.NewTimer(scaled)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *AlgorithmSummary) add(key string, d limiter.Decision) {
	ks := s.PerKey[key]
	if d.Allowed {
		s.Allowed++
		ks.Allowed++
	} else {
		s.Denied++
		ks.Denied++
	}
	s.PerKey[key] = ks
}
