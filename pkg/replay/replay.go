// Package replay runs recorded traffic through limiters on a virtual clock.
package replay

import (
	"go.uber.org/zap"

	internalreplay "github.com/SmitUplenchwar2687/gatekeeper/internal/replay"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/limiter"
)

// Filter defines criteria for selecting traffic records during replay.
type Filter = internalreplay.Filter

// Replayer replays recorded traffic through one or more limiters.
type Replayer = internalreplay.Replayer

// Result captures the outcome of replaying a single record through one
// limiter.
type Result = internalreplay.Result

// Summary aggregates replay statistics.
type Summary = internalreplay.Summary

// AlgorithmSummary holds the stats for one limiter.
type AlgorithmSummary = internalreplay.AlgorithmSummary

// KeySummary holds per-key replay stats.
type KeySummary = internalreplay.KeySummary

// ErrNoRecords is returned by Run when nothing has been loaded.
var ErrNoRecords = internalreplay.ErrNoRecords

// New creates a new replayer. Every limiter must read time from vc.
func New(vc *clock.VirtualClock, speed float64, filter Filter, logger *zap.Logger, limiters ...limiter.RateLimiter) *Replayer {
	return internalreplay.New(vc, speed, filter, logger, limiters...)
}
