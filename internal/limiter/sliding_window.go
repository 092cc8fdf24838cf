package limiter

import (
	"math"
	"time"
)

// slidingWindow implements the sliding window weighted counter.
//
// It keeps request counts for the current fixed window and the one before it.
// The previous window's count is weighted by how much of it still overlaps a
// window-length span ending now:
//
//	estimate = previous * (window - elapsed) / window + current
//
// A request is admitted while the estimate is below Limit. Unlike the fixed
// window this bounds a burst across a boundary to Limit, in constant memory,
// at the cost of assuming the previous window's traffic was evenly spread.
type slidingWindow struct {
	limit  int
	window time.Duration
}

type slidingWindowState struct {
	prevCount int
	currCount int
	currStart time.Time
}

func newSlidingWindow(p Policy) slidingWindow {
	return slidingWindow{limit: p.Limit, window: p.Window}
}

func (sw slidingWindow) init(now time.Time) slidingWindowState {
	return slidingWindowState{currStart: now}
}

func (sw slidingWindow) decide(st slidingWindowState, now time.Time) (Decision, slidingWindowState) {
	st = sw.roll(st, now)

	elapsed := elapsedSince(st.currStart, now)
	overlap := float64(sw.window-elapsed) / float64(sw.window)
	estimate := float64(st.prevCount)*overlap + float64(st.currCount)

	if estimate < float64(sw.limit) {
		st.currCount++
		remaining := int(math.Floor(float64(sw.limit) - estimate - 1))
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:   true,
			Remaining: remaining,
			Limit:     sw.limit,
			ResetAt:   sw.resetAt(st),
		}, st
	}

	return Decision{
		Allowed:   false,
		Remaining: 0,
		Limit:     sw.limit,
		ResetAt:   sw.resetAt(st),
		RetryAt:   sw.retryAt(st),
	}, st
}

// roll moves the state forward to the window containing now. Two or more
// windows of silence leave no weighted history at all.
func (sw slidingWindow) roll(st slidingWindowState, now time.Time) slidingWindowState {
	elapsed := elapsedSince(st.currStart, now)
	switch {
	case elapsed >= 2*sw.window:
		// Same as a client never seen before, so evicting it changes nothing.
		return sw.init(now)
	case elapsed >= sw.window:
		return slidingWindowState{
			prevCount: st.currCount,
			currStart: st.currStart.Add(sw.window),
		}
	default:
		return st
	}
}

// resetAt is when no weighted history remains.
func (sw slidingWindow) resetAt(st slidingWindowState) time.Time {
	if st.currCount == 0 {
		return st.currStart.Add(sw.window)
	}
	return st.currStart.Add(2 * sw.window)
}

// retryAt solves the estimate for the first instant it drops below Limit.
func (sw slidingWindow) retryAt(st slidingWindowState) time.Time {
	room := float64(sw.limit - st.currCount)
	if room > 0 && st.prevCount > 0 {
		// previous * (window - e) / window < room  <=>  e > window * (1 - room/previous)
		frac := 1 - room/float64(st.prevCount)
		return st.currStart.Add(time.Duration(math.Floor(frac*float64(sw.window))) + time.Nanosecond)
	}
	// The current window is full; it decays once it becomes the previous one.
	return st.currStart.Add(sw.window + time.Nanosecond)
}
