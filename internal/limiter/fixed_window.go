package limiter

import "time"

// fixedWindow implements the fixed window counter.
//
// Each client gets a window that opens on its first request and lasts Window.
// Up to Limit requests are admitted per window; the count resets once the
// window has fully elapsed.
//
// Cheap and simple, but a client can land Limit requests at the end of one
// window and Limit more at the start of the next: up to 2*Limit-1 inside any
// span of length Window.
type fixedWindow struct {
	limit  int
	window time.Duration
}

type fixedWindowState struct {
	windowStart time.Time
	count       int
}

func newFixedWindow(p Policy) fixedWindow {
	return fixedWindow{limit: p.Limit, window: p.Window}
}

func (fw fixedWindow) init(now time.Time) fixedWindowState {
	return fixedWindowState{windowStart: now}
}

func (fw fixedWindow) decide(st fixedWindowState, now time.Time) (Decision, fixedWindowState) {
	if elapsedSince(st.windowStart, now) >= fw.window {
		st = fixedWindowState{windowStart: now}
	}

	resetAt := st.windowStart.Add(fw.window)
	if st.count < fw.limit {
		st.count++
		return Decision{
			Allowed:   true,
			Remaining: fw.limit - st.count,
			Limit:     fw.limit,
			ResetAt:   resetAt,
		}, st
	}

	return Decision{
		Allowed:   false,
		Remaining: 0,
		Limit:     fw.limit,
		ResetAt:   resetAt,
		RetryAt:   resetAt,
	}, st
}

// elapsedSince returns now-from, treating a clock that moved backward as no
// progress at all.
func elapsedSince(from, now time.Time) time.Duration {
	if d := now.Sub(from); d > 0 {
		return d
	}
	return 0
}

// latest returns the later of a and b.
func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
