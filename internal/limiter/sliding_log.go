package limiter

import "time"

// slidingLog keeps the instant of every admitted request that is still
// inside the window and admits while fewer than Limit remain.
//
// It is exact, with no boundary burst, at the cost of storing up to Limit
// timestamps per client.
type slidingLog struct {
	limit  int
	window time.Duration
}

// slidingLogState is ordered oldest first. Its slice is never written after
// it has been stored, so every change allocates a new one.
type slidingLogState struct {
	entries []time.Time
}

func newSlidingLog(p Policy) slidingLog {
	return slidingLog{limit: p.Limit, window: p.Window}
}

func (sl slidingLog) init(time.Time) slidingLogState {
	return slidingLogState{}
}

func (sl slidingLog) decide(st slidingLogState, now time.Time) (Decision, slidingLogState) {
	// Prefix trim: an entry expires once it is strictly older than window.
	i := 0
	for i < len(st.entries) && now.Sub(st.entries[i]) > sl.window {
		i++
	}
	live := st.entries[i:]

	if len(live) < sl.limit {
		at := now
		if n := len(live); n > 0 {
			// Keep the log ordered even if the clock stepped back.
			at = latest(live[n-1], now)
		}
		next := make([]time.Time, len(live), len(live)+1)
		copy(next, live)
		next = append(next, at)

		return Decision{
			Allowed:   true,
			Remaining: sl.limit - len(next),
			Limit:     sl.limit,
			ResetAt:   sl.expiry(next[len(next)-1]),
		}, slidingLogState{entries: next}
	}

	return Decision{
		Allowed:   false,
		Remaining: 0,
		Limit:     sl.limit,
		ResetAt:   sl.expiry(live[len(live)-1]),
		RetryAt:   sl.expiry(live[0]),
	}, slidingLogState{entries: live}
}

// expiry is the first instant at which an entry made at t no longer counts.
func (sl slidingLog) expiry(t time.Time) time.Time {
	return t.Add(sl.window + time.Nanosecond)
}
