package limiter

import "time"

// Event describes one admission decision.
type Event struct {
	Algorithm Algorithm
	Key       string
	Decision  Decision
	At        time.Time     // limiter clock reading used for the decision
	Latency   time.Duration // wall time spent deciding
}

// SweepEvent describes one idle-eviction pass.
type SweepEvent struct {
	Algorithm Algorithm
	Evicted   int
	Remaining int
	At        time.Time
}

// Observer receives decisions and sweeps as they happen. Implementations are
// called synchronously on the request path and must be safe for concurrent
// use, so they should not block.
type Observer interface {
	ObserveDecision(Event)
	ObserveSweep(SweepEvent)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ObserveDecision(Event)   {}
func (NopObserver) ObserveSweep(SweepEvent) {}

// Observers fans out to several observers in order.
type Observers []Observer

func (os Observers) ObserveDecision(e Event) {
	for _, o := range os {
		o.ObserveDecision(e)
	}
}

func (os Observers) ObserveSweep(e SweepEvent) {
	for _, o := range os {
		o.ObserveSweep(e)
	}
}
