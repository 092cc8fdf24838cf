package recorder

import (
	"time"

	"github.com/google/uuid"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
)

// TrafficRecord represents a single captured request.
type TrafficRecord struct {
	ID        string            `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Key       string            `json:"key"`                 // Client identity: remote host, API key, ...
	Endpoint  string            `json:"endpoint"`            // e.g., "GET /api/ratelimit/tokenbucket"
	Algorithm limiter.Algorithm `json:"algorithm,omitempty"` // Limiter that guarded the request, if any
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DecisionEvent is one admission decision as streamed to websocket clients
// and produced by replays.
type DecisionEvent struct {
	ID        string            `json:"id"`
	Algorithm limiter.Algorithm `json:"algorithm"`
	Key       string            `json:"key"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Decision  limiter.Decision  `json:"decision"`
	Time      time.Time         `json:"time"`
}

// NewDecisionEvent builds an event with a fresh id from a limiter event.
func NewDecisionEvent(e limiter.Event) DecisionEvent {
	return DecisionEvent{
		ID:        uuid.NewString(),
		Algorithm: e.Algorithm,
		Key:       e.Key,
		Decision:  e.Decision,
		Time:      e.At,
	}
}
