// Package recorder captures traffic for later replay.
package recorder

import (
	"io"

	internalrecorder "github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// TrafficRecord represents a single captured request.
type TrafficRecord = internalrecorder.TrafficRecord

// DecisionEvent is one admission decision as streamed to observers.
type DecisionEvent = internalrecorder.DecisionEvent

// Recorder captures traffic records for later replay.
type Recorder = internalrecorder.Recorder

// New creates a new Recorder. A non-nil w receives each record as NDJSON.
func New(w io.Writer) *Recorder {
	return internalrecorder.New(w)
}

// LoadJSON reads traffic records from a JSON array.
func LoadJSON(r io.Reader) ([]TrafficRecord, error) {
	return internalrecorder.LoadJSON(r)
}

// LoadFile reads traffic records from a JSON file.
func LoadFile(path string) ([]TrafficRecord, error) {
	return internalrecorder.LoadFile(path)
}
