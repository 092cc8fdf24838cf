package replay

import (
	"slices"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// Filter defines criteria for selecting traffic records during replay.
type Filter struct {
	Keys       []string            // Only include these keys (empty = all)
	Endpoints  []string            // Only include endpoints containing one of these (empty = all)
	Algorithms []limiter.Algorithm // Only include records captured under these algorithms (empty = all)
	After      time.Time           // Only include records after this time (zero = no limit)
	Before     time.Time           // Only include records before this time (zero = no limit)
}

// Match returns true if the record passes the filter.
func (f Filter) Match(r recorder.TrafficRecord) bool {
	if len(f.Keys) > 0 && !slices.Contains(f.Keys, r.Key) {
		return false
	}
	if len(f.Endpoints) > 0 && !matchEndpoint(f.Endpoints, r.Endpoint) {
		return false
	}
	// Records without an algorithm were not captured behind a limiter.
	if len(f.Algorithms) > 0 && r.Algorithm != "" && !slices.Contains(f.Algorithms, r.Algorithm) {
		return false
	}
	if !f.After.IsZero() && !r.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

func matchEndpoint(patterns []string, endpoint string) bool {
	for _, p := range patterns {
		if strings.Contains(endpoint, p) {
			return true
		}
	}
	return false
}
