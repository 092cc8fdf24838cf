package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Algorithm identifies an admission-control algorithm.
type Algorithm string

const (
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmLeakyBucket   Algorithm = "leaky_bucket"
	AlgorithmSlidingLog    Algorithm = "sliding_log"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// Algorithms lists every supported algorithm in a stable order.
var Algorithms = []Algorithm{
	AlgorithmFixedWindow,
	AlgorithmTokenBucket,
	AlgorithmLeakyBucket,
	AlgorithmSlidingLog,
	AlgorithmSlidingWindow,
}

// ErrUnknownAlgorithm is returned for an algorithm name that is not supported.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// ParseAlgorithm accepts the canonical names as well as the compact route
// spellings ("fixedwindow", "tokenbucket", ...). Matching ignores case, dashes
// and underscores.
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range Algorithms {
		if strings.ReplaceAll(string(a), "_", "") == norm {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w %q, must be one of: %s", ErrUnknownAlgorithm, s, algorithmList())
}

// DisplayName returns a human readable name such as "Fixed Window".
func (a Algorithm) DisplayName() string {
	words := strings.Split(string(a), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func algorithmList() string {
	names := make([]string, len(Algorithms))
	for i, a := range Algorithms {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// Limiter is the decision entry point consumed by transport layers.
type Limiter interface {
	// Allow decides whether the next request from key is admitted.
	// It never blocks and never fails: denial is a normal Decision.
	Allow(ctx context.Context, key string) Decision
}

// RateLimiter binds one algorithm and one immutable policy to a state store
// and a clock.
type RateLimiter interface {
	Limiter

	// Reset forgets everything known about key.
	Reset(key string)
	// Len returns the number of clients with live state.
	Len() int
	// Sweep evicts idle clients now and returns how many were removed.
	Sweep() int
	// Algorithm returns the algorithm this limiter runs.
	Algorithm() Algorithm
	// Policy returns a copy of the policy this limiter enforces.
	Policy() Policy
	// Close stops background eviction, if any.
	Close() error
}

// Outcome is the two-valued result of a decision.
type Outcome string

const (
	Allowed Outcome = "allowed"
	Denied  Outcome = "denied"
)

// Decision captures the result of an admission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"` // Whole requests still admissible right now
	Limit     int       `json:"limit"`     // Limit or capacity of the policy
	ResetAt   time.Time `json:"reset_at"`  // When the window/bucket is fully replenished
	RetryAt   time.Time `json:"retry_at"`  // Earliest time a retry can succeed (denied only)
}

// Outcome maps the decision to Allowed or Denied.
func (d Decision) Outcome() Outcome {
	if d.Allowed {
		return Allowed
	}
	return Denied
}
