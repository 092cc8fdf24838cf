package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

func TestFilter_Empty_MatchesAll(t *testing.T) {
	r := recorder.TrafficRecord{Timestamp: epoch, Key: "any", Endpoint: "GET /any"}
	assert.True(t, Filter{}.Match(r), "empty filter should match all records")
}

func TestFilter_Keys(t *testing.T) {
	f := Filter{Keys: []string{"user1", "user2"}}

	assert.True(t, f.Match(recorder.TrafficRecord{Key: "user1"}))
	assert.True(t, f.Match(recorder.TrafficRecord{Key: "user2"}))
	assert.False(t, f.Match(recorder.TrafficRecord{Key: "user3"}))
}

func TestFilter_Endpoints(t *testing.T) {
	f := Filter{Endpoints: []string{"/api"}}

	assert.True(t, f.Match(recorder.TrafficRecord{Endpoint: "GET /api/data"}))
	assert.True(t, f.Match(recorder.TrafficRecord{Endpoint: "POST /api/users"}))
	assert.False(t, f.Match(recorder.TrafficRecord{Endpoint: "GET /health"}))
}

func TestFilter_Algorithms(t *testing.T) {
	f := Filter{Algorithms: []limiter.Algorithm{limiter.AlgorithmTokenBucket}}

	assert.True(t, f.Match(recorder.TrafficRecord{Algorithm: limiter.AlgorithmTokenBucket}))
	assert.False(t, f.Match(recorder.TrafficRecord{Algorithm: limiter.AlgorithmLeakyBucket}))
	assert.True(t, f.Match(recorder.TrafficRecord{}), "untagged records pass")
}

func TestFilter_After(t *testing.T) {
	f := Filter{After: epoch.Add(5 * time.Second)}

	assert.False(t, f.Match(recorder.TrafficRecord{Timestamp: epoch}))
	assert.False(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(5 * time.Second)}), "bound is exclusive")
	assert.True(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(6 * time.Second)}))
}

func TestFilter_Before(t *testing.T) {
	f := Filter{Before: epoch.Add(5 * time.Second)}

	assert.True(t, f.Match(recorder.TrafficRecord{Timestamp: epoch}))
	assert.False(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(5 * time.Second)}), "bound is exclusive")
}

func TestFilter_Combined(t *testing.T) {
	f := Filter{
		Keys:      []string{"user1"},
		Endpoints: []string{"/api"},
		After:     epoch,
		Before:    epoch.Add(10 * time.Second),
	}

	assert.True(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(5 * time.Second), Key: "user1", Endpoint: "GET /api/x"}))
	assert.False(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(5 * time.Second), Key: "user2", Endpoint: "GET /api/x"}))
	assert.False(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(5 * time.Second), Key: "user1", Endpoint: "GET /web"}))
	assert.False(t, f.Match(recorder.TrafficRecord{Timestamp: epoch.Add(15 * time.Second), Key: "user1", Endpoint: "GET /api/x"}))
}
