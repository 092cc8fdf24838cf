// Package store holds per-client limiter state.
//
// Store is a concurrent map from client identity to an immutable state value.
// Every mutation goes through a compare-and-swap on the entry's record
// pointer, so a read-modify-write for one key is indivisible and updates for
// different keys never share a lock. Idle eviction uses the same CAS, which is
// what keeps a sweep from racing an in-flight update.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
)

// Store is a concurrent keyed store of limiter state.
//
// S should be treated as immutable once handed to the store: update functions
// must build a new value instead of writing through pointers or slices held by
// the old one, because a losing CAS attempt is discarded and retried.
type Store[S any] struct {
	clock   clock.Clock
	ttl     time.Duration
	entries sync.Map // string -> *cell[S]
	size    atomic.Int64
}

// cell is the stable per-key slot. Its record is swapped, never edited.
type cell[S any] struct {
	rec atomic.Pointer[record[S]]
}

type record[S any] struct {
	state   S
	touched time.Time
	evicted bool
}

// New creates a store. Entries untouched for ttl or longer are removed by
// Sweep; a non-positive ttl disables idle eviction.
func New[S any](c clock.Clock, ttl time.Duration) *Store[S] {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Store[S]{clock: c, ttl: ttl}
}

// TTL returns the idle eviction threshold.
func (s *Store[S]) TTL() time.Duration {
	return s.ttl
}

// GetOrInit returns the state stored for key, creating it from init if the
// key is absent.
func (s *Store[S]) GetOrInit(key string, init func() S) S {
	for {
		c := s.cellFor(key, init)
		rec := c.rec.Load()
		if rec.evicted {
			s.unlink(key, c)
			continue
		}
		return rec.state
	}
}

// Get returns the state stored for key without creating it.
func (s *Store[S]) Get(key string) (S, bool) {
	var zero S
	v, ok := s.entries.Load(key)
	if !ok {
		return zero, false
	}
	rec := v.(*cell[S]).rec.Load()
	if rec.evicted {
		return zero, false
	}
	return rec.state, true
}

// Update atomically replaces the state for key with fn(current). If the key
// is absent it is first initialised from init.
//
// fn may be invoked more than once when other goroutines update the same key
// concurrently; only the result of the final invocation is stored. Callers
// that need a by-product of fn should capture it in a variable that each
// invocation overwrites.
func (s *Store[S]) Update(key string, init func() S, fn func(S) S) {
	for {
		c := s.cellFor(key, init)
		if s.swap(c, fn) {
			return
		}
		// The cell was evicted between lookup and swap. Drop it and start
		// over on a fresh one rather than reviving the old state.
		s.unlink(key, c)
	}
}

// swap runs the CAS loop on one cell. It reports false if the cell has been
// tombstoned.
func (s *Store[S]) swap(c *cell[S], fn func(S) S) bool {
	for {
		cur := c.rec.Load()
		if cur.evicted {
			return false
		}
		next := &record[S]{state: fn(cur.state), touched: s.clock.Now()}
		if c.rec.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Delete removes key. It reports whether a live entry was removed.
func (s *Store[S]) Delete(key string) bool {
	v, ok := s.entries.Load(key)
	if !ok {
		return false
	}
	c := v.(*cell[S])
	for {
		cur := c.rec.Load()
		if cur.evicted {
			s.unlink(key, c)
			return false
		}
		if c.rec.CompareAndSwap(cur, &record[S]{state: cur.state, touched: cur.touched, evicted: true}) {
			s.unlink(key, c)
			return true
		}
	}
}

// Sweep evicts every entry idle for at least the store's ttl as of now and
// returns how many were removed. An entry updated concurrently with the
// sweep survives: the update's CAS and the eviction's CAS cannot both win.
func (s *Store[S]) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	evicted := 0
	s.entries.Range(func(k, v any) bool {
		key, c := k.(string), v.(*cell[S])
		cur := c.rec.Load()
		if cur.evicted {
			s.unlink(key, c)
			return true
		}
		if now.Sub(cur.touched) < s.ttl {
			return true
		}
		tomb := &record[S]{state: cur.state, touched: cur.touched, evicted: true}
		if c.rec.CompareAndSwap(cur, tomb) {
			s.unlink(key, c)
			evicted++
		}
		return true
	})
	return evicted
}

// Len returns the number of entries currently held.
func (s *Store[S]) Len() int {
	return int(s.size.Load())
}

// cellFor returns the live cell for key, installing a new one seeded by init
// when the key is absent.
func (s *Store[S]) cellFor(key string, init func() S) *cell[S] {
	if v, ok := s.entries.Load(key); ok {
		return v.(*cell[S])
	}

	fresh := &cell[S]{}
	fresh.rec.Store(&record[S]{state: init(), touched: s.clock.Now()})
	v, loaded := s.entries.LoadOrStore(key, fresh)
	if !loaded {
		s.size.Add(1)
	}
	return v.(*cell[S])
}

// unlink removes a tombstoned cell from the map. Several goroutines may race
// here; exactly one CompareAndDelete succeeds and adjusts the size.
func (s *Store[S]) unlink(key string, c *cell[S]) {
	if s.entries.CompareAndDelete(key, c) {
		s.size.Add(-1)
	}
}
