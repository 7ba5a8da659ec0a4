// Package cache provides the keyed TTL stores owned by predictors and extractors.
package cache

import "time"

type entry[V any] struct {
	value   V
	expires time.Time
}

// Store is a plain keyed store with TTL-based staleness.
//
// A Store is not safe for concurrent use. Each predictor or extractor owns its
// own instance; callers that share one must serialize access.
type Store[V any] struct {
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a store whose entries expire ttl after being set.
// A non-positive ttl keeps entries until they are deleted.
func New[V any](ttl time.Duration, opts ...Option) *Store[V] {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     o.now,
	}
}

// Get returns the value for key if present and fresh. Stale entries are evicted.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (s *Store[V]) Set(key string, value V) {
	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}
	s.entries[key] = entry[V]{value: value, expires: expires}
}

// Delete removes key.
func (s *Store[V]) Delete(key string) {
	delete(s.entries, key)
}

// Len returns the number of entries, including stale ones not yet evicted.
func (s *Store[V]) Len() int {
	return len(s.entries)
}

// Purge drops every stale entry and returns how many were removed.
func (s *Store[V]) Purge() int {
	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear empties the store.
func (s *Store[V]) Clear() {
	s.entries = make(map[string]entry[V])
}

// TTL returns the configured entry lifetime.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}
