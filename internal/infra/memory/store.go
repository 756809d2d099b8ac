// Package memory provides the process-local bounded stores backing the guard.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

var (
	// ErrInvalidCapacity is returned when a store is created without room for any identifier.
	ErrInvalidCapacity = errors.New("memory: capacity must be positive")
	// ErrInvalidTTL is returned when a store is created with a non-positive time-to-live.
	ErrInvalidTTL = errors.New("memory: ttl must be positive")
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Store is a capacity- and time-bounded map from identifier to value.
// Beyond capacity the least recently accessed identifier is evicted; an entry whose
// TTL elapsed since its last Put is reported absent and dropped on the next access or sweep.
// Store is safe for concurrent use.
type Store[V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, entry[V]]
	capacity int
	ttl      time.Duration
}

// NewStore creates a store holding at most capacity identifiers for ttl each.
func NewStore[V any](capacity int, ttl time.Duration) (*Store[V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	cache, err := simplelru.NewLRU[string, entry[V]](capacity, nil)
	if err != nil {
		return nil, err
	}

	return &Store[V]{
		lru:      cache,
		capacity: capacity,
		ttl:      ttl,
	}, nil
}

// Get returns the value stored for key and marks it as recently used.
func (s *Store[V]) Get(key string, now time.Time) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	e, ok := s.lru.Get(key)
	if !ok {
		return zero, false
	}
	if s.expired(e, now) {
		s.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Put replaces the value for key, refreshing its recency and TTL.
func (s *Store[V]) Put(key string, value V, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Add(key, entry[V]{value: value, storedAt: now})
}

// Delete removes key. It reports whether the key was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Remove(key)
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store[V]) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.lru.Keys() {
		e, ok := s.lru.Peek(key)
		if ok && s.expired(e, now) {
			s.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored identifiers, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Len()
}

// Cap returns the maximum number of identifiers the store holds.
func (s *Store[V]) Cap() int {
	return s.capacity
}

// TTL returns the entry time-to-live.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}

// Purge empties the store.
func (s *Store[V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Purge()
}

func (s *Store[V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.storedAt) >= s.ttl
}
