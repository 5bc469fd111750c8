// Package store provides a small in-memory TTL cache.
//
// DESIGN: The gateway caches derived, read-mostly reports (the usage
// summary over the audit ledger) so that dashboards polling the stats
// endpoint do not re-read the whole ledger on every request:
//   - Entries expire after a fixed TTL
//   - Purge drops everything, called when the underlying data changes
//   - A background goroutine evicts expired entries until Close
//
// Currently only MemoryStore is implemented. For multi-instance deployments,
// implement Store with Redis or similar.
package store

import (
	"sync"
	"time"
)

// DefaultTTL bounds how stale a cached report can get.
const DefaultTTL = 5 * time.Second

// cleanupInterval is how often expired entries are evicted.
const cleanupInterval = time.Minute

// Store defines the interface for the report cache.
type Store[V any] interface {
	// Set stores value under key until the TTL elapses.
	Set(key string, value V) error

	// Get retrieves a value if it exists and hasn't expired.
	Get(key string) (V, bool)

	// Delete removes one key.
	Delete(key string) error

	// Purge removes every key.
	Purge()

	// Close cleans up resources.
	Close() error
}

// MemoryStore is a simple in-memory implementation of Store.
type MemoryStore[V any] struct {
	data     map[string]entry[V]
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopped  bool
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store. ttl <= 0 uses DefaultTTL.
func NewMemoryStore[V any](ttl time.Duration) *MemoryStore[V] {
	return newMemoryStore[V](ttl, time.Now)
}

// NewMemoryStoreWithClock is NewMemoryStore with an injected clock.
func NewMemoryStoreWithClock[V any](ttl time.Duration, now func() time.Time) *MemoryStore[V] {
	return newMemoryStore[V](ttl, now)
}

func newMemoryStore[V any](ttl time.Duration, now func() time.Time) *MemoryStore[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore[V]{
		data:     make(map[string]entry[V]),
		ttl:      ttl,
		now:      now,
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	go s.cleanup()

	return s
}

// Set stores value with the store TTL.
func (s *MemoryStore[V]) Set(key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	s.data[key] = entry[V]{
		value:     value,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Get retrieves a value if it exists and hasn't expired.
func (s *MemoryStore[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero V
	e, exists := s.data[key]
	if !exists {
		return zero, false
	}

	if s.now().After(e.expiresAt) {
		return zero, false
	}

	return e.value, true
}

// Delete removes a value.
func (s *MemoryStore[V]) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Purge removes every value.
func (s *MemoryStore[V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.data = make(map[string]entry[V])
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the cleanup goroutine and clears data.
func (s *MemoryStore[V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.data = nil
	}
	return nil
}

// cleanup periodically removes expired entries.
func (s *MemoryStore[V]) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryStore[V]) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	now := s.now()
	for key, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, key)
		}
	}
}

// Ensure MemoryStore implements Store
var _ Store[int] = (*MemoryStore[int])(nil)
