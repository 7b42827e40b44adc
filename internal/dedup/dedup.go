// Package dedup implements a recency-bounded duplicate suppressor for event
// keys. The listener runs indefinitely, so retention is capped: the guarantee
// is "no duplicate within the eviction window", not "no duplicate ever".
package dedup

import "sync"

// DefaultCapacity is the log-key window size; BlockCapacity bounds the
// duplicate block-notification window.
const (
	DefaultCapacity = 100_000
	BlockCapacity   = 4096
)

// Set is a fixed-capacity set of recently seen keys. When full, the oldest
// key is evicted on insert. Safe for concurrent use.
type Set struct {
	mu   sync.Mutex
	keys map[string]struct{}
	ring []string
	next int
}

// New creates a Set holding at most capacity keys.
func New(capacity int) *Set {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Set{
		keys: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// Seen reports whether key was already recorded, recording it if not.
// Check-and-set is atomic under concurrent callers.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return true
	}
	s.addLocked(key)
	return false
}

// Contains reports whether key is currently retained, without recording it.
func (s *Set) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Add records key. Re-adding a retained key is a no-op.
func (s *Set) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return
	}
	s.addLocked(key)
}

func (s *Set) addLocked(key string) {
	if old := s.ring[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.ring[s.next] = key
	s.next = (s.next + 1) % len(s.ring)
	s.keys[key] = struct{}{}
}

// Len returns the number of keys currently retained.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
