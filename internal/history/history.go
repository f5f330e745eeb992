package history

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is one observed event for a key. Content is empty for detectors
// that only need timestamps.
type Entry struct {
	At      time.Time
	Content string
}

// Store is a per-key, time-bounded event log. Entries are pruned lazily on
// each query against that query's own window, so consumers with different
// windows can share a store. Key cardinality is capped with an LRU so a
// raid cannot grow memory without bound.
type Store struct {
	mu    sync.Mutex
	clock Clock
	keys  *lru.Cache[string, []Entry]
}

func New(maxKeys int) *Store {
	if maxKeys <= 0 {
		maxKeys = 65536
	}
	cache, err := lru.New[string, []Entry](maxKeys)
	if err != nil {
		panic(err)
	}
	return &Store{clock: realClock{}, keys: cache}
}

func (s *Store) WithClock(clock Clock) {
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
}

// Record appends an entry for key at the current time and returns the count
// of entries newer than now-window matching the predicate (all entries when
// match is nil). Append and count happen under one lock so two in-flight
// evaluations for the same key cannot lose an increment.
func (s *Store) Record(key, content string, window time.Duration, match func(Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	entries, _ := s.keys.Get(key)
	entries = append(entries, Entry{At: now, Content: content})
	entries = prune(entries, now.Add(-window))
	s.keys.Add(key, entries)
	return count(entries, match)
}

// RecentCount counts without appending.
func (s *Store) RecentCount(key string, window time.Duration, match func(Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	entries, ok := s.keys.Get(key)
	if !ok {
		return 0
	}
	entries = prune(entries, now.Add(-window))
	s.keys.Add(key, entries)
	return count(entries, match)
}

// Clear drops all entries for a key. Called after a violation fires so the
// same burst does not re-trigger on the very next event.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	s.keys.Remove(key)
	s.mu.Unlock()
}

func prune(entries []Entry, cutoff time.Time) []Entry {
	idx := 0
	for _, e := range entries {
		if e.At.After(cutoff) {
			break
		}
		idx++
	}
	return entries[idx:]
}

func count(entries []Entry, match func(Entry) bool) int {
	if match == nil {
		return len(entries)
	}
	n := 0
	for _, e := range entries {
		if match(e) {
			n++
		}
	}
	return n
}
