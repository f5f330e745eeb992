package history

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestRecordCountsWithinWindow(t *testing.T) {
	store := New(16)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store.WithClock(clock)

	window := 5 * time.Second
	if got := store.Record("g1:u1", "", window, nil); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	clock.Advance(time.Second)
	if got := store.Record("g1:u1", "", window, nil); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	clock.Advance(10 * time.Second)
	if got := store.Record("g1:u1", "", window, nil); got != 1 {
		t.Fatalf("expected old entries pruned, got %d", got)
	}
}

func TestRecordMatchPredicate(t *testing.T) {
	store := New(16)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store.WithClock(clock)

	window := 10 * time.Second
	store.Record("k", "hello", window, nil)
	store.Record("k", "other", window, nil)
	got := store.Record("k", "hello", window, func(e Entry) bool { return e.Content == "hello" })
	if got != 2 {
		t.Fatalf("expected 2 matching entries, got %d", got)
	}
}

func TestRecentCountDoesNotAppend(t *testing.T) {
	store := New(16)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store.WithClock(clock)

	window := 5 * time.Second
	store.Record("k", "", window, nil)
	if got := store.RecentCount("k", window, nil); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := store.RecentCount("k", window, nil); got != 1 {
		t.Fatalf("expected count unchanged, got %d", got)
	}
	if got := store.RecentCount("missing", window, nil); got != 0 {
		t.Fatalf("expected 0 for unknown key, got %d", got)
	}
}

func TestClearDropsKey(t *testing.T) {
	store := New(16)
	window := time.Minute
	store.Record("k", "", window, nil)
	store.Clear("k")
	if got := store.RecentCount("k", window, nil); got != 0 {
		t.Fatalf("expected 0 after clear, got %d", got)
	}
}

func TestKeyCardinalityBounded(t *testing.T) {
	store := New(2)
	window := time.Minute
	store.Record("a", "", window, nil)
	store.Record("b", "", window, nil)
	store.Record("c", "", window, nil)
	if got := store.RecentCount("a", window, nil); got != 0 {
		t.Fatalf("expected oldest key evicted, got %d", got)
	}
}

func TestNukeBumpAndReset(t *testing.T) {
	data := NewNukeData()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	data.WithClock(clock)

	window := 10 * time.Second
	if got := data.Bump("g1", "u1", "channel_delete", window); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := data.Bump("g1", "u1", "channel_delete", window); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := data.Bump("g1", "u1", "role_delete", window); got != 1 {
		t.Fatalf("expected separate counter per kind, got %d", got)
	}
	if got := data.Bump("g1", "u2", "channel_delete", window); got != 1 {
		t.Fatalf("expected separate counter per actor, got %d", got)
	}

	clock.Advance(15 * time.Second)
	if got := data.Bump("g1", "u1", "channel_delete", window); got != 1 {
		t.Fatalf("expected window expiry, got %d", got)
	}

	data.Bump("g1", "u1", "channel_delete", window)
	data.Reset("g1", "u1", "channel_delete")
	if got := data.Bump("g1", "u1", "channel_delete", window); got != 1 {
		t.Fatalf("expected reset counter, got %d", got)
	}
}
