package history

import (
	"sync"
	"time"
)

// NukeData accumulates timestamped administrative actions per
// (guild, actor, action kind) inside a rolling window. Created lazily per
// actor, cleared on sanction, never persisted.
type NukeData struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string][]time.Time
}

func NewNukeData() *NukeData {
	return &NukeData{clock: realClock{}, entries: make(map[string][]time.Time)}
}

func (n *NukeData) WithClock(clock Clock) {
	n.mu.Lock()
	n.clock = clock
	n.mu.Unlock()
}

// Bump records one action and returns the windowed count, atomically.
func (n *NukeData) Bump(guildID, actorID, kind string, window time.Duration) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := nukeKey(guildID, actorID, kind)
	now := n.clock.Now()
	cutoff := now.Add(-window)

	times := n.entries[key]
	idx := 0
	for _, t := range times {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	times = append(times[idx:], now)
	n.entries[key] = times
	return len(times)
}

// Reset clears one actor's counter for one action kind.
func (n *NukeData) Reset(guildID, actorID, kind string) {
	n.mu.Lock()
	delete(n.entries, nukeKey(guildID, actorID, kind))
	n.mu.Unlock()
}

func nukeKey(guildID, actorID, kind string) string {
	return guildID + ":" + actorID + ":" + kind
}
