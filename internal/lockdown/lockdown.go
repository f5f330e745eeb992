package lockdown

import (
	"context"
	"sync"
	"time"

	"praetor/internal/modules/audit"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// Channel is the platform surface that flips a channel's send permission.
type Channel interface {
	LockChannel(ctx context.Context, guildID, channelID string) error
	UnlockChannel(ctx context.Context, guildID, channelID string) error
}

type Config struct {
	Duration time.Duration
}

// Manager applies timed channel locks. A second lock on an already locked
// channel extends nothing; the original timer stands.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	clock    Clock
	audit    *audit.Logger
	platform Channel
	locks    map[string]Timer
}

func New(cfg Config, platform Channel, auditLogger *audit.Logger) *Manager {
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		clock:    realClock{},
		audit:    auditLogger,
		platform: platform,
		locks:    make(map[string]Timer),
	}
}

func (m *Manager) WithClock(clock Clock) {
	m.clock = clock
}

// Lock closes a channel and schedules its reopening. Implements the
// dispatcher's Locker surface; platform errors are absorbed after auditing.
func (m *Manager) Lock(ctx context.Context, guildID, channelID string) {
	m.mu.Lock()
	if _, held := m.locks[channelID]; held {
		m.mu.Unlock()
		return
	}
	m.locks[channelID] = m.clock.AfterFunc(m.cfg.Duration, func() {
		m.Unlock(context.Background(), guildID, channelID)
	})
	m.mu.Unlock()

	if err := m.platform.LockChannel(ctx, guildID, channelID); err != nil {
		m.audit.Log(ctx, audit.LevelWarn, guildID, "", "channel_lock", "lock failed: "+err.Error())
		m.forget(channelID)
		return
	}
	m.audit.Log(ctx, audit.LevelWarn, guildID, "", "channel_lock", "channel locked: "+channelID)
}

func (m *Manager) Unlock(ctx context.Context, guildID, channelID string) {
	m.mu.Lock()
	timer, held := m.locks[channelID]
	if held {
		delete(m.locks, channelID)
	}
	m.mu.Unlock()
	if !held {
		return
	}
	timer.Stop()

	if err := m.platform.UnlockChannel(ctx, guildID, channelID); err != nil {
		m.audit.Log(ctx, audit.LevelWarn, guildID, "", "channel_lock", "unlock failed: "+err.Error())
		return
	}
	m.audit.Log(ctx, audit.LevelInfo, guildID, "", "channel_lock", "channel unlocked: "+channelID)
}

func (m *Manager) Active(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.locks[channelID]
	return held
}

func (m *Manager) forget(channelID string) {
	m.mu.Lock()
	if timer, held := m.locks[channelID]; held {
		timer.Stop()
		delete(m.locks, channelID)
	}
	m.mu.Unlock()
}
