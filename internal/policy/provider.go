package policy

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Store is the persistence surface the provider needs. Implemented by
// internal/storage.
type Store interface {
	GetGuildPolicies(ctx context.Context, guildID string) ([]byte, error)
	SaveGuildPolicies(ctx context.Context, guildID string, document []byte) error
}

// Provider materializes per-guild configuration lazily, merging stored
// documents over Defaults. Get returns a value copy so evaluation never
// observes a config command mid-write.
type Provider struct {
	mu     sync.RWMutex
	store  Store
	logger *zap.Logger
	cache  map[string]GuildConfig
}

func NewProvider(store Store, logger *zap.Logger) *Provider {
	return &Provider{
		store:  store,
		logger: logger,
		cache:  make(map[string]GuildConfig),
	}
}

func (p *Provider) Get(ctx context.Context, guildID string) GuildConfig {
	p.mu.RLock()
	cfg, ok := p.cache[guildID]
	p.mu.RUnlock()
	if ok {
		return cfg
	}

	cfg = Defaults()
	if p.store != nil {
		doc, err := p.store.GetGuildPolicies(ctx, guildID)
		if err != nil {
			p.logger.Warn("guild policy load failed", zap.String("guild_id", guildID), zap.Error(err))
		} else if len(doc) > 0 {
			if err := json.Unmarshal(doc, &cfg); err != nil {
				p.logger.Warn("guild policy document invalid", zap.String("guild_id", guildID), zap.Error(err))
				cfg = Defaults()
			}
		}
	}
	cfg.Normalize()

	p.mu.Lock()
	p.cache[guildID] = cfg
	p.mu.Unlock()
	return cfg
}

// Set replaces a guild's configuration and persists it. Persistence is
// fire-and-forget: a failed save keeps the in-memory config current and is
// only logged.
func (p *Provider) Set(ctx context.Context, guildID string, cfg GuildConfig) {
	cfg.Normalize()

	p.mu.Lock()
	p.cache[guildID] = cfg
	p.mu.Unlock()

	if p.store == nil {
		return
	}
	doc, err := json.Marshal(cfg)
	if err != nil {
		p.logger.Error("guild policy marshal failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if err := p.store.SaveGuildPolicies(ctx, guildID, doc); err != nil {
		p.logger.Warn("guild policy save failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

// Update applies fn to the guild's current configuration and stores the
// result.
func (p *Provider) Update(ctx context.Context, guildID string, fn func(*GuildConfig)) GuildConfig {
	cfg := p.Get(ctx, guildID)
	fn(&cfg)
	p.Set(ctx, guildID, cfg)
	return cfg
}
