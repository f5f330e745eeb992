package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	docs  map[string][]byte
	saved map[string][]byte
	err   error
}

func (f *fakeStore) GetGuildPolicies(_ context.Context, guildID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[guildID], nil
}

func (f *fakeStore) SaveGuildPolicies(_ context.Context, guildID string, document []byte) error {
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[guildID] = document
	return nil
}

func TestDefaultsAreUsable(t *testing.T) {
	cfg := Defaults()
	if !cfg.Spam.Enabled || cfg.Spam.MessageLimit != 3 {
		t.Fatalf("unexpected spam defaults: %+v", cfg.Spam)
	}
	if cfg.Spam.Window() != 5*time.Second {
		t.Fatalf("unexpected spam window %v", cfg.Spam.Window())
	}
	if cfg.Nuke.Window() != 10*time.Second {
		t.Fatalf("unexpected nuke window %v", cfg.Nuke.Window())
	}
	if len(cfg.Virus.BlockedExtensions) == 0 {
		t.Fatal("antivirus defaults must carry a deny-list")
	}
}

func TestWindowFallbacks(t *testing.T) {
	if (SpamPolicy{}).Window() != 5*time.Second {
		t.Fatal("zero spam window must fall back")
	}
	if (DuplicatePolicy{}).Window() != time.Minute {
		t.Fatal("zero duplicate window must fall back to a minute")
	}
	if (SpamPolicy{TimeWindowMs: 2500}).Window() != 2500*time.Millisecond {
		t.Fatal("explicit window must be honored")
	}
	if (SpamPolicy{}).Timeout() != 5*time.Minute {
		t.Fatal("zero timeout must fall back")
	}
}

func TestProviderMergesStoredDocument(t *testing.T) {
	store := &fakeStore{docs: map[string][]byte{
		"g1": []byte(`{"antiSpam":{"enabled":false},"antiCapsSpam":{"enabled":true,"capsPercentage":90}}`),
	}}
	p := NewProvider(store, zap.NewNop())

	cfg := p.Get(context.Background(), "g1")
	if cfg.Spam.Enabled {
		t.Fatal("stored document must override defaults")
	}
	if cfg.Caps.Percentage != 90 {
		t.Fatalf("expected caps percentage 90, got %v", cfg.Caps.Percentage)
	}
	// Policies absent from the document keep their defaults.
	if !cfg.Invite.Enabled {
		t.Fatal("untouched policies keep defaults")
	}
}

func TestProviderForcesAntivirusOn(t *testing.T) {
	store := &fakeStore{docs: map[string][]byte{
		"g1": []byte(`{"antivirus":{"enabled":false,"blockedExtensions":[]}}`),
	}}
	p := NewProvider(store, zap.NewNop())

	cfg := p.Get(context.Background(), "g1")
	if !cfg.Virus.Enabled {
		t.Fatal("antivirus cannot be disabled")
	}
	if len(cfg.Virus.BlockedExtensions) == 0 {
		t.Fatal("empty deny-list must be refilled")
	}
}

func TestProviderToleratesStoreFailuresAndBadDocuments(t *testing.T) {
	p := NewProvider(&fakeStore{err: errors.New("db down")}, zap.NewNop())
	cfg := p.Get(context.Background(), "g1")
	if !cfg.Spam.Enabled {
		t.Fatal("load failure must fall back to defaults")
	}

	p = NewProvider(&fakeStore{docs: map[string][]byte{"g2": []byte("{not json")}}, zap.NewNop())
	cfg = p.Get(context.Background(), "g2")
	if !cfg.Spam.Enabled {
		t.Fatal("invalid document must fall back to defaults")
	}
}

func TestProviderUpdatePersists(t *testing.T) {
	store := &fakeStore{}
	p := NewProvider(store, zap.NewNop())

	cfg := p.Update(context.Background(), "g1", func(c *GuildConfig) {
		c.Spam.MessageLimit = 10
	})
	if cfg.Spam.MessageLimit != 10 {
		t.Fatalf("expected updated limit, got %d", cfg.Spam.MessageLimit)
	}
	if len(store.saved["g1"]) == 0 {
		t.Fatal("update must persist the document")
	}
	if got := p.Get(context.Background(), "g1"); got.Spam.MessageLimit != 10 {
		t.Fatalf("cache must reflect the update, got %d", got.Spam.MessageLimit)
	}
}

func TestToggle(t *testing.T) {
	cfg := Defaults()
	if !Toggle(&cfg, AntiSpam, false) {
		t.Fatal("expected known policy to toggle")
	}
	if cfg.Spam.Enabled {
		t.Fatal("toggle did not apply")
	}
	if Toggle(&cfg, Antivirus, false) {
		t.Fatal("antivirus must refuse to toggle")
	}
	if Toggle(&cfg, Name("nope"), true) {
		t.Fatal("unknown name must refuse to toggle")
	}
}

func TestSetValue(t *testing.T) {
	cfg := Defaults()

	if !SetValue(&cfg, AntiSpam, "messageLimit", 7) || cfg.Spam.MessageLimit != 7 {
		t.Fatalf("messageLimit not applied: %+v", cfg.Spam)
	}
	if !SetValue(&cfg, AntiLink, "limit", 9) || cfg.Link.Limit != 9 {
		t.Fatalf("limit not applied: %+v", cfg.Link)
	}
	if !SetValue(&cfg, AntiCaps, "capsPercentage", 85) || cfg.Caps.Percentage != 85 {
		t.Fatalf("capsPercentage not applied: %+v", cfg.Caps)
	}
	if !SetValue(&cfg, AntiRaid, "accountAgeLimit", 7) || cfg.Raid.AccountAgeDaysMin != 7 {
		t.Fatalf("accountAgeLimit not applied: %+v", cfg.Raid)
	}
	if !SetValue(&cfg, AntiNuke, "banLimit", 4) || cfg.Nuke.BanLimit != 4 {
		t.Fatalf("banLimit not applied: %+v", cfg.Nuke)
	}

	if SetValue(&cfg, AntiSpam, "bogus", 1) {
		t.Fatal("unknown key must be rejected")
	}
	if SetValue(&cfg, AntiSpam, "messageLimit", -1) {
		t.Fatal("negative values must be rejected")
	}
	if SetValue(&cfg, AntiInvite, "limit", 1) {
		t.Fatal("toggle-only policies carry no numeric settings")
	}
}
