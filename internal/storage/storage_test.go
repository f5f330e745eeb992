package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	// Every pooled connection would otherwise see its own empty in-memory
	// database.
	store.db.SetMaxOpenConns(1)
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestGuildSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	defaults := GuildSettings{Mode: "normal", RetentionDays: 14}

	got, err := store.GetGuildSettings(ctx, "g1", defaults)
	if err != nil {
		t.Fatalf("get defaults: %v", err)
	}
	if got.Mode != "normal" || got.RetentionDays != 14 || got.GuildID != "g1" {
		t.Fatalf("unexpected defaults %+v", got)
	}

	want := GuildSettings{
		GuildID:            "g1",
		SecurityLogChannel: "c-log",
		Mode:               "audit",
		RetentionDays:      30,
		LockdownEnabled:    true,
	}
	if err := store.UpsertGuildSettings(ctx, want); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = store.GetGuildSettings(ctx, "g1", defaults)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	want.Mode = "normal"
	if err := store.UpsertGuildSettings(ctx, want); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = store.GetGuildSettings(ctx, "g1", defaults)
	if got.Mode != "normal" {
		t.Fatalf("upsert must overwrite, got %+v", got)
	}
}

func TestGuildPoliciesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.GetGuildPolicies(ctx, "g1")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %q", doc)
	}

	if err := store.SaveGuildPolicies(ctx, "g1", []byte(`{"antiSpam":{"enabled":false}}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveGuildPolicies(ctx, "g1", []byte(`{"antiSpam":{"enabled":true}}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	doc, err = store.GetGuildPolicies(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc) != `{"antiSpam":{"enabled":true}}` {
		t.Fatalf("unexpected document %q", doc)
	}
}

func TestAuditLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	logs := []AuditLog{
		{GuildID: "g1", UserID: "u1", Level: "warn", Event: "antiSpam", Details: "message burst", CreatedAt: now.Add(-time.Hour)},
		{GuildID: "g1", UserID: "u2", Level: "crit", Event: "antiNuke", Details: "channel_delete x3", CreatedAt: now},
		{GuildID: "g2", UserID: "u3", Level: "info", Event: "mode", Details: "audit", CreatedAt: now},
	}
	for _, log := range logs {
		if err := store.AddAuditLog(ctx, log); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	got, err := store.ListAuditLogs(ctx, "g1", now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[0].Event != "antiNuke" {
		t.Fatalf("expected newest first, got %+v", got[0])
	}

	got, err = store.ListAuditLogs(ctx, "g1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("since filter failed, got %d", len(got))
	}
}

func TestWhitelists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddWhitelistUser(ctx, "g1", "u1"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := store.AddWhitelistUser(ctx, "g1", "u1"); err != nil {
		t.Fatalf("duplicate add must be ignored: %v", err)
	}
	store.AddWhitelistUser(ctx, "g1", "u2")
	store.AddWhitelistRole(ctx, "g1", "r1")

	users, err := store.ListWhitelistUsers(ctx, "g1")
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("unexpected users %v", users)
	}

	if err := store.RemoveWhitelistUser(ctx, "g1", "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	users, _ = store.ListWhitelistUsers(ctx, "g1")
	if len(users) != 1 || users[0] != "u2" {
		t.Fatalf("unexpected users after remove %v", users)
	}

	roles, err := store.ListWhitelistRoles(ctx, "g1")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 1 || roles[0] != "r1" {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestDomainListsAreLowercased(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddDomainAllow(ctx, "g1", "OK.Example")
	store.AddDomainBlock(ctx, "g1", "Bad.Example")

	allow, err := store.ListDomainAllow(ctx, "g1")
	if err != nil {
		t.Fatalf("list allow: %v", err)
	}
	if len(allow) != 1 || allow[0] != "ok.example" {
		t.Fatalf("unexpected allowlist %v", allow)
	}
	block, _ := store.ListDomainBlock(ctx, "g1")
	if len(block) != 1 || block[0] != "bad.example" {
		t.Fatalf("unexpected blocklist %v", block)
	}

	if err := store.RemoveDomainBlock(ctx, "g1", "BAD.EXAMPLE"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	block, _ = store.ListDomainBlock(ctx, "g1")
	if len(block) != 0 {
		t.Fatalf("expected empty blocklist, got %v", block)
	}
}

func TestSanctionCounterAndEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.IncrementSanction(ctx, "g1", "u1", "antiSpam", "timeout", time.Hour)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	count, _ = store.IncrementSanction(ctx, "g1", "u1", "antiSpam", "timeout", time.Hour)
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	sanction, err := store.GetSanction(ctx, "g1", "u1", "antiSpam")
	if err != nil {
		t.Fatalf("get sanction: %v", err)
	}
	if sanction.CountTotal != 2 || sanction.LastAction != "timeout" {
		t.Fatalf("unexpected sanction %+v", sanction)
	}
	if sanction.ResetAt == nil {
		t.Fatal("expected a reset deadline")
	}

	// An expired reset deadline starts the counter over.
	expired := time.Now().Add(-time.Minute).Unix()
	if _, err := store.db.ExecContext(ctx, `UPDATE user_sanctions SET reset_at = ? WHERE guild_id = 'g1' AND user_id = 'u1'`, expired); err != nil {
		t.Fatalf("expire deadline: %v", err)
	}
	count, _ = store.IncrementSanction(ctx, "g1", "u1", "antiSpam", "timeout", time.Hour)
	if count != 1 {
		t.Fatalf("expected restart at 1, got %d", count)
	}

	if err := store.RecordSanction(ctx, "ev-1", "g1", "u2", "antiToken", "ban", "credential token shape"); err != nil {
		t.Fatalf("record: %v", err)
	}
	events, err := store.ListSanctionEvents(ctx, "g1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" || events[0].Policy != "antiToken" {
		t.Fatalf("unexpected events %+v", events)
	}

	counts, err := store.CountSanctionsByPolicy(ctx, "g1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["antiToken"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
