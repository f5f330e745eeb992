package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"praetor/internal/detect"
	"praetor/internal/dispatch"
	"praetor/internal/policy"
)

type stubPlatform struct {
	calls int
}

func (s *stubPlatform) DeleteMessage(context.Context, string, string) error { s.calls++; return nil }

func (s *stubPlatform) RecentMessages(context.Context, string, int) ([]dispatch.PlatformMessage, error) {
	s.calls++
	return nil, nil
}

func (s *stubPlatform) BulkDelete(context.Context, string, []string) error { s.calls++; return nil }

func (s *stubPlatform) CanModerate(string, string) bool { return true }

func (s *stubPlatform) Timeout(context.Context, string, string, time.Time, string) error {
	s.calls++
	return nil
}

func (s *stubPlatform) Kick(context.Context, string, string, string) error { s.calls++; return nil }

func (s *stubPlatform) Ban(context.Context, string, string, string) error { s.calls++; return nil }

func (s *stubPlatform) Disconnect(context.Context, string, string) error { s.calls++; return nil }

func (s *stubPlatform) RemoveRoles(context.Context, string, string) error { s.calls++; return nil }

func (s *stubPlatform) Revert(context.Context, string, detect.AdminKind, string) error {
	s.calls++
	return nil
}

func (s *stubPlatform) Notify(context.Context, string, string) error { s.calls++; return nil }

func newTestPipeline(platform dispatch.Platform) *Pipeline {
	logger := zap.NewNop()
	policies := policy.NewProvider(nil, logger)
	eval := detect.NewEvaluator(detect.NewState(64))
	dispatcher := dispatch.New(platform, logger)
	return New(policies, eval, dispatcher, logger)
}

func spamMessage() detect.Message {
	return detect.Message{
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		AuthorID:  "u1",
		Content:   "@everyone check this out",
		MentionsEveryone: true,
	}
}

func TestHandleMessageSanctionsViolation(t *testing.T) {
	platform := &stubPlatform{}
	p := newTestPipeline(platform)

	if !p.HandleMessage(context.Background(), spamMessage()) {
		t.Fatal("expected the violation to be handled")
	}
	if platform.calls == 0 {
		t.Fatal("expected platform calls")
	}
}

func TestHandleMessageSkipsDirectMessages(t *testing.T) {
	platform := &stubPlatform{}
	p := newTestPipeline(platform)

	ev := spamMessage()
	ev.GuildID = ""
	if p.HandleMessage(context.Background(), ev) {
		t.Fatal("guildless messages are out of scope")
	}
	if platform.calls != 0 {
		t.Fatal("no platform calls for guildless messages")
	}
}

func TestWhitelistShortCircuits(t *testing.T) {
	platform := &stubPlatform{}
	p := newTestPipeline(platform)
	p.WithWhitelist(func(_ context.Context, _, userID string) bool { return userID == "u1" })

	if p.HandleMessage(context.Background(), spamMessage()) {
		t.Fatal("whitelisted users bypass every detector")
	}
	if platform.calls != 0 {
		t.Fatal("no platform calls for whitelisted users")
	}
}

func TestWhitelistCoversJoins(t *testing.T) {
	platform := &stubPlatform{}
	p := newTestPipeline(platform)
	p.WithWhitelist(func(context.Context, string, string) bool { return true })

	// A brand-new account joining twice would trip both the age gate and
	// the join limit for anyone not exempt.
	ev := detect.Join{GuildID: "g1", UserID: "u1", JoinedAt: time.Now(), AccountCreatedAt: time.Now()}
	for i := 0; i < 2; i++ {
		if p.HandleJoin(context.Background(), ev) {
			t.Fatal("whitelisted joins are never sanctioned")
		}
	}
	if platform.calls != 0 {
		t.Fatal("no platform calls for whitelisted joins")
	}
}

func TestAuditModeSimulatesSanctions(t *testing.T) {
	platform := &stubPlatform{}
	p := newTestPipeline(platform)
	p.WithAuditMode(func(context.Context, string) bool { return true })

	if !p.HandleMessage(context.Background(), spamMessage()) {
		t.Fatal("audit mode still reports the event handled")
	}
	if platform.calls != 0 {
		t.Fatal("audit mode must not touch the platform")
	}
}

func TestGuardIsolatesPanics(t *testing.T) {
	platform := &stubPlatform{}
	logger := zap.NewNop()
	policies := policy.NewProvider(nil, logger)
	dispatcher := dispatch.New(platform, logger)
	// A nil evaluator panics on first use; the guard must contain it.
	p := New(policies, nil, dispatcher, logger)

	if p.HandleMessage(context.Background(), spamMessage()) {
		t.Fatal("panicked evaluation reports unhandled")
	}
}

func TestHandleAdminActionRequiresActor(t *testing.T) {
	platform := &stubPlatform{}
	p := newTestPipeline(platform)

	ev := detect.AdminAction{GuildID: "g1", Kind: detect.KindWebhookCreate}
	if p.HandleAdminAction(context.Background(), ev) {
		t.Fatal("actorless events are skipped")
	}

	ev.ActorID = "mod1"
	if !p.HandleAdminAction(context.Background(), ev) {
		t.Fatal("expected webhook restriction to fire")
	}
}
