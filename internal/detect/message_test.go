package detect

import (
	"strings"
	"testing"
	"time"

	"praetor/internal/policy"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestEvaluator() (*Evaluator, *fakeClock) {
	state := NewState(128)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	state.WithClock(clock)
	return NewEvaluator(state), clock
}

func msg(content string) Message {
	return Message{GuildID: "g1", ChannelID: "c1", MessageID: "m1", AuthorID: "u1", Content: content}
}

func TestMessageBurst(t *testing.T) {
	eval, clock := newTestEvaluator()
	cfg := policy.Defaults()

	for i := 0; i < 2; i++ {
		if v := eval.Message(msg("hi "+strings.Repeat("x", i)), cfg); v.Violation() {
			t.Fatalf("message %d: unexpected violation %q", i+1, v.Policy)
		}
		clock.Advance(500 * time.Millisecond)
	}
	v := eval.Message(msg("third"), cfg)
	if v.Policy != policy.AntiSpam {
		t.Fatalf("expected antiSpam, got %q", v.Policy)
	}
	if !v.Sweep || v.SweepWindow != 5*time.Second {
		t.Fatalf("expected sweep over the burst window, got %+v", v)
	}
	if v.Timeout != 5*time.Minute {
		t.Fatalf("expected default timeout, got %v", v.Timeout)
	}

	// History was cleared on fire; the next message starts a fresh window.
	if v := eval.Message(msg("fourth"), cfg); v.Violation() {
		t.Fatalf("expected clean slate after clear, got %q", v.Policy)
	}
}

func TestMessageBurstWindowExpiry(t *testing.T) {
	eval, clock := newTestEvaluator()
	cfg := policy.Defaults()

	eval.Message(msg("a"), cfg)
	eval.Message(msg("b"), cfg)
	clock.Advance(6 * time.Second)
	if v := eval.Message(msg("c"), cfg); v.Violation() {
		t.Fatalf("expected expired window, got %q", v.Policy)
	}
}

func TestDuplicateMessages(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()

	if v := eval.Message(msg("buy cheap nitro"), cfg); v.Violation() {
		t.Fatalf("first copy should pass, got %q", v.Policy)
	}
	v := eval.Message(msg("  buy cheap nitro  "), cfg)
	if v.Policy != policy.AntiDuplicate {
		t.Fatalf("expected antiDuplicateSpam on second copy, got %q", v.Policy)
	}
	if v.SweepContent != "buy cheap nitro" {
		t.Fatalf("expected trimmed sweep content, got %q", v.SweepContent)
	}
}

func TestDuplicateIgnoresDifferentContent(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Spam.Enabled = false

	eval.Message(msg("one"), cfg)
	eval.Message(msg("two"), cfg)
	if v := eval.Message(msg("three"), cfg); v.Violation() {
		t.Fatalf("distinct messages must not count as duplicates, got %q", v.Policy)
	}
}

func TestAttachmentAndStickerLimits(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Duplicate.Enabled = false

	ev := msg("")
	ev.AttachmentNames = []string{"a.png", "b.png", "c.png", "d.png", "e.png", "f.png"}
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiAttachment {
		t.Fatalf("expected antiAttachmentSpam, got %q", v.Policy)
	}

	ev = msg("")
	ev.StickerCount = 4
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiSticker {
		t.Fatalf("expected antiStickerSpam, got %q", v.Policy)
	}
}

func TestEveryoneMentionExemptions(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Spam.Enabled = false
	cfg.Duplicate.Enabled = false

	ev := msg("@everyone free stuff")
	ev.MentionsEveryone = true
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiMention {
		t.Fatalf("expected antiMentionSpam, got %q", v.Policy)
	}

	ev.AuthorIsAdmin = true
	if v := eval.Message(ev, cfg); v.Violation() {
		t.Fatalf("admins may ping everyone, got %q", v.Policy)
	}

	ev = msg("hello")
	ev.UserMentions = 3
	ev.RoleMentions = 1
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiMention {
		t.Fatalf("expected mention count violation, got %q", v.Policy)
	}
}

func TestBlockedAttachmentExtensionAlwaysEnforced(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Virus.Enabled = false
	cfg.Virus.BlockedExtensions = nil

	ev := msg("invoice attached")
	ev.AttachmentNames = []string{"invoice.EXE"}
	v := eval.Message(ev, cfg)
	if v.Policy != policy.Antivirus {
		t.Fatalf("expected antivirus, got %q", v.Policy)
	}
	if v.Action != policy.ActionDelete {
		t.Fatalf("antivirus action is always delete, got %q", v.Action)
	}
}

func TestLinkDomainLists(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Spam.Enabled = false
	cfg.Duplicate.Enabled = false

	ev := msg("see https://evil.example/free")
	ev.BlockedDomains = map[string]struct{}{"evil.example": {}}
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiLink {
		t.Fatalf("expected blocked domain violation, got %q", v.Policy)
	}

	ev = msg("https://sub.evil.example/free")
	ev.BlockedDomains = map[string]struct{}{"evil.example": {}}
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiLink {
		t.Fatalf("expected parent-domain block, got %q", v.Policy)
	}

	many := "https://ok.example/1 https://ok.example/2 https://ok.example/3 https://ok.example/4"
	ev = msg(many)
	ev.AllowedDomains = map[string]struct{}{"ok.example": {}}
	if v := eval.Message(ev, cfg); v.Violation() {
		t.Fatalf("allowlisted links are uncounted, got %q", v.Policy)
	}

	ev = msg(many)
	if v := eval.Message(ev, cfg); v.Policy != policy.AntiLink {
		t.Fatalf("expected link count violation, got %q", v.Policy)
	}
}

func TestInviteAdvertising(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()

	if v := eval.Message(msg("join discord.gg/abc123"), cfg); v.Policy != policy.AntiInvite {
		t.Fatalf("expected antiInviteSpam, got %q", v.Policy)
	}
	if v := eval.Message(msg("the gg ruling was fine"), cfg); v.Violation() {
		t.Fatalf("plain text is not an invite, got %q", v.Policy)
	}
}

func TestCapsPercentage(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Spam.Enabled = false

	if v := eval.Message(msg("STOP SHOUTING RIGHT NOW"), cfg); v.Policy != policy.AntiCaps {
		t.Fatalf("expected antiCapsSpam, got %q", v.Policy)
	}
	// Below MinLength the check never runs.
	if v := eval.Message(msg("WAIT"), cfg); v.Violation() {
		t.Fatalf("short shouts pass, got %q", v.Policy)
	}
	// No ASCII letters at all.
	if v := eval.Message(msg("1234567890!!"), cfg); v.Violation() {
		t.Fatalf("letterless content passes, got %q", v.Policy)
	}
}

func TestCrashTextShapes(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Spam.Enabled = false

	cases := []string{
		"///////crash",
		"evil ‮ gnp.exe",
		"null byte \x00 here",
	}
	for _, content := range cases {
		if v := eval.Message(msg(content), cfg); v.Policy != policy.AntiCrash {
			t.Fatalf("%q: expected antiBug, got %q", content, v.Policy)
		}
	}
	if v := eval.Message(msg("plain /command and\ttabs"), cfg); v.Violation() {
		t.Fatalf("normal text passes, got %q", v.Policy)
	}

	// When several shapes co-occur the last checked one names the reason.
	v := eval.Message(msg("///////crash ‮ and \x00"), cfg)
	if v.Policy != policy.AntiCrash {
		t.Fatalf("expected antiBug, got %q", v.Policy)
	}
	if v.Reason != "forbidden control characters" {
		t.Fatalf("expected control-character reason, got %q", v.Reason)
	}
}

func TestTokenLeak(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()

	token := strings.Repeat("a", 24) + "." + strings.Repeat("b", 6) + "." + strings.Repeat("c", 27)
	if v := eval.Message(msg("my token is "+token), cfg); v.Policy != policy.AntiToken {
		t.Fatalf("expected antiToken, got %q", v.Policy)
	}
	mfa := "mfa." + strings.Repeat("d", 84)
	if v := eval.Message(msg(mfa), cfg); v.Policy != policy.AntiToken {
		t.Fatalf("expected antiToken for mfa shape, got %q", v.Policy)
	}
}

func TestNewlineFlood(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()

	if v := eval.Message(msg("a\nb\nc\nd"), cfg); v.Policy != policy.AntiNewline {
		t.Fatalf("expected antiNewlineSpam, got %q", v.Policy)
	}
	if v := eval.Message(msg("a\nb\nc"), cfg); v.Violation() {
		t.Fatalf("at the limit passes, got %q", v.Policy)
	}
}

func TestSpoilerFlood(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Spoiler.Limit = 2

	if v := eval.Message(msg("||a||||b||||c||"), cfg); v.Policy != policy.AntiSpoiler {
		t.Fatalf("expected antiSpoilerSpam, got %q", v.Policy)
	}
	if v := eval.Message(msg("||a||||b||"), cfg); v.Violation() {
		t.Fatalf("two spoilers pass, got %q", v.Policy)
	}
}

func TestZalgoRatio(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()

	zalgo := "h̀́ễȳ̅"
	if v := eval.Message(msg(zalgo), cfg); v.Policy != policy.AntiZalgo {
		t.Fatalf("expected antiZalgo, got %q", v.Policy)
	}
	if v := eval.Message(msg("café"), cfg); v.Violation() {
		t.Fatalf("accented text passes, got %q", v.Policy)
	}
}

func TestEmojiFlood(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()

	if v := eval.Message(msg("😀😀😀😀 <:pog:123> <a:hi:456>"), cfg); v.Policy != policy.AntiEmoji {
		t.Fatalf("expected antiEmojiSpam, got %q", v.Policy)
	}
	if v := eval.Message(msg("😀😀 fine"), cfg); v.Violation() {
		t.Fatalf("a couple of emojis pass, got %q", v.Policy)
	}
}

func TestDisabledPoliciesAreSkipped(t *testing.T) {
	eval, _ := newTestEvaluator()
	cfg := policy.Defaults()
	cfg.Invite.Enabled = false
	cfg.Caps.Enabled = false

	if v := eval.Message(msg("JOIN DISCORD.GG/ABC NOW EVERYBODY"), cfg); v.Violation() {
		t.Fatalf("disabled detectors must not fire, got %q", v.Policy)
	}
}
