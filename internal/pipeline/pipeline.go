package pipeline

import (
	"context"
	"fmt"

	"praetor/internal/detect"
	"praetor/internal/dispatch"
	"praetor/internal/modules/audit"
	"praetor/internal/policy"

	"go.uber.org/zap"
)

// WhitelistFunc reports whether a user is exempt from moderation in a guild.
type WhitelistFunc func(ctx context.Context, guildID, userID string) bool

// AuditModeFunc reports whether a guild runs in audit mode, where verdicts
// are recorded but never enforced.
type AuditModeFunc func(ctx context.Context, guildID string) bool

// DomainSource resolves the per-guild link allow/block lists.
type DomainSource interface {
	DomainLists(ctx context.Context, guildID string) (allow, block map[string]struct{})
}

// Pipeline runs every gateway event through the detector chain and hands
// violations to the dispatcher. Each Handle method returns true when the
// event was sanctioned and the caller should stop further processing.
type Pipeline struct {
	policies    *policy.Provider
	eval        *detect.Evaluator
	dispatcher  *dispatch.Dispatcher
	audit       *audit.Logger
	logger      *zap.Logger
	whitelisted WhitelistFunc
	auditOnly   AuditModeFunc
	domains     DomainSource
}

func New(policies *policy.Provider, eval *detect.Evaluator, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		policies:   policies,
		eval:       eval,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (p *Pipeline) WithWhitelist(fn WhitelistFunc) *Pipeline {
	p.whitelisted = fn
	return p
}

func (p *Pipeline) WithAudit(a *audit.Logger) *Pipeline {
	p.audit = a
	return p
}

func (p *Pipeline) WithDomains(src DomainSource) *Pipeline {
	p.domains = src
	return p
}

func (p *Pipeline) WithAuditMode(fn AuditModeFunc) *Pipeline {
	p.auditOnly = fn
	return p
}

func (p *Pipeline) HandleMessage(ctx context.Context, ev detect.Message) bool {
	return p.guard("message", func() bool {
		if ev.GuildID == "" || p.exempt(ctx, ev.GuildID, ev.AuthorID) {
			return false
		}
		if p.domains != nil {
			ev.AllowedDomains, ev.BlockedDomains = p.domains.DomainLists(ctx, ev.GuildID)
		}
		cfg := p.policies.Get(ctx, ev.GuildID)
		verdict := p.eval.Message(ev, cfg)
		if !verdict.Violation() {
			return false
		}
		target := dispatch.Target{
			GuildID:   ev.GuildID,
			ChannelID: ev.ChannelID,
			MessageID: ev.MessageID,
			UserID:    ev.AuthorID,
		}
		return p.apply(ctx, target, verdict)
	})
}

func (p *Pipeline) HandleJoin(ctx context.Context, ev detect.Join) bool {
	return p.guard("join", func() bool {
		if p.exempt(ctx, ev.GuildID, ev.UserID) {
			return false
		}
		cfg := p.policies.Get(ctx, ev.GuildID)
		verdict := p.eval.Join(ev, cfg)
		if !verdict.Violation() {
			return false
		}
		target := dispatch.Target{GuildID: ev.GuildID, UserID: ev.UserID}
		return p.apply(ctx, target, verdict)
	})
}

func (p *Pipeline) HandleAdminAction(ctx context.Context, ev detect.AdminAction) bool {
	return p.guard("admin_action", func() bool {
		if ev.ActorID == "" || p.exempt(ctx, ev.GuildID, ev.ActorID) {
			return false
		}
		cfg := p.policies.Get(ctx, ev.GuildID)
		verdict := p.eval.AdminAction(ev, cfg)
		if !verdict.Violation() {
			return false
		}
		target := dispatch.Target{
			GuildID:       ev.GuildID,
			UserID:        ev.ActorID,
			AdminKind:     ev.Kind,
			AdminTargetID: ev.TargetID,
		}
		return p.apply(ctx, target, verdict)
	})
}

func (p *Pipeline) HandleVoiceJoin(ctx context.Context, ev detect.VoiceJoin) bool {
	return p.guard("voice_join", func() bool {
		if p.exempt(ctx, ev.GuildID, ev.UserID) {
			return false
		}
		cfg := p.policies.Get(ctx, ev.GuildID)
		verdict := p.eval.VoiceJoin(ev, cfg)
		if !verdict.Violation() {
			return false
		}
		target := dispatch.Target{GuildID: ev.GuildID, ChannelID: ev.ChannelID, UserID: ev.UserID}
		return p.apply(ctx, target, verdict)
	})
}

func (p *Pipeline) HandleThread(ctx context.Context, ev detect.ThreadCreate) bool {
	return p.guard("thread_create", func() bool {
		if p.exempt(ctx, ev.GuildID, ev.ActorID) {
			return false
		}
		cfg := p.policies.Get(ctx, ev.GuildID)
		verdict := p.eval.Thread(ev, cfg)
		if !verdict.Violation() {
			return false
		}
		target := dispatch.Target{GuildID: ev.GuildID, ChannelID: ev.ChannelID, UserID: ev.ActorID}
		return p.apply(ctx, target, verdict)
	})
}

func (p *Pipeline) HandleReaction(ctx context.Context, ev detect.Reaction) bool {
	return p.guard("reaction", func() bool {
		if p.exempt(ctx, ev.GuildID, ev.UserID) {
			return false
		}
		cfg := p.policies.Get(ctx, ev.GuildID)
		verdict := p.eval.Reaction(ev, cfg)
		if !verdict.Violation() {
			return false
		}
		target := dispatch.Target{
			GuildID:   ev.GuildID,
			ChannelID: ev.ChannelID,
			MessageID: ev.MessageID,
			UserID:    ev.UserID,
		}
		return p.apply(ctx, target, verdict)
	})
}

func (p *Pipeline) exempt(ctx context.Context, guildID, userID string) bool {
	if p.whitelisted == nil {
		return false
	}
	return p.whitelisted(ctx, guildID, userID)
}

// apply records the verdict and dispatches it. In audit mode the sanction
// is simulated: logged as if applied, with nothing sent to the platform.
func (p *Pipeline) apply(ctx context.Context, target dispatch.Target, v detect.Verdict) bool {
	p.record(ctx, v, target.GuildID, target.UserID)
	if p.auditOnly != nil && p.auditOnly(ctx, target.GuildID) {
		if p.audit != nil {
			p.audit.Log(ctx, audit.LevelInfo, target.GuildID, target.UserID, string(v.Policy), "sanction simulated")
		}
		return true
	}
	return p.dispatcher.Apply(ctx, target, v)
}

func (p *Pipeline) record(ctx context.Context, v detect.Verdict, guildID, userID string) {
	if p.audit == nil {
		return
	}
	level := audit.LevelWarn
	if detect.Severe(v.Policy) {
		level = audit.LevelCrit
	}
	p.audit.Log(ctx, level, guildID, userID, string(v.Policy), fmt.Sprintf("%s (%s)", v.Reason, v.Action))
}

// guard isolates one event's evaluation so a panic in a detector cannot
// take down the gateway loop.
func (p *Pipeline) guard(event string, fn func() bool) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event evaluation panicked", zap.String("event", event), zap.Any("panic", r))
			handled = false
		}
	}()
	return fn()
}
