package detect

import (
	"fmt"
	"time"

	"praetor/internal/history"
	"praetor/internal/policy"
)

// AdminAction evaluates audit-style events: guild-wide zero-trust caps on
// structure creation first, then the per-actor nuke surveillance counters.
func (e *Evaluator) AdminAction(ev AdminAction, cfg policy.GuildConfig) Verdict {
	switch ev.Kind {
	case KindChannelCreate:
		if v := e.guildBurst(e.state.ChannelCreate, ev.GuildID, cfg.MassChannels, policy.AntiMassChannels, "mass channel creation"); v.Violation() {
			return v
		}
	case KindRoleCreate:
		if v := e.guildBurst(e.state.RoleCreates, ev.GuildID, cfg.MassRoles, policy.AntiMassRoles, "mass role creation"); v.Violation() {
			return v
		}
	case KindWebhookCreate:
		if cfg.Webhook.Enabled {
			return Verdict{
				Policy: policy.AntiWebhook,
				Reason: "webhook creation is restricted",
				Action: policy.ActionRevert,
			}
		}
	}
	return e.checkNuke(ev, cfg)
}

func (e *Evaluator) checkNuke(ev AdminAction, cfg policy.GuildConfig) Verdict {
	p := cfg.Nuke
	if !p.Enabled || ev.ActorID == "" {
		return Verdict{}
	}
	limit := nukeLimit(p, ev.Kind)
	if limit <= 0 {
		return Verdict{}
	}
	count := e.state.Nuke.Bump(ev.GuildID, ev.ActorID, string(ev.Kind), p.Window())
	if count <= limit {
		return Verdict{}
	}
	e.state.Nuke.Reset(ev.GuildID, ev.ActorID, string(ev.Kind))
	return Verdict{
		Policy: policy.AntiNuke,
		Reason: fmt.Sprintf("%s x%d exceeds limit %d", ev.Kind, count, limit),
		Action: p.Action,
	}
}

func nukeLimit(p policy.NukePolicy, kind AdminKind) int {
	switch kind {
	case KindChannelDelete:
		return p.ChannelDeleteLimit
	case KindRoleDelete:
		return p.RoleDeleteLimit
	case KindBan:
		return p.BanLimit
	case KindKick:
		return p.KickLimit
	case KindChannelCreate:
		return p.ChannelCreateLimit
	case KindRoleCreate:
		return p.RoleCreateLimit
	case KindWebhookCreate:
		return p.WebhookCreateLimit
	default:
		return 0
	}
}

// Join evaluates the member-join gate. The account-age control is
// independent of join volume; every join still counts toward the burst.
func (e *Evaluator) Join(ev Join, cfg policy.GuildConfig) Verdict {
	p := cfg.Raid
	if !p.Enabled {
		return Verdict{}
	}

	count := e.state.Joins.Record(ev.GuildID, "", p.Window(), nil)

	if p.AccountAgeDaysMin > 0 && !ev.AccountCreatedAt.IsZero() {
		minAge := time.Duration(p.AccountAgeDaysMin) * 24 * time.Hour
		if ev.JoinedAt.Sub(ev.AccountCreatedAt) < minAge {
			return Verdict{
				Policy: policy.AntiAccountAge,
				Reason: fmt.Sprintf("account younger than %d days", p.AccountAgeDaysMin),
				Action: p.Action,
			}
		}
	}

	if p.JoinLimit > 0 && count >= p.JoinLimit {
		e.state.Joins.Clear(ev.GuildID)
		return Verdict{
			Policy: policy.AntiRaid,
			Reason: fmt.Sprintf("join burst (%d in window)", count),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) VoiceJoin(ev VoiceJoin, cfg policy.GuildConfig) Verdict {
	p := cfg.VoiceRaid
	if !p.Enabled || p.Limit <= 0 {
		return Verdict{}
	}
	count := e.state.VoiceJoins.Record(ev.GuildID, "", p.Window(), nil)
	if count <= p.Limit {
		return Verdict{}
	}
	e.state.VoiceJoins.Clear(ev.GuildID)
	return Verdict{
		Policy: policy.AntiVoiceRaid,
		Reason: fmt.Sprintf("voice join burst (%d in window)", count),
		Action: p.Action,
	}
}

func (e *Evaluator) Thread(ev ThreadCreate, cfg policy.GuildConfig) Verdict {
	return e.guildBurst(e.state.Threads, ev.GuildID, cfg.Thread, policy.AntiThread, "mass thread creation")
}

func (e *Evaluator) Reaction(ev Reaction, cfg policy.GuildConfig) Verdict {
	p := cfg.Reactions
	if !p.Enabled || p.Limit <= 0 {
		return Verdict{}
	}
	key := ev.GuildID + ":" + ev.UserID
	count := e.state.Reactions.Record(key, "", p.Window(), nil)
	if count <= p.Limit {
		return Verdict{}
	}
	e.state.Reactions.Clear(key)
	return Verdict{
		Policy:  policy.AntiReactions,
		Reason:  fmt.Sprintf("reaction burst (%d in window)", count),
		Action:  p.Action,
		Timeout: p.Timeout(),
	}
}

// guildBurst fires once the windowed count reaches the limit, counting the
// triggering event itself. A limit of 1 blocks every non-exempt creation.
func (e *Evaluator) guildBurst(store *history.Store, guildID string, p policy.BurstPolicy, name policy.Name, what string) Verdict {
	if !p.Enabled || p.Limit <= 0 {
		return Verdict{}
	}
	count := store.Record(guildID, "", p.Window(), nil)
	if count < p.Limit {
		return Verdict{}
	}
	store.Clear(guildID)
	return Verdict{
		Policy:  name,
		Reason:  fmt.Sprintf("%s (%d in window)", what, count),
		Action:  p.Action,
		Timeout: p.Timeout(),
	}
}
