package policy

import "time"

// ActionKind is the sanction applied when a policy fires.
type ActionKind string

const (
	ActionDelete      ActionKind = "delete"
	ActionTimeout     ActionKind = "timeout"
	ActionKick        ActionKind = "kick"
	ActionBan         ActionKind = "ban"
	ActionDisconnect  ActionKind = "disconnect"
	ActionLock        ActionKind = "lock"
	ActionRemoveRoles ActionKind = "removeRoles"
	ActionRevert      ActionKind = "revert"
)

// Name identifies a policy. The set is closed; there is no rule DSL.
type Name string

const (
	AntiSpam         Name = "antiSpam"
	AntiDuplicate    Name = "antiDuplicateSpam"
	AntiAttachment   Name = "antiAttachmentSpam"
	AntiSticker      Name = "antiStickerSpam"
	AntiMention      Name = "antiMentionSpam"
	Antivirus        Name = "antivirus"
	AntiLink         Name = "antiLinkSpam"
	AntiInvite       Name = "antiInviteSpam"
	AntiCaps         Name = "antiCapsSpam"
	AntiCrash        Name = "antiBug"
	AntiToken        Name = "antiToken"
	AntiNewline      Name = "antiNewlineSpam"
	AntiSpoiler      Name = "antiSpoilerSpam"
	AntiZalgo        Name = "antiZalgo"
	AntiEmoji        Name = "antiEmojiSpam"
	AntiRaid         Name = "antiRaid"
	AntiAccountAge   Name = "antiAccountAge"
	AntiVoiceRaid    Name = "antiVoiceRaid"
	AntiThread       Name = "antiThread"
	AntiMassRoles    Name = "antiMassRoles"
	AntiMassChannels Name = "antiMassChannels"
	AntiReactions    Name = "antiMassReactions"
	AntiNuke         Name = "antiNuke"
	AntiBot          Name = "antiBot"
	AntiWebhook      Name = "antiWebhook"
)

// SpamPolicy bounds per-user message bursts.
type SpamPolicy struct {
	Enabled      bool       `json:"enabled"`
	Action       ActionKind `json:"action,omitempty"`
	MessageLimit int        `json:"messageLimit,omitempty"`
	TimeWindowMs int        `json:"timeWindow,omitempty"`
	TimeoutMs    int        `json:"timeoutDuration,omitempty"`
}

func (p SpamPolicy) Window() time.Duration  { return windowOr(p.TimeWindowMs, 5*time.Second) }
func (p SpamPolicy) Timeout() time.Duration { return windowOr(p.TimeoutMs, 5*time.Minute) }

// DuplicatePolicy bounds identical messages from one user. The fallback
// window is intentionally wider than the sibling detectors' 5-10s: the
// stored default is 10s but an absent window means 60s.
type DuplicatePolicy struct {
	Enabled        bool       `json:"enabled"`
	Action         ActionKind `json:"action,omitempty"`
	DuplicateLimit int        `json:"duplicateLimit,omitempty"`
	TimeWindowMs   int        `json:"timeWindow,omitempty"`
	TimeoutMs      int        `json:"timeoutDuration,omitempty"`
}

func (p DuplicatePolicy) Window() time.Duration  { return windowOr(p.TimeWindowMs, time.Minute) }
func (p DuplicatePolicy) Timeout() time.Duration { return windowOr(p.TimeoutMs, 5*time.Minute) }

// CountPolicy is the shared shape of the per-message content counters
// (attachments, stickers, links, newlines, spoilers, emojis, mentions).
type CountPolicy struct {
	Enabled bool       `json:"enabled"`
	Action  ActionKind `json:"action,omitempty"`
	Limit   int        `json:"limit,omitempty"`
}

// TogglePolicy is an enable/disable-only policy (invite, token, crash).
type TogglePolicy struct {
	Enabled bool       `json:"enabled"`
	Action  ActionKind `json:"action,omitempty"`
}

type CapsPolicy struct {
	Enabled    bool       `json:"enabled"`
	Action     ActionKind `json:"action,omitempty"`
	Percentage float64    `json:"capsPercentage,omitempty"`
	MinLength  int        `json:"minLength,omitempty"`
}

type ZalgoPolicy struct {
	Enabled   bool       `json:"enabled"`
	Action    ActionKind `json:"action,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
}

type VirusPolicy struct {
	Enabled           bool       `json:"enabled"`
	Action            ActionKind `json:"action,omitempty"`
	BlockedExtensions []string   `json:"blockedExtensions,omitempty"`
}

// BurstPolicy is the shared shape of the windowed event-rate policies
// (raid joins, voice joins, threads, mass role/channel creation, reactions).
type BurstPolicy struct {
	Enabled      bool       `json:"enabled"`
	Action       ActionKind `json:"action,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	TimeWindowMs int        `json:"timeWindow,omitempty"`
	TimeoutMs    int        `json:"timeoutDuration,omitempty"`
}

func (p BurstPolicy) Window() time.Duration  { return windowOr(p.TimeWindowMs, 5*time.Second) }
func (p BurstPolicy) Timeout() time.Duration { return windowOr(p.TimeoutMs, 5*time.Minute) }

type RaidPolicy struct {
	Enabled           bool       `json:"enabled"`
	Action            ActionKind `json:"action,omitempty"`
	JoinLimit         int        `json:"joinLimit,omitempty"`
	TimeWindowMs      int        `json:"timeWindow,omitempty"`
	AccountAgeDaysMin int        `json:"accountAgeLimit,omitempty"`
}

func (p RaidPolicy) Window() time.Duration { return windowOr(p.TimeWindowMs, 5*time.Second) }

type NukePolicy struct {
	Enabled            bool       `json:"enabled"`
	Action             ActionKind `json:"action,omitempty"`
	ChannelDeleteLimit int        `json:"channelDeleteLimit,omitempty"`
	RoleDeleteLimit    int        `json:"roleDeleteLimit,omitempty"`
	BanLimit           int        `json:"banLimit,omitempty"`
	KickLimit          int        `json:"kickLimit,omitempty"`
	ChannelCreateLimit int        `json:"channelCreateLimit,omitempty"`
	RoleCreateLimit    int        `json:"roleCreateLimit,omitempty"`
	WebhookCreateLimit int        `json:"webhookCreateLimit,omitempty"`
	TimeWindowMs       int        `json:"timeWindow,omitempty"`
}

func (p NukePolicy) Window() time.Duration { return windowOr(p.TimeWindowMs, 10*time.Second) }

// GuildConfig is the full per-guild security configuration. Persisted as a
// JSON document; unknown stored fields are dropped on load.
type GuildConfig struct {
	Spam         SpamPolicy      `json:"antiSpam"`
	Duplicate    DuplicatePolicy `json:"antiDuplicateSpam"`
	Attachment   CountPolicy     `json:"antiAttachmentSpam"`
	Sticker      CountPolicy     `json:"antiStickerSpam"`
	Mention      CountPolicy     `json:"antiMentionSpam"`
	Virus        VirusPolicy     `json:"antivirus"`
	Link         CountPolicy     `json:"antiLinkSpam"`
	Invite       TogglePolicy    `json:"antiInviteSpam"`
	Caps         CapsPolicy      `json:"antiCapsSpam"`
	Crash        TogglePolicy    `json:"antiBug"`
	Token        TogglePolicy    `json:"antiToken"`
	Newline      CountPolicy     `json:"antiNewlineSpam"`
	Spoiler      CountPolicy     `json:"antiSpoilerSpam"`
	Zalgo        ZalgoPolicy     `json:"antiZalgo"`
	Emoji        CountPolicy     `json:"antiEmojiSpam"`
	Raid         RaidPolicy      `json:"antiRaid"`
	VoiceRaid    BurstPolicy     `json:"antiVoiceRaid"`
	Thread       BurstPolicy     `json:"antiThread"`
	MassRoles    BurstPolicy     `json:"antiMassRoles"`
	MassChannels BurstPolicy     `json:"antiMassChannels"`
	Reactions    BurstPolicy     `json:"antiMassReactions"`
	Nuke         NukePolicy      `json:"antiNuke"`
	Bot          TogglePolicy    `json:"antiBot"`
	Webhook      TogglePolicy    `json:"antiWebhook"`
}

// DefaultBlockedExtensions is the antivirus deny-list applied when a guild
// has not configured its own.
var DefaultBlockedExtensions = []string{
	".exe", ".bat", ".cmd", ".sh", ".vbs", ".js", ".jar", ".msi",
	".apk", ".scr", ".pif", ".com",
}

// Defaults returns the configuration applied to a guild with no stored
// document. Every policy carries a usable default so an absent or partial
// document never faults evaluation.
func Defaults() GuildConfig {
	return GuildConfig{
		Spam:         SpamPolicy{Enabled: true, Action: ActionTimeout, MessageLimit: 3, TimeWindowMs: 5000, TimeoutMs: 300000},
		Duplicate:    DuplicatePolicy{Enabled: true, Action: ActionTimeout, DuplicateLimit: 2, TimeWindowMs: 10000, TimeoutMs: 300000},
		Attachment:   CountPolicy{Enabled: true, Action: ActionDelete, Limit: 5},
		Sticker:      CountPolicy{Enabled: true, Action: ActionDelete, Limit: 3},
		Mention:      CountPolicy{Enabled: true, Action: ActionDelete, Limit: 3},
		Virus:        VirusPolicy{Enabled: true, Action: ActionDelete, BlockedExtensions: append([]string(nil), DefaultBlockedExtensions...)},
		Link:         CountPolicy{Enabled: true, Action: ActionDelete, Limit: 3},
		Invite:       TogglePolicy{Enabled: true, Action: ActionDelete},
		Caps:         CapsPolicy{Enabled: true, Action: ActionDelete, Percentage: 70, MinLength: 10},
		Crash:        TogglePolicy{Enabled: true, Action: ActionDelete},
		Token:        TogglePolicy{Enabled: true, Action: ActionDelete},
		Newline:      CountPolicy{Enabled: true, Action: ActionDelete, Limit: 2},
		Spoiler:      CountPolicy{Enabled: true, Action: ActionDelete, Limit: 5},
		Zalgo:        ZalgoPolicy{Enabled: true, Action: ActionDelete, Threshold: 0.5},
		Emoji:        CountPolicy{Enabled: true, Action: ActionDelete, Limit: 5},
		Raid:         RaidPolicy{Enabled: true, Action: ActionKick, JoinLimit: 1, TimeWindowMs: 5000, AccountAgeDaysMin: 3},
		VoiceRaid:    BurstPolicy{Enabled: true, Action: ActionDisconnect, Limit: 2, TimeWindowMs: 5000},
		Thread:       BurstPolicy{Enabled: true, Action: ActionTimeout, Limit: 1, TimeWindowMs: 5000},
		MassRoles:    BurstPolicy{Enabled: true, Action: ActionRemoveRoles, Limit: 1, TimeWindowMs: 10000},
		MassChannels: BurstPolicy{Enabled: true, Action: ActionRemoveRoles, Limit: 1, TimeWindowMs: 10000},
		Reactions:    BurstPolicy{Enabled: true, Action: ActionTimeout, Limit: 5, TimeWindowMs: 5000, TimeoutMs: 300000},
		Nuke: NukePolicy{
			Enabled:            true,
			Action:             ActionRemoveRoles,
			ChannelDeleteLimit: 2,
			RoleDeleteLimit:    2,
			BanLimit:           2,
			KickLimit:          2,
			ChannelCreateLimit: 1,
			RoleCreateLimit:    1,
			WebhookCreateLimit: 1,
			TimeWindowMs:       10000,
		},
		Bot:     TogglePolicy{Enabled: true, Action: ActionBan},
		Webhook: TogglePolicy{Enabled: true, Action: ActionDelete},
	}
}

// Normalize repairs a loaded configuration. Antivirus is a hard-coded
// safety floor: it is forced on and always has a non-empty deny-list, no
// matter what the stored document says.
func (c *GuildConfig) Normalize() {
	c.Virus.Enabled = true
	if len(c.Virus.BlockedExtensions) == 0 {
		c.Virus.BlockedExtensions = append([]string(nil), DefaultBlockedExtensions...)
	}
	if c.Virus.Action == "" {
		c.Virus.Action = ActionDelete
	}
}

func windowOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
