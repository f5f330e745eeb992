package detect

import "time"

// Message is the platform-neutral shape of a message-class event. Caller
// context (owner/admin capability, per-guild domain lists) is resolved by
// the bot layer before evaluation so detectors stay pure.
type Message struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	Content   string

	AttachmentNames []string
	StickerCount    int

	MentionsEveryone bool
	UserMentions     int
	RoleMentions     int

	AuthorIsOwner bool
	AuthorIsAdmin bool

	AllowedDomains map[string]struct{}
	BlockedDomains map[string]struct{}

	CreatedAt time.Time
}

// AdminKind names the monitored administrative action kinds.
type AdminKind string

const (
	KindChannelDelete AdminKind = "channel_delete"
	KindChannelCreate AdminKind = "channel_create"
	KindRoleDelete    AdminKind = "role_delete"
	KindRoleCreate    AdminKind = "role_create"
	KindBan           AdminKind = "ban"
	KindKick          AdminKind = "kick"
	KindWebhookCreate AdminKind = "webhook_create"
)

// AdminAction is an audit-style event: a privileged actor mutated guild
// structure. ActorID may be empty when audit-log attribution failed.
type AdminAction struct {
	GuildID  string
	ActorID  string
	TargetID string
	Kind     AdminKind
	At       time.Time
}

type Join struct {
	GuildID          string
	UserID           string
	AccountCreatedAt time.Time
	JoinedAt         time.Time
}

type VoiceJoin struct {
	GuildID   string
	UserID    string
	ChannelID string
	At        time.Time
}

type ThreadCreate struct {
	GuildID   string
	ActorID   string
	ChannelID string
	At        time.Time
}

type Reaction struct {
	GuildID   string
	UserID    string
	ChannelID string
	MessageID string
	At        time.Time
}
