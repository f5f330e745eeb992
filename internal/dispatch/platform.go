package dispatch

import (
	"context"
	"time"

	"praetor/internal/detect"
)

// PlatformMessage is the minimal message shape the sweep needs.
type PlatformMessage struct {
	ID        string
	AuthorID  string
	Content   string
	CreatedAt time.Time
	Pinned    bool
}

// Platform is the moderation surface of the chat platform. Every call may
// suspend on the network and must honor its context. Implementations wrap
// platform refusals with ErrPermissionDenied and missing targets with
// ErrAlreadyGone.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	RecentMessages(ctx context.Context, channelID string, limit int) ([]PlatformMessage, error)
	BulkDelete(ctx context.Context, channelID string, messageIDs []string) error

	// CanModerate reports whether the bot outranks the target well enough
	// to apply member-level consequences.
	CanModerate(guildID, userID string) bool

	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	Disconnect(ctx context.Context, guildID, userID string) error
	RemoveRoles(ctx context.Context, guildID, userID string) error

	// Revert undoes the administrative action that triggered a verdict:
	// deletes a created channel/role/webhook, lifts a fresh ban.
	Revert(ctx context.Context, guildID string, kind detect.AdminKind, targetID string) error

	Notify(ctx context.Context, channelID, content string) error
}

// Locker applies a timed channel lock; implemented by internal/lockdown
// through the bot layer.
type Locker interface {
	Lock(ctx context.Context, guildID, channelID string)
}

// Record is the structured log-sink entry for high-severity detections.
// Content is deliberately absent so crash payloads never reach observers.
type Record struct {
	ID        string
	Title     string
	GuildID   string
	ActorID   string
	ChannelID string
	Reason    string
	At        time.Time
}

// Sink delivers Records to the guild's security log channel, if one is
// configured.
type Sink interface {
	Emit(ctx context.Context, rec Record)
}

// Ledger persists applied sanctions for reporting. Failures are logged,
// never propagated.
type Ledger interface {
	RecordSanction(ctx context.Context, id, guildID, userID, policyName, action, reason string) error
}
