package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"praetor/internal/detect"
	"praetor/internal/dispatch"

	"github.com/bwmarrin/discordgo"
)

// platform adapts a discordgo session to the dispatcher's moderation
// surface and the lockdown manager's channel surface.
type platform struct {
	session *discordgo.Session

	mu    sync.Mutex
	locks map[string]channelSnapshot
}

type channelSnapshot struct {
	allow   int64
	deny    int64
	hasPerm bool
}

func newPlatform(session *discordgo.Session) *platform {
	return &platform{session: session, locks: make(map[string]channelSnapshot)}
}

func (p *platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_ = ctx
	return wrapErr(p.session.ChannelMessageDelete(channelID, messageID))
}

func (p *platform) RecentMessages(ctx context.Context, channelID string, limit int) ([]dispatch.PlatformMessage, error) {
	_ = ctx
	messages, err := p.session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return nil, wrapErr(err)
	}
	result := make([]dispatch.PlatformMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil || msg.Author == nil {
			continue
		}
		result = append(result, dispatch.PlatformMessage{
			ID:        msg.ID,
			AuthorID:  msg.Author.ID,
			Content:   msg.Content,
			CreatedAt: msg.Timestamp,
			Pinned:    msg.Pinned,
		})
	}
	return result, nil
}

func (p *platform) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	_ = ctx
	return wrapErr(p.session.ChannelMessagesBulkDelete(channelID, messageIDs))
}

// CanModerate compares highest role positions; the bot cannot act on the
// guild owner or anyone it does not outrank.
func (p *platform) CanModerate(guildID, userID string) bool {
	guild, err := p.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, _ = p.session.Guild(guildID)
	}
	if guild == nil {
		return false
	}
	if guild.OwnerID == userID {
		return false
	}

	self := p.member(guildID, p.session.State.User.ID)
	target := p.member(guildID, userID)
	if self == nil {
		return false
	}
	if target == nil {
		return true
	}
	return highestRolePosition(guild, self) > highestRolePosition(guild, target)
}

func (p *platform) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	_ = ctx
	return wrapErr(p.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithAuditLogReason(reason)))
}

func (p *platform) Kick(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	return wrapErr(p.session.GuildMemberDeleteWithReason(guildID, userID, reason))
}

func (p *platform) Ban(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	return wrapErr(p.session.GuildBanCreateWithReason(guildID, userID, reason, 0))
}

func (p *platform) Disconnect(ctx context.Context, guildID, userID string) error {
	_ = ctx
	return wrapErr(p.session.GuildMemberMove(guildID, userID, nil))
}

func (p *platform) RemoveRoles(ctx context.Context, guildID, userID string) error {
	_ = ctx
	empty := []string{}
	_, err := p.session.GuildMemberEdit(guildID, userID, &discordgo.GuildMemberParams{Roles: &empty})
	return wrapErr(err)
}

func (p *platform) Revert(ctx context.Context, guildID string, kind detect.AdminKind, targetID string) error {
	_ = ctx
	switch kind {
	case detect.KindChannelCreate:
		_, err := p.session.ChannelDelete(targetID)
		return wrapErr(err)
	case detect.KindRoleCreate:
		return wrapErr(p.session.GuildRoleDelete(guildID, targetID))
	case detect.KindWebhookCreate:
		return wrapErr(p.session.WebhookDelete(targetID))
	case detect.KindBan:
		return wrapErr(p.session.GuildBanDelete(guildID, targetID))
	default:
		return fmt.Errorf("no revert for %s", kind)
	}
}

func (p *platform) Notify(ctx context.Context, channelID, content string) error {
	_ = ctx
	_, err := p.session.ChannelMessageSend(channelID, content)
	return wrapErr(err)
}

func (p *platform) LockChannel(ctx context.Context, guildID, channelID string) error {
	_ = ctx
	channel, err := p.session.Channel(channelID)
	if err != nil {
		return wrapErr(err)
	}

	snap := channelSnapshot{}
	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite.Type == discordgo.PermissionOverwriteTypeRole && overwrite.ID == guildID {
			snap.allow = overwrite.Allow
			snap.deny = overwrite.Deny
			snap.hasPerm = true
			break
		}
	}

	p.mu.Lock()
	p.locks[channelID] = snap
	p.mu.Unlock()

	deny := snap.deny | discordgo.PermissionSendMessages
	allow := snap.allow &^ discordgo.PermissionSendMessages
	return wrapErr(p.session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, allow, deny))
}

func (p *platform) UnlockChannel(ctx context.Context, guildID, channelID string) error {
	_ = ctx
	p.mu.Lock()
	snap, held := p.locks[channelID]
	delete(p.locks, channelID)
	p.mu.Unlock()

	if held && snap.hasPerm {
		return wrapErr(p.session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, snap.allow, snap.deny))
	}
	return wrapErr(p.session.ChannelPermissionDelete(channelID, guildID))
}

func (p *platform) member(guildID, userID string) *discordgo.Member {
	member, err := p.session.State.Member(guildID, userID)
	if err == nil && member != nil {
		return member
	}
	member, _ = p.session.GuildMember(guildID, userID)
	return member
}

func highestRolePosition(guild *discordgo.Guild, member *discordgo.Member) int {
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	highest := 0
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil && role.Position > highest {
			highest = role.Position
		}
	}
	return highest
}

// wrapErr translates platform refusals into the dispatcher's sentinel
// errors so enforcement can degrade without parsing REST responses.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	restErr, ok := err.(*discordgo.RESTError)
	if !ok {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %s", dispatch.ErrPermissionDenied, restErr.Message.Message)
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownRole,
			discordgo.ErrCodeUnknownWebhook, discordgo.ErrCodeUnknownBan,
			discordgo.ErrCodeUnknownUser:
			return fmt.Errorf("%w: %s", dispatch.ErrAlreadyGone, restErr.Message.Message)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: http 403", dispatch.ErrPermissionDenied)
		case http.StatusNotFound:
			return fmt.Errorf("%w: http 404", dispatch.ErrAlreadyGone)
		}
	}
	return err
}
