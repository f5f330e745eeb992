package bot

import (
	"context"
	"fmt"
	"time"

	"praetor/internal/analytics"
	"praetor/internal/config"
	"praetor/internal/detect"
	"praetor/internal/dispatch"
	"praetor/internal/lockdown"
	"praetor/internal/modules/audit"
	"praetor/internal/pipeline"
	"praetor/internal/policy"
	"praetor/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	policies  *policy.Provider
	audit     *audit.Logger
	analytics *analytics.Service
	session   *discordgo.Session
	platform  *platform
	lockdown  *lockdown.Manager
	pipeline  *pipeline.Pipeline
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, policies *policy.Provider, state *detect.State, auditLogger *audit.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildWebhooks |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		policies:  policies,
		audit:     auditLogger,
		analytics: analyticsService,
		session:   session,
	}
	b.platform = newPlatform(session)
	b.lockdown = lockdown.New(lockdown.Config{Duration: time.Duration(cfg.Lockdown.Minutes) * time.Minute}, b.platform, auditLogger)

	dispatcher := dispatch.New(b.platform, logger).
		WithSink(b).
		WithLedger(store).
		WithLocker(b.lockdown)
	evaluator := detect.NewEvaluator(state)
	b.pipeline = pipeline.New(policies, evaluator, dispatcher, logger).
		WithWhitelist(b.isWhitelisted).
		WithAudit(auditLogger).
		WithDomains(b).
		WithAuditMode(b.isAuditMode)

	if b.audit != nil {
		b.audit.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			if !b.cfg.Notifications.AuditToChannel {
				return
			}
			b.notifyAudit(ctx, entry)
		})
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onChannelCreate)
	b.session.AddHandler(b.onChannelDelete)
	b.session.AddHandler(b.onRoleCreate)
	b.session.AddHandler(b.onRoleDelete)
	b.session.AddHandler(b.onWebhooksUpdate)
	b.session.AddHandler(b.onGuildBanAdd)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onThreadCreate)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	_ = session

	ctx := context.Background()
	ev := detect.Message{
		GuildID:          msg.GuildID,
		ChannelID:        msg.ChannelID,
		MessageID:        msg.ID,
		AuthorID:         msg.Author.ID,
		Content:          msg.Content,
		StickerCount:     len(msg.StickerItems),
		MentionsEveryone: msg.MentionEveryone,
		UserMentions:     len(msg.Mentions),
		RoleMentions:     len(msg.MentionRoles),
		CreatedAt:        msg.Timestamp,
	}
	for _, attachment := range msg.Attachments {
		if attachment != nil {
			ev.AttachmentNames = append(ev.AttachmentNames, attachment.Filename)
		}
	}
	ev.AuthorIsOwner, ev.AuthorIsAdmin = b.authorStanding(msg.GuildID, msg.Author.ID)

	b.pipeline.HandleMessage(ctx, ev)
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.GuildID == "" || event.User == nil {
		return
	}
	_ = session
	ctx := context.Background()

	if event.User.Bot {
		b.handleBotJoin(ctx, event.GuildID, event.User.ID)
		return
	}

	created, err := discordgo.SnowflakeTimestamp(event.User.ID)
	if err != nil {
		created = time.Time{}
	}
	joined := event.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	b.pipeline.HandleJoin(ctx, detect.Join{
		GuildID:          event.GuildID,
		UserID:           event.User.ID,
		AccountCreatedAt: created,
		JoinedAt:         joined,
	})
}

// handleBotJoin removes unsanctioned bot additions: the bot is kicked and
// the member who invited it is held responsible through the usual sanction
// path.
func (b *Bot) handleBotJoin(ctx context.Context, guildID, botID string) {
	cfg := b.policies.Get(ctx, guildID)
	if !cfg.Bot.Enabled {
		return
	}
	actorID := b.resolveAuditActor(guildID, discordgo.AuditLogActionBotAdd, botID)
	if actorID != "" && b.isWhitelisted(ctx, guildID, actorID) {
		return
	}
	if err := b.platform.Kick(ctx, guildID, botID, "unauthorized bot addition"); err != nil {
		b.audit.Log(ctx, audit.LevelWarn, guildID, botID, string(policy.AntiBot), "bot kick failed: "+err.Error())
		return
	}
	b.audit.Log(ctx, audit.LevelCrit, guildID, actorID, string(policy.AntiBot), "unauthorized bot removed: "+botID)
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.GuildID == "" || event.User == nil {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.GuildID, discordgo.AuditLogActionMemberKick, event.User.ID)
	if actorID == "" {
		return
	}
	b.dispatchAdmin(event.GuildID, actorID, detect.KindKick, event.User.ID)
}

func (b *Bot) onChannelCreate(session *discordgo.Session, event *discordgo.ChannelCreate) {
	if event.Channel == nil || event.Channel.GuildID == "" {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.Channel.GuildID, discordgo.AuditLogActionChannelCreate, event.Channel.ID)
	b.dispatchAdmin(event.Channel.GuildID, actorID, detect.KindChannelCreate, event.Channel.ID)
}

func (b *Bot) onChannelDelete(session *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.Channel.GuildID == "" {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.Channel.GuildID, discordgo.AuditLogActionChannelDelete, event.Channel.ID)
	b.dispatchAdmin(event.Channel.GuildID, actorID, detect.KindChannelDelete, event.Channel.ID)
}

func (b *Bot) onRoleCreate(session *discordgo.Session, event *discordgo.GuildRoleCreate) {
	if event.GuildID == "" || event.Role == nil {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.GuildID, discordgo.AuditLogActionRoleCreate, event.Role.ID)
	b.dispatchAdmin(event.GuildID, actorID, detect.KindRoleCreate, event.Role.ID)
}

func (b *Bot) onRoleDelete(session *discordgo.Session, event *discordgo.GuildRoleDelete) {
	if event.GuildID == "" || event.RoleID == "" {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.GuildID, discordgo.AuditLogActionRoleDelete, event.RoleID)
	b.dispatchAdmin(event.GuildID, actorID, detect.KindRoleDelete, event.RoleID)
}

func (b *Bot) onWebhooksUpdate(session *discordgo.Session, event *discordgo.WebhooksUpdate) {
	if event.GuildID == "" {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.GuildID, discordgo.AuditLogActionWebhookCreate, "")
	if actorID == "" {
		return
	}
	b.dispatchAdmin(event.GuildID, actorID, detect.KindWebhookCreate, b.latestWebhookID(event.ChannelID))
}

func (b *Bot) onGuildBanAdd(session *discordgo.Session, event *discordgo.GuildBanAdd) {
	if event.GuildID == "" || event.User == nil {
		return
	}
	_ = session
	actorID := b.resolveAuditActor(event.GuildID, discordgo.AuditLogActionMemberBanAdd, event.User.ID)
	b.dispatchAdmin(event.GuildID, actorID, detect.KindBan, event.User.ID)
}

func (b *Bot) onVoiceStateUpdate(session *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || event.GuildID == "" || event.UserID == "" {
		return
	}
	_ = session
	// only channel joins count, not moves or leaves
	if event.ChannelID == "" {
		return
	}
	if event.BeforeUpdate != nil && event.BeforeUpdate.ChannelID != "" {
		return
	}
	b.pipeline.HandleVoiceJoin(context.Background(), detect.VoiceJoin{
		GuildID:   event.GuildID,
		UserID:    event.UserID,
		ChannelID: event.ChannelID,
		At:        time.Now(),
	})
}

func (b *Bot) onThreadCreate(session *discordgo.Session, event *discordgo.ThreadCreate) {
	if event.Channel == nil || event.Channel.GuildID == "" {
		return
	}
	_ = session
	b.pipeline.HandleThread(context.Background(), detect.ThreadCreate{
		GuildID:   event.Channel.GuildID,
		ActorID:   event.Channel.OwnerID,
		ChannelID: event.Channel.ID,
		At:        time.Now(),
	})
}

func (b *Bot) onReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.GuildID == "" || event.UserID == "" {
		return
	}
	_ = session
	b.pipeline.HandleReaction(context.Background(), detect.Reaction{
		GuildID:   event.GuildID,
		UserID:    event.UserID,
		ChannelID: event.ChannelID,
		MessageID: event.MessageID,
		At:        time.Now(),
	})
}

func (b *Bot) dispatchAdmin(guildID, actorID string, kind detect.AdminKind, targetID string) {
	if actorID == "" || actorID == b.session.State.User.ID {
		return
	}
	b.pipeline.HandleAdminAction(context.Background(), detect.AdminAction{
		GuildID:  guildID,
		ActorID:  actorID,
		TargetID: targetID,
		Kind:     kind,
		At:       time.Now(),
	})
}

// resolveAuditActor finds who performed an administrative action. Entries
// older than 30 seconds are stale and skipped; audit log delivery lags the
// gateway by a moment, never by that much.
func (b *Bot) resolveAuditActor(guildID string, actionType discordgo.AuditLogAction, targetID string) string {
	logs, err := b.session.GuildAuditLog(guildID, "", "", int(actionType), 5)
	if err != nil || logs == nil {
		return ""
	}
	for _, entry := range logs.AuditLogEntries {
		if entry == nil {
			continue
		}
		if targetID != "" && entry.TargetID != targetID {
			continue
		}
		ts, err := discordgo.SnowflakeTimestamp(entry.ID)
		if err == nil && time.Since(ts) > 30*time.Second {
			continue
		}
		return entry.UserID
	}
	return ""
}

func (b *Bot) latestWebhookID(channelID string) string {
	if channelID == "" {
		return ""
	}
	webhooks, err := b.session.ChannelWebhooks(channelID)
	if err != nil || len(webhooks) == 0 {
		return ""
	}
	latest := webhooks[0]
	for _, hook := range webhooks[1:] {
		if hook.ID > latest.ID {
			latest = hook
		}
	}
	return latest.ID
}

func (b *Bot) authorStanding(guildID, userID string) (owner, admin bool) {
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, _ = b.session.Guild(guildID)
	}
	if guild == nil {
		return false, false
	}
	if guild.OwnerID == userID {
		return true, true
	}
	member := b.platform.member(guildID, userID)
	return false, memberHasAdmin(guild, member)
}

func memberHasAdmin(guild *discordgo.Guild, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}
	perms := int64(0)
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			perms |= role.Permissions
			break
		}
	}
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (b *Bot) isWhitelisted(ctx context.Context, guildID, userID string) bool {
	if userID == "" || b.session == nil {
		return false
	}
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, _ = b.session.Guild(guildID)
	}
	if guild != nil && guild.OwnerID == userID {
		return true
	}

	member := b.platform.member(guildID, userID)
	if member != nil && memberHasAdmin(guild, member) {
		return true
	}

	users, err := b.store.ListWhitelistUsers(ctx, guildID)
	if err == nil {
		for _, id := range users {
			if id == userID {
				return true
			}
		}
	}
	if member == nil {
		return false
	}
	roles, err := b.store.ListWhitelistRoles(ctx, guildID)
	if err != nil {
		return false
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, id := range roles {
		roleSet[id] = struct{}{}
	}
	for _, roleID := range member.Roles {
		if _, ok := roleSet[roleID]; ok {
			return true
		}
	}
	return false
}

// DomainLists implements the pipeline's domain source.
func (b *Bot) DomainLists(ctx context.Context, guildID string) (allow, block map[string]struct{}) {
	allowed, err := b.store.ListDomainAllow(ctx, guildID)
	if err == nil && len(allowed) > 0 {
		allow = make(map[string]struct{}, len(allowed))
		for _, domain := range allowed {
			allow[domain] = struct{}{}
		}
	}
	blocked, err := b.store.ListDomainBlock(ctx, guildID)
	if err == nil && len(blocked) > 0 {
		block = make(map[string]struct{}, len(blocked))
		for _, domain := range blocked {
			block[domain] = struct{}{}
		}
	}
	return allow, block
}

func (b *Bot) isAuditMode(ctx context.Context, guildID string) bool {
	return b.guildSettings(ctx, guildID).Mode == "audit"
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	defaults := storage.GuildSettings{
		SecurityLogChannel: b.cfg.DefaultSecurityLogChannel,
		Mode:               b.cfg.Mode,
		RetentionDays:      b.cfg.RetentionDays,
	}
	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		defaults.GuildID = guildID
		return defaults
	}
	return settings
}

func (b *Bot) securityLogChannel(ctx context.Context, guildID string) string {
	settings := b.guildSettings(ctx, guildID)
	if settings.SecurityLogChannel != "" {
		return settings.SecurityLogChannel
	}
	return b.cfg.DefaultSecurityLogChannel
}

// Emit implements the dispatcher's sink: high-severity detections land in
// the guild's security log channel as an embed.
func (b *Bot) Emit(ctx context.Context, rec dispatch.Record) {
	channelID := b.securityLogChannel(ctx, rec.GuildID)
	if channelID == "" {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:     rec.Title,
		Color:     b.cfg.Notifications.EmbedColors.Warning,
		Timestamp: rec.At.Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: rec.ID},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: "<@" + rec.ActorID + ">", Inline: true},
			{Name: "Channel", Value: "<#" + rec.ChannelID + ">", Inline: true},
			{Name: "Reason", Value: rec.Reason, Inline: false},
		},
	}
	_, _ = b.session.ChannelMessageSendEmbed(channelID, embed)
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if entry.Level == audit.LevelInfo {
		return
	}
	channelID := b.securityLogChannel(ctx, entry.GuildID)
	if channelID == "" {
		return
	}
	color := b.cfg.Notifications.EmbedColors.Warning
	if entry.Level == audit.LevelCrit {
		color = b.cfg.Notifications.EmbedColors.Error
	}
	embed := &discordgo.MessageEmbed{
		Title:       entry.Event,
		Description: entry.Details,
		Color:       color,
		Timestamp:   entry.CreatedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Level", Value: entry.Level, Inline: true},
			{Name: "User", Value: fmt.Sprintf("<@%s>", entry.UserID), Inline: true},
		},
	}
	_, _ = b.session.ChannelMessageSendEmbed(channelID, embed)
}
