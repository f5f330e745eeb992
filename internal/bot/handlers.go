package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"praetor/internal/modules/audit"
	"praetor/internal/policy"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Praetor", "This command only works inside a guild.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	if !b.isWhitelisted(ctx, interaction.GuildID, b.interactionUser(interaction)) {
		b.respondEmbed(session, interaction, b.commandEmbed("Praetor", "You need administrator standing for this.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}

	data := interaction.ApplicationCommandData()
	switch data.Name {
	case "status":
		b.handleStatus(ctx, session, interaction)
	case "mode":
		b.handleMode(ctx, session, interaction, data.Options)
	case "policy":
		b.handlePolicy(ctx, session, interaction, data.Options)
	case "whitelist":
		b.handleWhitelist(ctx, session, interaction, data.Options)
	case "domain":
		b.handleDomain(ctx, session, interaction, data.Options)
	case "lockdown":
		b.handleLockdown(ctx, session, interaction, data.Options)
	case "logs":
		b.handleLogs(ctx, session, interaction, data.Options)
	case "report":
		b.handleReport(ctx, session, interaction, data.Options)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Praetor", "Unknown command.", b.cfg.Notifications.EmbedColors.Error, nil), true)
	}
}

func (b *Bot) interactionUser(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func (b *Bot) handleStatus(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	cfg := b.policies.Get(ctx, interaction.GuildID)

	enabled := 0
	names := policyToggles(&cfg)
	for _, on := range names {
		if on {
			enabled++
		}
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Mode", Value: settings.Mode, Inline: true},
		{Name: "Policies", Value: fmt.Sprintf("%d/%d enabled", enabled, len(names)), Inline: true},
		{Name: "Lockdown", Value: fmt.Sprintf("%t", settings.LockdownEnabled), Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Protection status", "Current guild protection state.", b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func policyToggles(cfg *policy.GuildConfig) map[policy.Name]bool {
	return map[policy.Name]bool{
		policy.AntiSpam:         cfg.Spam.Enabled,
		policy.AntiDuplicate:    cfg.Duplicate.Enabled,
		policy.AntiAttachment:   cfg.Attachment.Enabled,
		policy.AntiSticker:      cfg.Sticker.Enabled,
		policy.AntiMention:      cfg.Mention.Enabled,
		policy.Antivirus:        cfg.Virus.Enabled,
		policy.AntiLink:         cfg.Link.Enabled,
		policy.AntiInvite:       cfg.Invite.Enabled,
		policy.AntiCaps:         cfg.Caps.Enabled,
		policy.AntiCrash:        cfg.Crash.Enabled,
		policy.AntiToken:        cfg.Token.Enabled,
		policy.AntiNewline:      cfg.Newline.Enabled,
		policy.AntiSpoiler:      cfg.Spoiler.Enabled,
		policy.AntiZalgo:        cfg.Zalgo.Enabled,
		policy.AntiEmoji:        cfg.Emoji.Enabled,
		policy.AntiRaid:         cfg.Raid.Enabled,
		policy.AntiVoiceRaid:    cfg.VoiceRaid.Enabled,
		policy.AntiThread:       cfg.Thread.Enabled,
		policy.AntiMassRoles:    cfg.MassRoles.Enabled,
		policy.AntiMassChannels: cfg.MassChannels.Enabled,
		policy.AntiReactions:    cfg.Reactions.Enabled,
		policy.AntiNuke:         cfg.Nuke.Enabled,
		policy.AntiBot:          cfg.Bot.Enabled,
		policy.AntiWebhook:      cfg.Webhook.Enabled,
	}
}

func (b *Bot) handleMode(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Mode", "Missing value.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	value := options[0].StringValue()
	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.Mode = value
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("mode update failed", zap.Error(err))
		b.respondEmbed(session, interaction, b.commandEmbed("Mode", "Update failed.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, b.interactionUser(interaction), "mode_change", value)
	fields := []*discordgo.MessageEmbedField{{Name: "Mode", Value: value, Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Mode", "Enforcement mode updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func (b *Bot) handlePolicy(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Missing action.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	action := options[0].StringValue()
	name := ""
	key := ""
	value := -1
	for _, opt := range options[1:] {
		switch opt.Name {
		case "name":
			name = opt.StringValue()
		case "key":
			key = opt.StringValue()
		case "value":
			value = int(opt.IntValue())
		}
	}

	switch action {
	case "view":
		cfg := b.policies.Get(ctx, interaction.GuildID)
		var enabled, disabled []string
		for policyName, on := range policyToggles(&cfg) {
			if on {
				enabled = append(enabled, string(policyName))
			} else {
				disabled = append(disabled, string(policyName))
			}
		}
		sort.Strings(enabled)
		sort.Strings(disabled)
		fields := []*discordgo.MessageEmbedField{
			{Name: "Enabled", Value: joinOrNone(enabled), Inline: false},
			{Name: "Disabled", Value: joinOrNone(disabled), Inline: false},
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Per-guild policy state.", b.cfg.Notifications.EmbedColors.Action, fields), true)
	case "enable", "disable":
		if name == "" {
			b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Missing policy name.", b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		ok := false
		b.policies.Update(ctx, interaction.GuildID, func(cfg *policy.GuildConfig) {
			ok = policy.Toggle(cfg, policy.Name(name), action == "enable")
		})
		if !ok {
			b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Unknown or fixed policy: "+name, b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, b.interactionUser(interaction), "policy_toggle", name+"="+action)
		fields := []*discordgo.MessageEmbedField{{Name: "Policy", Value: name, Inline: true}, {Name: "State", Value: action + "d", Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Policy updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
	case "set":
		if name == "" || key == "" || value < 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Set needs name, key and value.", b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		ok := false
		b.policies.Update(ctx, interaction.GuildID, func(cfg *policy.GuildConfig) {
			ok = policy.SetValue(cfg, policy.Name(name), key, value)
		})
		if !ok {
			b.respondEmbed(session, interaction, b.commandEmbed("Policies", fmt.Sprintf("Unknown setting %s.%s", name, key), b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, b.interactionUser(interaction), "policy_set", fmt.Sprintf("%s.%s=%d", name, key, value))
		fields := []*discordgo.MessageEmbedField{{Name: "Setting", Value: fmt.Sprintf("%s.%s", name, key), Inline: true}, {Name: "Value", Value: fmt.Sprintf("%d", value), Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Setting updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Policies", "Unknown action.", b.cfg.Notifications.EmbedColors.Error, nil), true)
	}
}

func (b *Bot) handleWhitelist(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Whitelist", "Missing action.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	action := options[0].StringValue()
	var userID, roleID string
	for _, opt := range options[1:] {
		switch opt.Name {
		case "user":
			if opt.Type == discordgo.ApplicationCommandOptionUser && opt.UserValue(session) != nil {
				userID = opt.UserValue(session).ID
			}
		case "role":
			if opt.Type == discordgo.ApplicationCommandOptionRole && opt.RoleValue(session, interaction.GuildID) != nil {
				roleID = opt.RoleValue(session, interaction.GuildID).ID
			}
		}
	}

	if action == "list" {
		users, _ := b.store.ListWhitelistUsers(ctx, interaction.GuildID)
		roles, _ := b.store.ListWhitelistRoles(ctx, interaction.GuildID)
		userLines := make([]string, 0, len(users))
		for _, id := range users {
			userLines = append(userLines, "<@"+id+">")
		}
		roleLines := make([]string, 0, len(roles))
		for _, id := range roles {
			roleLines = append(roleLines, "<@&"+id+">")
		}
		fields := []*discordgo.MessageEmbedField{
			{Name: "Users", Value: joinOrNone(userLines), Inline: false},
			{Name: "Roles", Value: joinOrNone(roleLines), Inline: false},
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Whitelist", "Exempt users and roles.", b.cfg.Notifications.EmbedColors.Action, fields), true)
		return
	}

	if userID == "" && roleID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Whitelist", "Pick a user or role.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}

	if userID != "" {
		if action == "add" {
			_ = b.store.AddWhitelistUser(ctx, interaction.GuildID, userID)
		} else {
			_ = b.store.RemoveWhitelistUser(ctx, interaction.GuildID, userID)
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, b.interactionUser(interaction), "whitelist_"+action, "user "+userID)
		fields := []*discordgo.MessageEmbedField{{Name: "User", Value: "<@" + userID + ">", Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed("Whitelist", "Whitelist updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
		return
	}

	if action == "add" {
		_ = b.store.AddWhitelistRole(ctx, interaction.GuildID, roleID)
	} else {
		_ = b.store.RemoveWhitelistRole(ctx, interaction.GuildID, roleID)
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, b.interactionUser(interaction), "whitelist_"+action, "role "+roleID)
	fields := []*discordgo.MessageEmbedField{{Name: "Role", Value: "<@&" + roleID + ">", Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Whitelist", "Whitelist updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func (b *Bot) handleDomain(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) < 2 {
		b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Missing list or action.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	listType := options[0].StringValue()
	action := options[1].StringValue()
	domain := ""
	if len(options) > 2 {
		domain = strings.ToLower(options[2].StringValue())
	}
	allow := listType == "allow"
	guildID := interaction.GuildID

	switch action {
	case "add", "remove":
		if domain == "" {
			b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Missing domain.", b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		var err error
		switch {
		case allow && action == "add":
			err = b.store.AddDomainAllow(ctx, guildID, domain)
		case allow:
			err = b.store.RemoveDomainAllow(ctx, guildID, domain)
		case action == "add":
			err = b.store.AddDomainBlock(ctx, guildID, domain)
		default:
			err = b.store.RemoveDomainBlock(ctx, guildID, domain)
		}
		if err != nil {
			b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Update failed.", b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, guildID, b.interactionUser(interaction), "domain_"+action, listType+" "+domain)
		fields := []*discordgo.MessageEmbedField{{Name: "Domain", Value: domain, Inline: true}, {Name: "List", Value: listType, Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Domain list updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
	case "list":
		var domains []string
		var err error
		if allow {
			domains, err = b.store.ListDomainAllow(ctx, guildID)
		} else {
			domains, err = b.store.ListDomainBlock(ctx, guildID)
		}
		if err != nil {
			b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Lookup failed.", b.cfg.Notifications.EmbedColors.Error, nil), true)
			return
		}
		fields := []*discordgo.MessageEmbedField{{Name: listType, Value: joinOrNone(domains), Inline: false}}
		b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Configured domains.", b.cfg.Notifications.EmbedColors.Action, fields), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Domains", "Unknown action.", b.cfg.Notifications.EmbedColors.Error, nil), true)
	}
}

func (b *Bot) handleLockdown(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Lockdown", "Missing value.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	value := options[0].StringValue()
	channelID := interaction.ChannelID
	for _, opt := range options[1:] {
		if opt.Name == "channel" && opt.ChannelValue(session) != nil {
			channelID = opt.ChannelValue(session).ID
		}
	}

	if value == "on" {
		b.lockdown.Lock(ctx, interaction.GuildID, channelID)
	} else {
		b.lockdown.Unlock(ctx, interaction.GuildID, channelID)
	}
	fields := []*discordgo.MessageEmbedField{{Name: "Channel", Value: "<#" + channelID + ">", Inline: true}, {Name: "Lockdown", Value: value, Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Lockdown", "Lockdown updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func (b *Bot) handleLogs(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	if len(options) == 0 {
		value := settings.SecurityLogChannel
		if value == "" {
			value = "not set"
		} else {
			value = "<#" + value + ">"
		}
		fields := []*discordgo.MessageEmbedField{{Name: "Channel", Value: value, Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed("Security logs", "Current log channel.", b.cfg.Notifications.EmbedColors.Action, fields), true)
		return
	}
	channel := options[0].ChannelValue(session)
	if channel == nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Security logs", "Channel lookup failed.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	settings.SecurityLogChannel = channel.ID
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Security logs", "Update failed.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	fields := []*discordgo.MessageEmbedField{{Name: "Channel", Value: "<#" + channel.ID + ">", Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Security logs", "Log channel updated.", b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func (b *Bot) handleReport(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Report", "Missing period.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}
	period := options[0].StringValue()
	start := time.Now().Add(-24 * time.Hour)
	if period == "week" {
		start = time.Now().Add(-7 * 24 * time.Hour)
	}
	report, err := b.analytics.Report(ctx, interaction.GuildID, start)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Report", "Report failed.", b.cfg.Notifications.EmbedColors.Error, nil), true)
		return
	}

	byPolicy := make([]string, 0, len(report.ByPolicy))
	for name, count := range report.ByPolicy {
		byPolicy = append(byPolicy, fmt.Sprintf("%s: %d", name, count))
	}
	topUsers := make([]string, 0, len(report.TopUsers))
	for _, user := range report.TopUsers {
		topUsers = append(topUsers, fmt.Sprintf("<@%s>: %d", user.UserID, user.Count))
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Events", Value: fmt.Sprintf("%d", report.Total), Inline: true},
		{Name: "Sanctions", Value: fmt.Sprintf("%d", report.Sanctions), Inline: true},
		{Name: "Critical", Value: fmt.Sprintf("%d", report.ByLevel[audit.LevelCrit]), Inline: true},
		{Name: "By policy", Value: joinOrNone(byPolicy), Inline: false},
		{Name: "Top users", Value: joinOrNone(topUsers), Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Report", "Activity since "+start.Format("2006-01-02"), b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, "\n")
}
