package policy

// Toggle flips one policy's enabled flag by name. Returns false for an
// unknown name and for antivirus, which cannot be disabled.
func Toggle(cfg *GuildConfig, name Name, enabled bool) bool {
	switch name {
	case AntiSpam:
		cfg.Spam.Enabled = enabled
	case AntiDuplicate:
		cfg.Duplicate.Enabled = enabled
	case AntiAttachment:
		cfg.Attachment.Enabled = enabled
	case AntiSticker:
		cfg.Sticker.Enabled = enabled
	case AntiMention:
		cfg.Mention.Enabled = enabled
	case Antivirus:
		return false
	case AntiLink:
		cfg.Link.Enabled = enabled
	case AntiInvite:
		cfg.Invite.Enabled = enabled
	case AntiCaps:
		cfg.Caps.Enabled = enabled
	case AntiCrash:
		cfg.Crash.Enabled = enabled
	case AntiToken:
		cfg.Token.Enabled = enabled
	case AntiNewline:
		cfg.Newline.Enabled = enabled
	case AntiSpoiler:
		cfg.Spoiler.Enabled = enabled
	case AntiZalgo:
		cfg.Zalgo.Enabled = enabled
	case AntiEmoji:
		cfg.Emoji.Enabled = enabled
	case AntiRaid:
		cfg.Raid.Enabled = enabled
	case AntiVoiceRaid:
		cfg.VoiceRaid.Enabled = enabled
	case AntiThread:
		cfg.Thread.Enabled = enabled
	case AntiMassRoles:
		cfg.MassRoles.Enabled = enabled
	case AntiMassChannels:
		cfg.MassChannels.Enabled = enabled
	case AntiReactions:
		cfg.Reactions.Enabled = enabled
	case AntiNuke:
		cfg.Nuke.Enabled = enabled
	case AntiBot:
		cfg.Bot.Enabled = enabled
	case AntiWebhook:
		cfg.Webhook.Enabled = enabled
	default:
		return false
	}
	return true
}

// SetValue assigns one numeric setting on a policy. Key names follow the
// stored document: limit, timeWindow, timeoutDuration, and the policy
// specific keys (joinLimit, accountAgeLimit, minLength...).
func SetValue(cfg *GuildConfig, name Name, key string, value int) bool {
	if value < 0 {
		return false
	}
	switch name {
	case AntiSpam:
		switch key {
		case "messageLimit":
			cfg.Spam.MessageLimit = value
		case "timeWindow":
			cfg.Spam.TimeWindowMs = value
		case "timeoutDuration":
			cfg.Spam.TimeoutMs = value
		default:
			return false
		}
	case AntiDuplicate:
		switch key {
		case "duplicateLimit":
			cfg.Duplicate.DuplicateLimit = value
		case "timeWindow":
			cfg.Duplicate.TimeWindowMs = value
		case "timeoutDuration":
			cfg.Duplicate.TimeoutMs = value
		default:
			return false
		}
	case AntiAttachment:
		return setCount(&cfg.Attachment, key, value)
	case AntiSticker:
		return setCount(&cfg.Sticker, key, value)
	case AntiMention:
		return setCount(&cfg.Mention, key, value)
	case AntiLink:
		return setCount(&cfg.Link, key, value)
	case AntiNewline:
		return setCount(&cfg.Newline, key, value)
	case AntiSpoiler:
		return setCount(&cfg.Spoiler, key, value)
	case AntiEmoji:
		return setCount(&cfg.Emoji, key, value)
	case AntiCaps:
		switch key {
		case "capsPercentage":
			cfg.Caps.Percentage = float64(value)
		case "minLength":
			cfg.Caps.MinLength = value
		default:
			return false
		}
	case AntiRaid:
		switch key {
		case "joinLimit":
			cfg.Raid.JoinLimit = value
		case "timeWindow":
			cfg.Raid.TimeWindowMs = value
		case "accountAgeLimit":
			cfg.Raid.AccountAgeDaysMin = value
		default:
			return false
		}
	case AntiVoiceRaid:
		return setBurst(&cfg.VoiceRaid, key, value)
	case AntiThread:
		return setBurst(&cfg.Thread, key, value)
	case AntiMassRoles:
		return setBurst(&cfg.MassRoles, key, value)
	case AntiMassChannels:
		return setBurst(&cfg.MassChannels, key, value)
	case AntiReactions:
		return setBurst(&cfg.Reactions, key, value)
	case AntiNuke:
		switch key {
		case "channelDeleteLimit":
			cfg.Nuke.ChannelDeleteLimit = value
		case "roleDeleteLimit":
			cfg.Nuke.RoleDeleteLimit = value
		case "banLimit":
			cfg.Nuke.BanLimit = value
		case "kickLimit":
			cfg.Nuke.KickLimit = value
		case "channelCreateLimit":
			cfg.Nuke.ChannelCreateLimit = value
		case "roleCreateLimit":
			cfg.Nuke.RoleCreateLimit = value
		case "webhookCreateLimit":
			cfg.Nuke.WebhookCreateLimit = value
		case "timeWindow":
			cfg.Nuke.TimeWindowMs = value
		default:
			return false
		}
	default:
		return false
	}
	return true
}

func setCount(p *CountPolicy, key string, value int) bool {
	if key != "limit" {
		return false
	}
	p.Limit = value
	return true
}

func setBurst(p *BurstPolicy, key string, value int) bool {
	switch key {
	case "limit":
		p.Limit = value
	case "timeWindow":
		p.TimeWindowMs = value
	case "timeoutDuration":
		p.TimeoutMs = value
	default:
		return false
	}
	return true
}
