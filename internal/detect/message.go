package detect

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"praetor/internal/history"
	"praetor/internal/policy"
	"praetor/internal/utils"
)

var (
	tokenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[A-Za-z0-9_-]{24}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27}`),
		regexp.MustCompile(`mfa\.[A-Za-z0-9_-]{84}`),
	}
	invitePattern      = regexp.MustCompile(`(?i)(https?://)?(www\.)?(discord\.(gg|io|me|li)|discordapp\.com/invite)/[a-zA-Z0-9]+`)
	customEmojiPattern = regexp.MustCompile(`<a?:\w+:\d+>`)
	unicodeEmojiRange  = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}]`)
	leadingSlashes     = regexp.MustCompile(`^/{2,}`)
)

// Evaluator runs the detector set over events against injected state.
type Evaluator struct {
	state *State
}

func NewEvaluator(state *State) *Evaluator {
	return &Evaluator{state: state}
}

// Message runs the message-class detectors in their fixed order and
// returns the first violation. The order is significant: rate detectors
// run before the content-shape detectors.
func (e *Evaluator) Message(ev Message, cfg policy.GuildConfig) Verdict {
	checks := []func(Message, policy.GuildConfig) Verdict{
		e.checkBurst,
		e.checkDuplicate,
		e.checkAttachments,
		e.checkStickers,
		e.checkMentions,
		e.checkVirus,
		e.checkLinks,
		e.checkInvite,
		e.checkCaps,
		e.checkCrashText,
		e.checkToken,
		e.checkNewlines,
		e.checkSpoilers,
		e.checkZalgo,
		e.checkEmoji,
	}
	for _, check := range checks {
		if v := check(ev, cfg); v.Violation() {
			return v
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkBurst(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Spam
	if !p.Enabled || p.MessageLimit <= 0 {
		return Verdict{}
	}
	key := ev.GuildID + ":" + ev.AuthorID
	count := e.state.Messages.Record(key, "", p.Window(), nil)
	if count < p.MessageLimit {
		return Verdict{}
	}
	e.state.Messages.Clear(key)
	return Verdict{
		Policy:      policy.AntiSpam,
		Reason:      fmt.Sprintf("message burst (%d in window)", count),
		Action:      p.Action,
		Timeout:     p.Timeout(),
		Sweep:       true,
		SweepWindow: p.Window(),
	}
}

func (e *Evaluator) checkDuplicate(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Duplicate
	if !p.Enabled || p.DuplicateLimit <= 0 {
		return Verdict{}
	}
	content := strings.TrimSpace(ev.Content)
	key := ev.GuildID + ":" + ev.AuthorID
	identical := e.state.Duplicates.Record(key, content, p.Window(), func(entry history.Entry) bool {
		return entry.Content == content
	})
	if identical < p.DuplicateLimit {
		return Verdict{}
	}
	e.state.Duplicates.Clear(key)
	return Verdict{
		Policy:       policy.AntiDuplicate,
		Reason:       fmt.Sprintf("repeated identical messages (%d in window)", identical),
		Action:       p.Action,
		Timeout:      p.Timeout(),
		Sweep:        true,
		SweepWindow:  p.Window(),
		SweepContent: content,
	}
}

func (e *Evaluator) checkAttachments(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Attachment
	if !p.Enabled {
		return Verdict{}
	}
	if len(ev.AttachmentNames) > p.Limit {
		return Verdict{
			Policy: policy.AntiAttachment,
			Reason: fmt.Sprintf("attachment spam (%d)", len(ev.AttachmentNames)),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkStickers(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Sticker
	if !p.Enabled {
		return Verdict{}
	}
	if ev.StickerCount > p.Limit {
		return Verdict{
			Policy: policy.AntiSticker,
			Reason: fmt.Sprintf("sticker spam (%d)", ev.StickerCount),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkMentions(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Mention
	if !p.Enabled {
		return Verdict{}
	}
	// @everyone/@here is owner- and admin-only, independent of the numeric
	// limit.
	if ev.MentionsEveryone && !ev.AuthorIsOwner && !ev.AuthorIsAdmin {
		return Verdict{
			Policy: policy.AntiMention,
			Reason: "unauthorized @everyone/@here",
			Action: p.Action,
		}
	}
	total := ev.UserMentions + ev.RoleMentions
	if total > p.Limit {
		return Verdict{
			Policy: policy.AntiMention,
			Reason: fmt.Sprintf("mention spam (%d)", total),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkVirus(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Virus
	// Not gated on p.Enabled: Normalize forces the policy on, and even an
	// un-normalized config must not disable it.
	if len(ev.AttachmentNames) == 0 {
		return Verdict{}
	}
	extensions := p.BlockedExtensions
	if len(extensions) == 0 {
		extensions = policy.DefaultBlockedExtensions
	}
	for _, name := range ev.AttachmentNames {
		lower := strings.ToLower(name)
		for _, ext := range extensions {
			if strings.HasSuffix(lower, ext) {
				return Verdict{
					Policy: policy.Antivirus,
					Reason: fmt.Sprintf("blocked attachment type %s", ext),
					Action: policy.ActionDelete,
				}
			}
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkLinks(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Link
	if !p.Enabled {
		return Verdict{}
	}
	links := utils.ExtractURLs(ev.Content)
	if len(links) == 0 {
		return Verdict{}
	}

	allAllowed := true
	for _, link := range links {
		domain, err := utils.Domain(link)
		if err != nil {
			allAllowed = false
			continue
		}
		allowed, blocked := utils.DomainMatch(domain, ev.AllowedDomains, ev.BlockedDomains)
		if blocked {
			return Verdict{
				Policy: policy.AntiLink,
				Reason: "blocked domain " + domain,
				Action: p.Action,
			}
		}
		if !allowed {
			allAllowed = false
		}
	}
	if allAllowed {
		return Verdict{}
	}
	if len(links) > p.Limit {
		return Verdict{
			Policy: policy.AntiLink,
			Reason: fmt.Sprintf("link spam (%d)", len(links)),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkInvite(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Invite
	if !p.Enabled {
		return Verdict{}
	}
	if invitePattern.MatchString(ev.Content) {
		return Verdict{
			Policy: policy.AntiInvite,
			Reason: "server invite advertising",
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkCaps(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Caps
	if !p.Enabled {
		return Verdict{}
	}
	if utf8.RuneCountInString(ev.Content) < p.MinLength {
		return Verdict{}
	}
	letters, upper := 0, 0
	for _, r := range ev.Content {
		switch {
		case r >= 'a' && r <= 'z':
			letters++
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		}
	}
	if letters == 0 {
		return Verdict{}
	}
	percentage := float64(upper) / float64(letters) * 100
	if percentage > p.Percentage {
		return Verdict{
			Policy: policy.AntiCaps,
			Reason: fmt.Sprintf("excessive uppercase (%.0f%%)", percentage),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkCrashText(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Crash
	if !p.Enabled {
		return Verdict{}
	}
	// Later shapes take precedence when several co-occur.
	reason := ""
	if leadingSlashes.MatchString(ev.Content) {
		reason = "abusive leading slash sequence"
	}
	if strings.ContainsAny(ev.Content, "‮‏") {
		reason = "right-to-left override characters"
	}
	if containsControlChars(ev.Content) {
		reason = "forbidden control characters"
	}
	if reason == "" {
		return Verdict{}
	}
	return Verdict{
		Policy: policy.AntiCrash,
		Reason: reason,
		Action: p.Action,
	}
}

func (e *Evaluator) checkToken(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Token
	if !p.Enabled {
		return Verdict{}
	}
	for _, pattern := range tokenPatterns {
		if pattern.MatchString(ev.Content) {
			return Verdict{
				Policy: policy.AntiToken,
				Reason: "credential token shape in message",
				Action: p.Action,
			}
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkNewlines(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Newline
	if !p.Enabled {
		return Verdict{}
	}
	newlines := strings.Count(ev.Content, "\n")
	if newlines > p.Limit {
		return Verdict{
			Policy: policy.AntiNewline,
			Reason: fmt.Sprintf("newline spam (%d)", newlines),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkSpoilers(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Spoiler
	if !p.Enabled {
		return Verdict{}
	}
	// A spoiler is a pair of || markers.
	spoilers := strings.Count(ev.Content, "||") / 2
	if spoilers > p.Limit {
		return Verdict{
			Policy: policy.AntiSpoiler,
			Reason: fmt.Sprintf("spoiler tag spam (%d)", spoilers),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkZalgo(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Zalgo
	if !p.Enabled {
		return Verdict{}
	}
	total := utf8.RuneCountInString(ev.Content)
	if total == 0 {
		return Verdict{}
	}
	marks := 0
	for _, r := range ev.Content {
		if unicode.Is(unicode.M, r) {
			marks++
		}
	}
	ratio := float64(marks) / float64(total)
	if ratio > p.Threshold {
		return Verdict{
			Policy: policy.AntiZalgo,
			Reason: fmt.Sprintf("zalgo text (mark ratio %.2f)", ratio),
			Action: p.Action,
		}
	}
	return Verdict{}
}

func (e *Evaluator) checkEmoji(ev Message, cfg policy.GuildConfig) Verdict {
	p := cfg.Emoji
	if !p.Enabled {
		return Verdict{}
	}
	total := len(customEmojiPattern.FindAllString(ev.Content, -1)) +
		len(unicodeEmojiRange.FindAllString(ev.Content, -1))
	if total > p.Limit {
		return Verdict{
			Policy: policy.AntiEmoji,
			Reason: fmt.Sprintf("emoji spam (%d)", total),
			Action: p.Action,
		}
	}
	return Verdict{}
}

// containsControlChars reports C0 controls excluding TAB, LF and CR.
func containsControlChars(content string) bool {
	for _, r := range content {
		if r <= 0x1F && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}
