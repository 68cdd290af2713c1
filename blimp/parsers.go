package blimp

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Wizard input parsers. Each turns free-form human text into an
// optional typed value and fails closed: malformed input returns
// ok=false so the engine keeps prompting, rather than an error.

// parseBoolToken matches somewhat naturally expressed booleans.
func parseBoolToken(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1", "#t", "oui":
		return true, true
	case "no", "n", "false", "0", "-1", "#f":
		return false, true
	default:
		return false, false
	}
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseEmojiToken matches a single emoji-ish token: a unicode emoji, a
// custom emoji (reduced to its numeric ID), or the literal "any".
func parseEmojiToken(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", false
	}
	return normalizeEmoji(s), true
}

// displayEmoji renders a stored emoji token back into something Discord
// shows as an emoji.
func displayEmoji(s string) string {
	if snowflakePattern.MatchString(s) {
		return "<:emoji:" + s + ">"
	}
	return s
}

// ParseChannel resolves a text channel from an alias, mention, raw ID,
// or channel name within the guild.
func (b *Bot) ParseChannel(
	ctx context.Context,
	guildID string,
	arg string,
) (*discordgo.Channel, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, false
	}

	if arg[0] == AliasMarker {
		_, h, ok := b.store.ByAlias(ctx, guildID, arg)
		if !ok || h.Kind != HandleTextChannel {
			return nil, false
		}
		return b.fetchChannelOfType(h.ChannelID, discordgo.ChannelTypeGuildText)
	}

	if m := channelMentionPattern.FindStringSubmatch(arg); m != nil {
		return b.fetchChannelOfType(m[1], discordgo.ChannelTypeGuildText)
	}
	if snowflakePattern.MatchString(arg) {
		return b.fetchChannelOfType(arg, discordgo.ChannelTypeGuildText)
	}

	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		return nil, false
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == arg {
			return ch, true
		}
	}
	return nil, false
}

// ParseCategory resolves a channel category from an alias, raw ID, or
// category name within the guild.
func (b *Bot) ParseCategory(
	ctx context.Context,
	guildID string,
	arg string,
) (*discordgo.Channel, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, false
	}

	if arg[0] == AliasMarker {
		_, h, ok := b.store.ByAlias(ctx, guildID, arg)
		if !ok || h.Kind != HandleCategory {
			return nil, false
		}
		return b.fetchChannelOfType(h.ChannelID, discordgo.ChannelTypeGuildCategory)
	}

	if snowflakePattern.MatchString(arg) {
		return b.fetchChannelOfType(arg, discordgo.ChannelTypeGuildCategory)
	}

	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		return nil, false
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == arg {
			return ch, true
		}
	}
	return nil, false
}

// ParseMessageRef resolves a message reference from an alias, a message
// link, or a `channelID-messageID` pair. It returns a message handle
// without fetching the message itself.
func (b *Bot) ParseMessageRef(
	ctx context.Context,
	guildID string,
	arg string,
) (Handle, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Handle{}, false
	}

	if arg[0] == AliasMarker {
		_, h, ok := b.store.ByAlias(ctx, guildID, arg)
		if !ok || h.Kind != HandleMessage {
			return Handle{}, false
		}
		return h, true
	}

	if m := messageLinkPattern.FindStringSubmatch(arg); m != nil {
		return MessageHandle(m[1], m[2]), true
	}

	if before, after, found := strings.Cut(arg, "-"); found {
		if snowflakePattern.MatchString(before) && snowflakePattern.MatchString(after) {
			return MessageHandle(before, after), true
		}
	}
	return Handle{}, false
}

// ParseRole resolves a role from a mention, raw ID, or role name within
// the guild.
func (b *Bot) ParseRole(
	_ context.Context,
	guildID string,
	arg string,
) (*discordgo.Role, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, false
	}

	roles, err := b.session.GuildRoles(guildID)
	if err != nil {
		return nil, false
	}

	var roleID string
	if m := roleMentionPattern.FindStringSubmatch(arg); m != nil {
		roleID = m[1]
	} else if snowflakePattern.MatchString(arg) {
		roleID = arg
	}

	for _, r := range roles {
		if r.ID == roleID || r.Name == arg {
			return r, true
		}
	}
	return nil, false
}

// ParseUser resolves a user ID from a mention or raw ID.
func ParseUser(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if m := userMentionPattern.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if snowflakePattern.MatchString(arg) {
		return arg, true
	}
	return "", false
}

func (b *Bot) fetchChannelOfType(
	channelID string,
	channelType discordgo.ChannelType,
) (*discordgo.Channel, bool) {
	ch, err := b.session.Channel(channelID)
	if err != nil || ch.Type != channelType {
		return nil, false
	}
	return ch, true
}
