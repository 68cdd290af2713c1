package blimp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Embed colors, carried over from the original palette.
const (
	ColorGood          = 0x7DB358
	ColorIGuess        = 0xF9AE36
	ColorBad           = 0xD52D48
	ColorAutomaticBlue = 0x1C669B
)

// Context carries everything a command handler needs for one
// invocation: the triggering message, the session, the store, and a
// logger scoped to the command.
type Context struct {
	bot     *Bot
	session SessionHandler
	message *discordgo.Message
	logger  *slog.Logger
}

func (c *Context) GuildID() string   { return c.message.GuildID }
func (c *Context) ChannelID() string { return c.message.ChannelID }

func (c *Context) Author() *discordgo.User { return c.message.Author }

func (c *Context) Message() *discordgo.Message { return c.message }

func (c *Context) Logger() *slog.Logger { return c.logger }

// Suffix returns the configured command suffix ("!" by default).
func (c *Context) Suffix() string { return c.bot.config.Discord.Suffix }

// Reply sends an embedded reply in the invoking channel, splitting
// into multiple embeds if the text exceeds Discord's description limit.
func (c *Context) Reply(msg string) error {
	return c.ReplyColor(msg, "", ColorGood)
}

// ReplyWarn sends a yellow reply with an optional subtitle footer.
func (c *Context) ReplyWarn(msg, subtitle string) error {
	return c.ReplyColor(msg, subtitle, ColorIGuess)
}

// ReplyBad sends a red reply with an optional subtitle footer.
func (c *Context) ReplyBad(msg, subtitle string) error {
	return c.ReplyColor(msg, subtitle, ColorBad)
}

func (c *Context) ReplyColor(msg, subtitle string, color int) error {
	for _, chunk := range splitMessage(msg, discordMaxMessageLength) {
		embed := &discordgo.MessageEmbed{
			Color:       color,
			Description: chunk,
		}
		if subtitle != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: subtitle}
		}
		if _, err := c.session.ChannelMessageSendEmbed(c.message.ChannelID, embed); err != nil {
			return err
		}
	}
	return nil
}

// ReplyEmbed sends a fully-formed embed in the invoking channel.
func (c *Context) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	_, err := c.session.ChannelMessageSendEmbed(c.message.ChannelID, embed)
	return err
}

// splitMessage breaks msg into line-preserving chunks no longer than limit.
func splitMessage(msg string, limit int) []string {
	if len(msg) <= limit {
		return []string{msg}
	}
	var chunks []string
	var buf strings.Builder
	for _, line := range strings.Split(msg, "\n") {
		if buf.Len()+len(line)+1 > limit && buf.Len() > 0 {
			chunks = append(chunks, strings.TrimSuffix(buf.String(), "\n"))
			buf.Reset()
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	if buf.Len() > 0 {
		chunks = append(chunks, strings.TrimSuffix(buf.String(), "\n"))
	}
	return chunks
}

// PrivilegedModifyGuild reports whether the acting user may change
// guild-level configuration (manage-guild permission).
func (c *Context) PrivilegedModifyGuild() bool {
	perms, err := c.session.UserChannelPermissions(
		c.message.Author.ID, c.message.ChannelID,
	)
	if err != nil {
		c.logger.Error("error fetching permissions", tint.Err(err))
		return false
	}
	return perms&discordgo.PermissionManageGuild != 0 ||
		perms&discordgo.PermissionAdministrator != 0
}

// PrivilegedModifyChannel reports whether the acting user may change
// channel-level configuration (manage-messages permission).
func (c *Context) PrivilegedModifyChannel(channelID string) bool {
	perms, err := c.session.UserChannelPermissions(c.message.Author.ID, channelID)
	if err != nil {
		c.logger.Error("error fetching permissions", tint.Err(err))
		return false
	}
	return perms&discordgo.PermissionManageMessages != 0 ||
		perms&discordgo.PermissionAdministrator != 0
}

// PrivilegedModifyRole reports whether the acting user may hand out the
// given role: they need manage-roles, and their top role must sit above
// the target.
func (c *Context) PrivilegedModifyRole(role *discordgo.Role) bool {
	perms, err := c.session.UserChannelPermissions(
		c.message.Author.ID, c.message.ChannelID,
	)
	if err != nil {
		c.logger.Error("error fetching permissions", tint.Err(err))
		return false
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	if perms&discordgo.PermissionManageRoles == 0 {
		return false
	}
	top, err := c.bot.memberTopRolePosition(c.message.GuildID, c.message.Author.ID)
	if err != nil {
		c.logger.Error("error fetching member roles", tint.Err(err))
		return false
	}
	return top > role.Position
}

// memberTopRolePosition returns the highest role position held by a
// guild member.
func (b *Bot) memberTopRolePosition(guildID, userID string) (int, error) {
	member, err := b.session.GuildMember(guildID, userID)
	if err != nil {
		return 0, err
	}
	roles, err := b.session.GuildRoles(guildID)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	top := 0
	for _, id := range member.Roles {
		if r, ok := byID[id]; ok && r.Position > top {
			top = r.Position
		}
	}
	return top, nil
}

// Represent creates something the user can click on that gets them to
// the entity behind a handle. Rendering is best-effort: if the entity
// can no longer be fetched, a bracketed placeholder is returned rather
// than an error, so callers never have to abort over a dead link.
func (b *Bot) Represent(ctx context.Context, h Handle) string {
	switch h.Kind {
	case HandleMessage:
		channel, err := b.session.Channel(h.ChannelID)
		if err != nil {
			return "[failed to link message]"
		}
		guild := "@me"
		if channel.GuildID != "" {
			guild = channel.GuildID
		}
		return fmt.Sprintf(
			"[Message in #%s](https://discord.com/channels/%s/%s/%s)",
			channel.Name, guild, h.ChannelID, h.MessageID,
		)
	case HandleTextChannel:
		if _, err := b.session.Channel(h.ChannelID); err != nil {
			return "[failed to link channel]"
		}
		return fmt.Sprintf("<#%s>", h.ChannelID)
	case HandleCategory:
		channel, err := b.session.Channel(h.ChannelID)
		if err != nil {
			return "[failed to link category]"
		}
		return fmt.Sprintf("category %s", channel.Name)
	case HandleGuild:
		return fmt.Sprintf("guild %s", h.GuildID)
	case HandleUser:
		return fmt.Sprintf("<@%s>", h.UserID)
	default:
		b.logger.WarnContext(ctx, "can't link handle", "kind", int(h.Kind))
		return "[failed to link]"
	}
}
