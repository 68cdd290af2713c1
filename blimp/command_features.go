package blimp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// commandBoard handles `board! update|disable`.
func (b *Bot) commandBoard(ctx context.Context, c *Context, args []string) error {
	usage := usageError(
		"`board! update <channel> <emoji> <count> [newonly]`, `board! disable <channel>`",
	)
	if len(args) == 0 {
		return usage
	}
	switch args[0] {
	case "update":
		if len(args) != 4 && len(args) != 5 {
			return usage
		}
		channel, ok := b.ParseChannel(ctx, c.GuildID(), args[1])
		if !ok {
			return unableToComply(nil, "%s isn't a text channel I can see.", args[1])
		}
		if !c.PrivilegedModifyChannel(channel.ID) {
			return ErrUnauthorized
		}
		emoji, ok := parseEmojiToken(args[2])
		if !ok {
			return unableToComply(nil, "%s isn't an emoji.", args[2])
		}
		minReacts, ok := parseInt(args[3])
		if !ok {
			return unableToComply(nil, "%s isn't a number.", args[3])
		}
		var postAgeLimit int64
		if len(args) == 5 {
			newOnly, ok := parseBoolToken(args[4])
			if !ok {
				return unableToComply(nil, "%s isn't a yes or a no.", args[4])
			}
			if newOnly {
				postAgeLimit = commandTimestamp(c)
			}
		}
		oid, err := b.store.MakeObject(ctx, TextChannelHandle(channel.ID))
		if err != nil {
			return err
		}
		if err = b.boards.Update(
			ctx, c.GuildID(), oid, emoji, minReacts, postAgeLimit,
		); err != nil {
			return err
		}
		b.guildLog.Post(
			ctx, c.GuildID(), c.Author(),
			fmt.Sprintf(
				"Board <#%s> now reposts messages with %d× %s.",
				channel.ID, minReacts, displayEmoji(emoji),
			),
		)
		return c.Reply(
			fmt.Sprintf(
				"<#%s> will repost messages that get %d %s reactions.",
				channel.ID, minReacts, displayEmoji(emoji),
			),
		)

	case "disable":
		if len(args) != 2 {
			return usage
		}
		channel, ok := b.ParseChannel(ctx, c.GuildID(), args[1])
		if !ok {
			return unableToComply(nil, "%s isn't a text channel I can see.", args[1])
		}
		if !c.PrivilegedModifyChannel(channel.ID) {
			return ErrUnauthorized
		}
		oid, ok := b.store.ByHandle(ctx, TextChannelHandle(channel.ID))
		if !ok {
			return unableToComply(nil, "That channel doesn't have a board.")
		}
		if err := b.boards.Disable(ctx, c.GuildID(), oid); err != nil {
			return err
		}
		b.guildLog.Post(
			ctx, c.GuildID(), c.Author(),
			fmt.Sprintf("Board <#%s> was disabled.", channel.ID),
		)
		return c.Reply(fmt.Sprintf("<#%s> is no longer a board.", channel.ID))

	default:
		return usage
	}
}

// parseRolePairs reads alternating emoji/role arguments, verifying the
// acting user may hand out each role.
func (b *Bot) parseRolePairs(ctx context.Context, c *Context, args []string) ([]RolePair, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, unableToComply(nil, "Emoji and roles have to come in pairs.")
	}
	var pairs []RolePair
	for i := 0; i < len(args); i += 2 {
		emoji, ok := parseEmojiToken(args[i])
		if !ok || emoji == "any" {
			return nil, unableToComply(nil, "%s isn't an emoji.", args[i])
		}
		role, ok := b.ParseRole(ctx, c.GuildID(), args[i+1])
		if !ok {
			return nil, unableToComply(nil, "%s isn't a role I can see.", args[i+1])
		}
		if !c.PrivilegedModifyRole(role) {
			return nil, ErrUnauthorized
		}
		pairs = append(pairs, RolePair{Emoji: emoji, Role: role})
	}
	return pairs, nil
}

// commandKiosk handles `kiosk! update|append|view|delete`.
func (b *Bot) commandKiosk(ctx context.Context, c *Context, args []string) error {
	usage := usageError(
		"`kiosk! update <message> <emoji> <role>...`, `kiosk! append <message> <emoji> <role>...`, " +
			"`kiosk! view <message>`, `kiosk! delete <message>`",
	)
	if len(args) < 2 {
		return usage
	}
	h, ok := b.ParseMessageRef(ctx, c.GuildID(), args[1])
	if !ok {
		return unableToComply(nil, "%s isn't a message I can find.", args[1])
	}

	switch args[0] {
	case "update", "append":
		pairs, err := b.parseRolePairs(ctx, c, args[2:])
		if err != nil {
			return err
		}
		oid, err := b.store.MakeObject(ctx, h)
		if err != nil {
			return err
		}
		if args[0] == "update" {
			err = b.kiosks.Update(ctx, c.GuildID(), oid, pairs)
		} else {
			err = b.kiosks.Append(ctx, c.GuildID(), oid, pairs)
		}
		if err != nil {
			return err
		}
		b.guildLog.Post(
			ctx, c.GuildID(), c.Author(),
			fmt.Sprintf("Kiosk on %s was changed.", b.Represent(ctx, h)),
		)
		return c.Reply(
			fmt.Sprintf("%s is now a kiosk with %d role(s).", b.Represent(ctx, h), len(pairs)),
		)

	case "view":
		oid, ok := b.store.ByHandle(ctx, h)
		if !ok {
			return unableToComply(nil, "That message isn't a kiosk.")
		}
		entries, err := b.kiosks.View(ctx, oid)
		if err != nil {
			return err
		}
		return c.Reply(DescribeEntries(entries))

	case "delete":
		if !c.PrivilegedModifyGuild() {
			return ErrUnauthorized
		}
		oid, ok := b.store.ByHandle(ctx, h)
		if !ok {
			return unableToComply(nil, "That message isn't a kiosk.")
		}
		if err := b.kiosks.Delete(ctx, oid); err != nil {
			return err
		}
		b.guildLog.Post(
			ctx, c.GuildID(), c.Author(),
			fmt.Sprintf("Kiosk on %s was deleted.", b.Represent(ctx, h)),
		)
		return c.Reply("Kiosk deleted. Reactions are left in place.")

	default:
		return usage
	}
}

// commandLogging handles `logging! channel|disable`.
func (b *Bot) commandLogging(ctx context.Context, c *Context, args []string) error {
	usage := usageError("`logging! channel <channel>`, `logging! disable`")
	if len(args) == 0 {
		return usage
	}
	if !c.PrivilegedModifyGuild() {
		return ErrUnauthorized
	}
	switch args[0] {
	case "channel":
		if len(args) != 2 {
			return usage
		}
		channel, ok := b.ParseChannel(ctx, c.GuildID(), args[1])
		if !ok {
			return unableToComply(nil, "%s isn't a text channel I can see.", args[1])
		}
		oid, err := b.store.MakeObject(ctx, TextChannelHandle(channel.ID))
		if err != nil {
			return err
		}
		if err = b.guildLog.SetChannel(ctx, c.GuildID(), oid); err != nil {
			return err
		}
		b.guildLog.Post(
			ctx, c.GuildID(), c.Author(),
			fmt.Sprintf("Configuration changes now get logged to <#%s>.", channel.ID),
		)
		return c.Reply(fmt.Sprintf("Logging to <#%s>.", channel.ID))

	case "disable":
		if err := b.guildLog.Disable(ctx, c.GuildID()); err != nil {
			return err
		}
		return c.Reply("Logging disabled.")

	default:
		return usage
	}
}

// commandWelcome handles `welcome! update|disable`. Updating is
// interactive, since greetings are free-form text.
func (b *Bot) commandWelcome(ctx context.Context, c *Context, args []string) error {
	usage := usageError("`welcome! update`, `welcome! disable`")
	if len(args) == 0 {
		return usage
	}
	if !c.PrivilegedModifyGuild() {
		return ErrUnauthorized
	}
	switch args[0] {
	case "update":
		return b.wizardWelcome(ctx, c)
	case "disable":
		if err := b.welcome.Disable(ctx, c.GuildID()); err != nil {
			return err
		}
		b.guildLog.Post(ctx, c.GuildID(), c.Author(), "Welcome messages were disabled.")
		return c.Reply("Welcome messages disabled.")
	default:
		return usage
	}
}

// commandTimestamp returns the creation time of the invoking message in
// Unix milliseconds, used as the "only new posts" cutoff for boards.
func commandTimestamp(c *Context) int64 {
	created, err := discordgo.SnowflakeTimestamp(c.Message().ID)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return created.UnixMilli()
}

// describeBoard is the confirmation text for a pending board change.
func describeBoard(channelID, emoji string, minReacts int) string {
	return fmt.Sprintf(
		"Make <#%s> a board reposting messages with %s× %s reactions.",
		channelID, strconv.Itoa(minReacts), displayEmoji(emoji),
	)
}
