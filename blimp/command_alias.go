package blimp

import (
	"context"
	"fmt"
	"strings"
)

// commandAlias handles `alias! make|delete|list`.
func (b *Bot) commandAlias(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		return usageError("`alias! make <target> <name>`, `alias! delete <name>`, `alias! list`")
	}
	switch args[0] {
	case "make":
		return b.aliasMake(ctx, c, args[1:])
	case "delete":
		return b.aliasDelete(ctx, c, args[1:])
	case "list":
		return b.aliasList(ctx, c)
	default:
		return usageError("`alias! make <target> <name>`, `alias! delete <name>`, `alias! list`")
	}
}

// resolveAliasTarget turns a command argument into a Handle: a message
// link or `channelID-messageID` pair, a channel, a category, a user
// mention, or an existing alias.
func (b *Bot) resolveAliasTarget(
	ctx context.Context,
	guildID string,
	arg string,
) (Handle, error) {
	if h, ok := b.ParseMessageRef(ctx, guildID, arg); ok {
		return h, nil
	}
	if ch, ok := b.ParseChannel(ctx, guildID, arg); ok {
		return TextChannelHandle(ch.ID), nil
	}
	if ch, ok := b.ParseCategory(ctx, guildID, arg); ok {
		return CategoryHandle(ch.ID), nil
	}
	if userID, ok := ParseUser(arg); ok && strings.HasPrefix(arg, "<@") {
		return UserHandle(userID), nil
	}
	return Handle{}, unableToComply(
		nil,
		"I don't know what %s refers to. Try a message link, channel, category, or user mention.",
		arg,
	)
}

func (b *Bot) aliasMake(ctx context.Context, c *Context, args []string) error {
	if len(args) != 2 {
		return usageError("`alias! make <target> <name>`")
	}
	if !c.PrivilegedModifyGuild() {
		return ErrUnauthorized
	}
	target, name := args[0], args[1]

	h, err := b.resolveAliasTarget(ctx, c.GuildID(), target)
	if err != nil {
		return err
	}
	oid, err := b.store.MakeObject(ctx, h)
	if err != nil {
		return err
	}
	if err = b.store.CreateAlias(ctx, c.GuildID(), name, oid); err != nil {
		return err
	}

	b.guildLog.Post(
		ctx, c.GuildID(), c.Author(),
		fmt.Sprintf("Alias %s now refers to %s.", name, b.Represent(ctx, h)),
	)
	return c.Reply(
		fmt.Sprintf("%s is now known as %s.", b.Represent(ctx, h), name),
	)
}

func (b *Bot) aliasDelete(ctx context.Context, c *Context, args []string) error {
	if len(args) != 1 {
		return usageError("`alias! delete <name>`")
	}
	if !c.PrivilegedModifyGuild() {
		return ErrUnauthorized
	}
	name := args[0]
	if err := b.store.DeleteAlias(ctx, c.GuildID(), name); err != nil {
		return err
	}
	b.guildLog.Post(
		ctx, c.GuildID(), c.Author(),
		fmt.Sprintf("Alias %s was deleted.", name),
	)
	return c.Reply(fmt.Sprintf("Deleted %s.", name))
}

func (b *Bot) aliasList(ctx context.Context, c *Context) error {
	aliases, err := b.store.ListAliases(ctx, c.GuildID())
	if err != nil {
		return err
	}
	if len(aliases) == 0 {
		return c.ReplyWarn("This guild has no aliases.", "")
	}
	var sb strings.Builder
	for _, alias := range aliases {
		h, ok := b.store.ByOID(ctx, alias.OID)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", alias.Alias, b.Represent(ctx, h))
	}
	return c.Reply(sb.String())
}
