package blimp

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// commandWizard handles `wizard! board|kiosk|welcome|cancel`: guided,
// interactive versions of the configuration commands, plus canceling a
// running session.
func (b *Bot) commandWizard(ctx context.Context, c *Context, args []string) error {
	usage := usageError("`wizard! board`, `wizard! kiosk`, `wizard! welcome`, `wizard! cancel [@user]`")
	if len(args) == 0 {
		return usage
	}
	switch args[0] {
	case "board":
		return b.wizardBoard(ctx, c)
	case "kiosk":
		return b.wizardKiosk(ctx, c)
	case "welcome":
		if !c.PrivilegedModifyGuild() {
			return ErrUnauthorized
		}
		return b.wizardWelcome(ctx, c)
	case "cancel":
		return b.wizardCancel(c, args[1:])
	default:
		return usage
	}
}

// wizardCancel force-cancels a running wizard session in the current
// channel: your own with no argument, another user's with a mention
// (channel moderators only).
func (b *Bot) wizardCancel(c *Context, args []string) error {
	targetID := c.Author().ID
	if len(args) == 1 {
		userID, ok := ParseUser(args[0])
		if !ok {
			return unableToComply(nil, "%s isn't a user.", args[0])
		}
		if userID != c.Author().ID && !c.PrivilegedModifyChannel(c.ChannelID()) {
			return ErrUnauthorized
		}
		targetID = userID
	} else if len(args) > 1 {
		return usageError("`wizard! cancel [@user]`")
	}

	if !b.waiters.Abort(waiterKey{ChannelID: c.ChannelID(), UserID: targetID}) {
		return unableToComply(nil, "No wizard session to cancel here.")
	}
	return c.Reply("Wizard session canceled.")
}

// wizardBoard interactively configures a repost board, then applies the
// change through the same code path as `board! update`.
func (b *Bot) wizardBoard(ctx context.Context, c *Context) error {
	p := b.NewProgress(
		c, "Board Wizard",
		"Boards repost messages into a channel once they collect enough "+
			"reactions of a chosen emoji.",
	)
	if err := p.Start(); err != nil {
		return err
	}

	channelVal, err := p.Input(
		ctx, "Channel",
		"Which channel should reposts go to?",
		InputChannel, nil,
	)
	if err != nil {
		return err
	}
	channel := channelVal.(*discordgo.Channel)
	if !c.PrivilegedModifyChannel(channel.ID) {
		p.abortStage("⛔ Unauthorized")
		return ErrUnauthorized
	}

	emojiVal, err := p.Input(
		ctx, "Emoji",
		"Which emoji should count? Type `any` to count every emoji.",
		InputEmoji, "any",
	)
	if err != nil {
		return err
	}
	emoji := emojiVal.(string)

	countVal, err := p.Input(
		ctx, "Reactions",
		"How many reactions does a message need?",
		InputInt, 4,
	)
	if err != nil {
		return err
	}
	minReacts := countVal.(int)

	oldVal, err := p.Input(
		ctx, "Old Messages",
		"Should messages older than right now also get reposted once they "+
			"collect enough reactions?",
		InputBool, true,
	)
	if err != nil {
		return err
	}
	var postAgeLimit int64
	if !oldVal.(bool) {
		postAgeLimit = commandTimestamp(c)
	}

	invoked, err := p.ConfirmExecute(
		ctx,
		describeBoard(channel.ID, emoji, minReacts),
		func(invokeCtx context.Context) error {
			oid, makeErr := b.store.MakeObject(invokeCtx, TextChannelHandle(channel.ID))
			if makeErr != nil {
				return makeErr
			}
			if updateErr := b.boards.Update(
				invokeCtx, c.GuildID(), oid, emoji, minReacts, postAgeLimit,
			); updateErr != nil {
				return updateErr
			}
			b.guildLog.Post(
				invokeCtx, c.GuildID(), c.Author(),
				fmt.Sprintf(
					"Board <#%s> now reposts messages with %d× %s.",
					channel.ID, minReacts, displayEmoji(emoji),
				),
			)
			return nil
		},
	)
	if err != nil || !invoked {
		return err
	}
	return nil
}

// wizardKiosk interactively builds a kiosk's emoji-role pairs, then
// applies them through the same code path as `kiosk! update`.
func (b *Bot) wizardKiosk(ctx context.Context, c *Context) error {
	p := b.NewProgress(
		c, "Kiosk Wizard",
		"Kiosks hand out roles to members who react on a message.",
	)
	if err := p.Start(); err != nil {
		return err
	}

	msgVal, err := p.Input(
		ctx, "Message",
		"Which message should become a kiosk? Paste a message link, an "+
			"alias, or a `channelID-messageID` pair.",
		InputMessage, nil,
	)
	if err != nil {
		return err
	}
	h := msgVal.(Handle)

	var pairs []RolePair
	for len(pairs) < maxKioskPairs {
		pair, done, pairErr := b.wizardKioskPair(ctx, c, p, len(pairs)+1)
		if pairErr != nil {
			return pairErr
		}
		if done {
			break
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		p.abortStage("⛔ Empty")
		return nil
	}

	mode, err := p.InputChoice(
		ctx, "Mode",
		"Should these pairs `replace` the kiosk's existing ones, or be "+
			"`append`ed to them?",
		[]string{"replace", "append"}, "replace",
	)
	if err != nil {
		return err
	}

	invoked, err := p.ConfirmExecute(
		ctx,
		fmt.Sprintf(
			"Configure %s as a kiosk (%s):\n%s",
			b.Represent(ctx, h), mode,
			DescribeEntries(pairsToEntries(pairs)),
		),
		func(invokeCtx context.Context) error {
			oid, makeErr := b.store.MakeObject(invokeCtx, h)
			if makeErr != nil {
				return makeErr
			}
			var applyErr error
			if mode == "append" {
				applyErr = b.kiosks.Append(invokeCtx, c.GuildID(), oid, pairs)
			} else {
				applyErr = b.kiosks.Update(invokeCtx, c.GuildID(), oid, pairs)
			}
			if applyErr != nil {
				return applyErr
			}
			b.guildLog.Post(
				invokeCtx, c.GuildID(), c.Author(),
				fmt.Sprintf("Kiosk on %s was changed.", b.Represent(invokeCtx, h)),
			)
			return nil
		},
	)
	if err != nil || !invoked {
		return err
	}
	return nil
}

// wizardKioskPair collects one emoji-role pair, or reports that the
// user is done adding pairs.
func (b *Bot) wizardKioskPair(
	ctx context.Context,
	c *Context,
	p *Progress,
	n int,
) (RolePair, bool, error) {
	p.AddField(
		fmt.Sprintf("➡️ Pair %d", n),
		fmt.Sprintf(
			"Name an emoji and a role, like `👍 @Member`. Type `%s` when "+
				"you've added every pair.",
			p.DoneToken(),
		),
		false,
	)
	v, err := p.WaitFor(
		ctx, func(s string) (any, bool) {
			if s == p.DoneToken() {
				return nil, true
			}
			fields := strings.Fields(s)
			if len(fields) != 2 {
				return nil, false
			}
			emoji, ok := parseEmojiToken(fields[0])
			if !ok || emoji == "any" {
				return nil, false
			}
			role, ok := b.ParseRole(ctx, c.GuildID(), fields[1])
			if !ok {
				return nil, false
			}
			return RolePair{Emoji: emoji, Role: role}, true
		},
	)
	if err != nil {
		return RolePair{}, false, err
	}
	if v == nil {
		p.DeleteLastField()
		return RolePair{}, true, nil
	}
	pair := v.(RolePair)
	if !c.PrivilegedModifyRole(pair.Role) {
		p.abortStage("⛔ Unauthorized")
		return RolePair{}, false, ErrUnauthorized
	}
	p.EditLastField(
		fmt.Sprintf("✅ Pair %d", n),
		fmt.Sprintf("%s → <@&%s>", displayEmoji(pair.Emoji), pair.Role.ID),
		true,
	)
	return pair, false, nil
}

func pairsToEntries(pairs []RolePair) []KioskEntry {
	entries := make([]KioskEntry, len(pairs))
	for i, pair := range pairs {
		entries[i] = KioskEntry{Emoji: pair.Emoji, RoleID: pair.Role.ID}
	}
	return entries
}

// wizardWelcome interactively configures greeting and farewell
// messages. Typing the done token for either leaves that half unset.
func (b *Bot) wizardWelcome(ctx context.Context, c *Context) error {
	p := b.NewProgress(
		c, "Welcome Wizard",
		"Greet members when they arrive, and wave when they leave. Use "+
			"`$user` to mention the member.",
	)
	if err := p.Start(); err != nil {
		return err
	}

	channelVal, err := p.Input(
		ctx, "Channel",
		"Which channel should the messages go to?",
		InputChannel, nil,
	)
	if err != nil {
		return err
	}
	channel := channelVal.(*discordgo.Channel)

	greeting, err := b.wizardOptionalText(
		ctx, p, "Greeting",
		"What should I say when someone joins?",
	)
	if err != nil {
		return err
	}
	farewell, err := b.wizardOptionalText(
		ctx, p, "Farewell",
		"What should I say when someone leaves?",
	)
	if err != nil {
		return err
	}

	invoked, err := p.ConfirmExecute(
		ctx,
		fmt.Sprintf(
			"Post welcome messages in <#%s>.\nGreeting: %s\nFarewell: %s",
			channel.ID, orNone(greeting), orNone(farewell),
		),
		func(invokeCtx context.Context) error {
			oid, makeErr := b.store.MakeObject(
				invokeCtx, TextChannelHandle(channel.ID),
			)
			if makeErr != nil {
				return makeErr
			}
			if updateErr := b.welcome.Update(
				invokeCtx, WelcomeConfig{
					GuildID:    c.GuildID(),
					ChannelOID: oid,
					Greeting:   greeting,
					Farewell:   farewell,
				},
			); updateErr != nil {
				return updateErr
			}
			b.guildLog.Post(
				invokeCtx, c.GuildID(), c.Author(),
				fmt.Sprintf("Welcome messages now go to <#%s>.", channel.ID),
			)
			return nil
		},
	)
	if err != nil || !invoked {
		return err
	}
	return nil
}

// wizardOptionalText collects a free-form line, where the done token
// means "skip this one".
func (b *Bot) wizardOptionalText(
	ctx context.Context,
	p *Progress,
	name string,
	description string,
) (string, error) {
	p.AddField(
		"➡️ "+name,
		fmt.Sprintf("%s Type `%s` to skip.", description, p.DoneToken()),
		false,
	)
	v, err := p.WaitFor(
		ctx, func(s string) (any, bool) {
			if s == p.DoneToken() {
				return "", true
			}
			if strings.TrimSpace(s) == "" {
				return nil, false
			}
			return s, true
		},
	)
	if err != nil {
		return "", err
	}
	text := v.(string)
	p.EditLastField("✅ "+name, orNone(text), true)
	return text, nil
}

func orNone(s string) string {
	if s == "" {
		return "*none*"
	}
	return s
}
