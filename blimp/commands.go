package blimp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// command is one addressable command group (`alias!`, `board!`, ...).
type command struct {
	name    string
	help    string
	handler func(ctx context.Context, c *Context, args []string) error
}

func (b *Bot) registerCommands() {
	b.commands = map[string]*command{}
	for _, cmd := range []*command{
		{
			name: "alias",
			help: "`alias! make <target> <name>` / `alias! delete <name>` / " +
				"`alias! list` — short names for messages and channels",
			handler: b.commandAlias,
		},
		{
			name: "board",
			help: "`board! update <channel> <emoji> <count> [newonly]` / " +
				"`board! disable <channel>` — repost well-reacted messages",
			handler: b.commandBoard,
		},
		{
			name: "kiosk",
			help: "`kiosk! update|append <message> <emoji> <role>...` / " +
				"`kiosk! view <message>` / `kiosk! delete <message>` — " +
				"self-assignable roles via reactions",
			handler: b.commandKiosk,
		},
		{
			name: "logging",
			help: "`logging! channel <channel>` / `logging! disable` — " +
				"audit configuration changes to a channel",
			handler: b.commandLogging,
		},
		{
			name: "welcome",
			help: "`welcome! update` / `welcome! disable` — greet and wave " +
				"goodbye to members",
			handler: b.commandWelcome,
		},
		{
			name:    "wizard",
			help:    "`wizard! board|kiosk|welcome` — interactive setup; `wizard! cancel [@user]`",
			handler: b.commandWizard,
		},
		{
			name:    "help",
			help:    "`help!` — this",
			handler: b.commandHelp,
		},
	} {
		b.commands[cmd.name] = cmd
	}
}

// dispatchCommand routes a message of the form `<group><suffix>
// <args>...` to its command group. Messages not addressed to the bot
// are ignored without comment.
func (b *Bot) dispatchCommand(m *discordgo.Message) {
	fields := strings.Fields(m.Content)
	if len(fields) == 0 {
		return
	}
	suffix := b.config.Discord.Suffix
	if !strings.HasSuffix(fields[0], suffix) {
		return
	}
	name := strings.TrimSuffix(fields[0], suffix)
	cmd, ok := b.commands[name]
	if !ok {
		return
	}
	if m.GuildID == "" {
		return
	}

	c := &Context{
		bot:     b,
		session: b.session,
		message: m,
		logger: b.logger.With(
			"command", name,
			"guild_id", m.GuildID,
			"user_id", m.Author.ID,
		),
	}

	ctx := context.Background()
	if err := cmd.handler(ctx, c, fields[1:]); err != nil {
		b.replyError(c, err)
	}
}

// replyError translates an error into a user-facing reply. Wizard
// cancellation and timeout are silent here, since the wizard's own
// embed already reports them.
func (b *Bot) replyError(c *Context, err error) {
	switch {
	case errors.Is(err, ErrWizardCanceled), errors.Is(err, ErrWizardTimedOut):
		return
	case errors.Is(err, ErrUnauthorized):
		_ = c.ReplyBad("You are not allowed to do this.", "Unable to comply.")
		return
	}

	var comply *UnableToComplyError
	if errors.As(err, &comply) {
		_ = c.ReplyBad(comply.Message, "Unable to comply.")
		return
	}
	var invalid *InvalidAliasError
	if errors.As(err, &invalid) {
		_ = c.ReplyBad(
			fmt.Sprintf("%s isn't a valid alias: %s.", invalid.Alias, invalid.Reason),
			"Unable to comply.",
		)
		return
	}

	c.logger.Error("command failed", tint.Err(err))
	_ = c.ReplyBad(b.config.Discord.ErrorMessage, "")
}

func (b *Bot) commandHelp(_ context.Context, c *Context, _ []string) error {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("**BLIMP**, the Discord management bot.\n\n")
	for _, name := range names {
		sb.WriteString(b.commands[name].help)
		sb.WriteString("\n")
	}
	return c.ReplyEmbed(
		&discordgo.MessageEmbed{
			Color:       ColorAutomaticBlue,
			Description: sb.String(),
		},
	)
}

// usageError is the standard "that's not how this command works" reply.
func usageError(usage string) error {
	return unableToComply(nil, "Usage: %s", usage)
}
