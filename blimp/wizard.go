package blimp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// InputKind selects the parser and displayer for one wizard stage.
type InputKind int

const (
	InputString InputKind = iota + 1
	InputInt
	InputBool
	InputChannel
	InputCategory
	InputMessage
	InputEmoji
	InputRole
)

// Parser turns raw message text into an optional typed value. Parsers
// are pure and fail closed: malformed input returns ok=false and the
// engine keeps waiting.
type Parser func(s string) (any, bool)

// Displayer renders an accepted value into a short string for the
// progress embed. It must not perform additional validation.
type Displayer func(v any) string

// Progress represents an in-progress interaction with a user, rendered
// as a single embedded message that is edited as the user advances
// through the stages of the interaction.
//
// A session is bound to one (channel, user) pair. Each input stage
// waits up to the configured timeout for a qualifying message; the user
// can bail out at any point with the cancel token. Cancellation and
// timeout surface as [ErrWizardCanceled] and [ErrWizardTimedOut], which
// callers treat as "stop immediately, the embed already says why".
type Progress struct {
	cmd     *Context
	bot     *Bot
	embed   *discordgo.MessageEmbed
	message *discordgo.Message
	timeout time.Duration
	logger  *slog.Logger

	// IDs of the user's own messages consumed by this session, offered
	// for deletion by OfferCleanup.
	inputMessageIDs []string
}

// NewProgress creates a wizard session for the invoking user and
// channel. Start must be called before any input stage.
func (b *Bot) NewProgress(cmd *Context, title, description string) *Progress {
	var quoted []string
	for _, line := range strings.Split(description, "\n") {
		quoted = append(quoted, "> "+line)
	}
	suffix := b.config.Discord.Suffix
	desc := strings.Join(quoted, "\n") + fmt.Sprintf(
		"\n\n*Cancel at any time by replying `cancel%s`. "+
			"Otherwise, this will time out after five minutes without user input.*",
		suffix,
	)
	return &Progress{
		cmd: cmd,
		bot: b,
		embed: &discordgo.MessageEmbed{
			Color:       ColorAutomaticBlue,
			Title:       title,
			Description: desc,
		},
		timeout: b.config.Wizard.InputTimeout,
		logger: cmd.logger.With(
			loggerNameKey, "wizard",
			"user_id", cmd.Author().ID,
			"channel_id", cmd.ChannelID(),
		),
	}
}

func (p *Progress) cancelToken() string {
	return "cancel" + p.bot.config.Discord.Suffix
}

func (p *Progress) acceptDefaultToken() string {
	return "ok" + p.bot.config.Discord.Suffix
}

// DoneToken is the reserved input ending an open-ended wizard loop.
func (p *Progress) DoneToken() string {
	return "done" + p.bot.config.Discord.Suffix
}

// Start posts the progress message.
func (p *Progress) Start() error {
	msg, err := p.cmd.session.ChannelMessageSendEmbed(p.cmd.ChannelID(), p.embed)
	if err != nil {
		return fmt.Errorf("error starting wizard: %w", err)
	}
	p.message = msg
	return nil
}

func (p *Progress) update() {
	if p.message == nil {
		return
	}
	_, err := p.cmd.session.ChannelMessageEditEmbed(
		p.message.ChannelID, p.message.ID, p.embed,
	)
	if err != nil {
		p.logger.Error("error updating progress message", tint.Err(err))
	}
}

// AddField appends a stage field and re-renders.
func (p *Progress) AddField(name, value string, inline bool) {
	p.embed.Fields = append(
		p.embed.Fields,
		&discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline},
	)
	p.update()
}

// EditLastField rewrites the most recent stage field, e.g. to signal
// completion. Empty name/value keep the existing content.
func (p *Progress) EditLastField(name, value string, inline bool) {
	if len(p.embed.Fields) == 0 {
		return
	}
	field := p.embed.Fields[len(p.embed.Fields)-1]
	if name != "" {
		field.Name = name
	}
	if value != "" {
		field.Value = value
	}
	field.Inline = inline
	p.update()
}

// DeleteLastField removes the most recent stage field and re-renders.
func (p *Progress) DeleteLastField() {
	if len(p.embed.Fields) == 0 {
		return
	}
	p.embed.Fields = p.embed.Fields[:len(p.embed.Fields)-1]
	p.update()
}

// abortStage marks the session terminally failed with the given stage
// label ("⛔ Canceled"/"⛔ Timeout") and re-renders in red.
func (p *Progress) abortStage(name string) {
	p.embed.Color = ColorBad
	p.AddField(name, "No further input will be accepted.", false)
}

// WaitFor blocks until a message from the session's user in the
// session's channel satisfies parse, and returns the parsed value.
// Messages that parse to nothing are ignored; the stage clock is not
// reset by them. Returns ErrWizardCanceled if the user types the cancel
// token (or the waiter is aborted externally), ErrWizardTimedOut if no
// qualifying message arrives in time.
func (p *Progress) WaitFor(ctx context.Context, parse Parser) (any, error) {
	key := waiterKey{ChannelID: p.cmd.ChannelID(), UserID: p.cmd.Author().ID}
	ch, remove := p.bot.waiters.Register(key)
	defer remove()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// Closed externally: forced cancel.
				p.abortStage("⛔ Canceled")
				return nil, ErrWizardCanceled
			}
			if msg.Content == p.cancelToken() {
				p.inputMessageIDs = append(p.inputMessageIDs, msg.ID)
				p.abortStage("⛔ Canceled")
				return nil, ErrWizardCanceled
			}
			v, parsed := parse(msg.Content)
			if !parsed {
				continue
			}
			p.inputMessageIDs = append(p.inputMessageIDs, msg.ID)
			return v, nil
		case <-timer.C:
			p.abortStage("⛔ Timeout")
			return nil, ErrWizardTimedOut
		case <-ctx.Done():
			p.abortStage("⛔ Canceled")
			return nil, ErrWizardCanceled
		}
	}
}

// Input runs one stage: appends a pending field describing what's being
// asked, waits for qualifying input, and rewrites the field with the
// accepted value. If def is non-nil the user may accept it by typing
// the `ok` token instead of retyping the value.
func (p *Progress) Input(
	ctx context.Context,
	name string,
	description string,
	kind InputKind,
	def any,
) (any, error) {
	parse, display := p.parserFor(kind)

	if def != nil {
		description += fmt.Sprintf(
			"\n*Type `%s` to accept the current value: %s*",
			p.acceptDefaultToken(), display(def),
		)
	}
	p.AddField("➡️ "+name, description, false)

	v, err := p.WaitFor(
		ctx, func(s string) (any, bool) {
			if def != nil && s == p.acceptDefaultToken() {
				return def, true
			}
			return parse(s)
		},
	)
	if err != nil {
		return nil, err
	}
	p.EditLastField("✅ "+name, display(v), true)
	return v, nil
}

// InputChoice runs a stage whose only qualifying inputs are the given
// literal choices (case-insensitive).
func (p *Progress) InputChoice(
	ctx context.Context,
	name string,
	description string,
	choices []string,
	def string,
) (string, error) {
	p.AddField("➡️ "+name, description, false)
	v, err := p.WaitFor(
		ctx, func(s string) (any, bool) {
			if def != "" && s == p.acceptDefaultToken() {
				return def, true
			}
			s = strings.ToLower(strings.TrimSpace(s))
			for _, choice := range choices {
				if s == choice {
					return choice, true
				}
			}
			return nil, false
		},
	)
	if err != nil {
		return "", err
	}
	choice := v.(string)
	p.EditLastField("✅ "+name, choice, true)
	return choice, nil
}

// ConfirmExecute runs the trailing confirm-and-execute stage: it shows
// a description of the pending change, asks for a yes/no, and on accept
// invokes the given closure directly (no command text is synthesized or
// re-parsed). Returns whether the closure was invoked. Errors from the
// closure are the closure's own story; the stage is marked failed but
// the error is returned unwrapped for the command layer to report.
// After a successful execution the user is offered input-message
// cleanup.
func (p *Progress) ConfirmExecute(
	ctx context.Context,
	description string,
	invoke func(context.Context) error,
) (bool, error) {
	p.AddField(
		"➡️ Confirm",
		"**Confirm that you want this change made in your name:**\n"+description,
		false,
	)
	v, err := p.WaitFor(
		ctx, func(s string) (any, bool) {
			b, ok := parseBoolToken(s)
			return b, ok
		},
	)
	if err != nil {
		return false, err
	}

	if !v.(bool) {
		p.embed.Color = ColorBad
		p.EditLastField("⛔ Confirm", "**Didn't execute:**\n"+description, false)
		return false, nil
	}

	if invokeErr := invoke(ctx); invokeErr != nil {
		p.embed.Color = ColorBad
		p.EditLastField("⛔ Confirm", "**Failed:**\n"+description, false)
		return true, invokeErr
	}

	p.embed.Color = ColorGood
	p.EditLastField("✅ Confirm", "**Executed:**\n"+description, false)

	if cleanupErr := p.OfferCleanup(ctx); cleanupErr != nil {
		return true, cleanupErr
	}
	return true, nil
}

// OfferCleanup asks whether the user's own input messages from this
// session should be deleted (default yes), and deletes them on accept.
// Deletion is best-effort with no ordering requirements.
func (p *Progress) OfferCleanup(ctx context.Context) error {
	if len(p.inputMessageIDs) == 0 {
		return nil
	}
	v, err := p.Input(
		ctx,
		"Clean Up",
		fmt.Sprintf(
			"Should I delete your %d input message(s) from this session?",
			len(p.inputMessageIDs),
		),
		InputBool,
		true,
	)
	if err != nil {
		return err
	}
	if !v.(bool) {
		return nil
	}
	for _, id := range p.inputMessageIDs {
		if delErr := p.cmd.session.ChannelMessageDelete(p.cmd.ChannelID(), id); delErr != nil {
			p.logger.Warn(
				"error deleting input message",
				"message_id", id, tint.Err(delErr),
			)
		}
	}
	return nil
}

// parserFor pairs each input kind with its parser and displayer. The
// displayer only renders; validation all happens in the parser.
func (p *Progress) parserFor(kind InputKind) (Parser, Displayer) {
	ctx := context.Background()
	guildID := p.cmd.GuildID()

	switch kind {
	case InputString:
		return func(s string) (any, bool) {
				if strings.TrimSpace(s) == "" {
					return nil, false
				}
				return s, true
			}, func(v any) string {
				return truncate(v.(string), 512)
			}
	case InputInt:
		return func(s string) (any, bool) {
				n, ok := parseInt(s)
				return n, ok
			}, func(v any) string {
				return strconv.Itoa(v.(int))
			}
	case InputBool:
		return func(s string) (any, bool) {
				b, ok := parseBoolToken(s)
				return b, ok
			}, func(v any) string {
				return strconv.FormatBool(v.(bool))
			}
	case InputChannel:
		return func(s string) (any, bool) {
				ch, ok := p.bot.ParseChannel(ctx, guildID, s)
				return ch, ok
			}, func(v any) string {
				return fmt.Sprintf("<#%s>", v.(*discordgo.Channel).ID)
			}
	case InputCategory:
		return func(s string) (any, bool) {
				ch, ok := p.bot.ParseCategory(ctx, guildID, s)
				return ch, ok
			}, func(v any) string {
				return v.(*discordgo.Channel).Name
			}
	case InputMessage:
		return func(s string) (any, bool) {
				h, ok := p.bot.ParseMessageRef(ctx, guildID, s)
				return h, ok
			}, func(v any) string {
				return p.bot.Represent(ctx, v.(Handle))
			}
	case InputEmoji:
		return func(s string) (any, bool) {
				e, ok := parseEmojiToken(s)
				return e, ok
			}, func(v any) string {
				return displayEmoji(v.(string))
			}
	case InputRole:
		return func(s string) (any, bool) {
				r, ok := p.bot.ParseRole(ctx, guildID, s)
				return r, ok
			}, func(v any) string {
				return fmt.Sprintf("<@&%s>", v.(*discordgo.Role).ID)
			}
	default:
		return func(string) (any, bool) { return nil, false },
			func(any) string { return "" }
	}
}
