package blimp

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// SessionHandler is the subset of the discordgo session used by the
// bot. It exists primarily so Discord interactions can be mocked in
// tests; [Session] implements it against a real gateway connection.
type SessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	ChannelMessageSend(
		channelID string,
		content string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageSendEmbed(
		channelID string,
		embed *discordgo.MessageEmbed,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageEditEmbed(
		channelID string,
		messageID string,
		embed *discordgo.MessageEmbed,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageDelete(
		channelID string,
		messageID string,
		opts ...discordgo.RequestOption,
	) error

	ChannelMessage(
		channelID string,
		messageID string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	Channel(
		channelID string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	GuildChannels(
		guildID string,
		opts ...discordgo.RequestOption,
	) ([]*discordgo.Channel, error)

	GuildRoles(
		guildID string,
		opts ...discordgo.RequestOption,
	) ([]*discordgo.Role, error)

	GuildMember(
		guildID string,
		userID string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Member, error)

	GuildMemberRoleAdd(
		guildID string,
		userID string,
		roleID string,
		opts ...discordgo.RequestOption,
	) error

	GuildMemberRoleRemove(
		guildID string,
		userID string,
		roleID string,
		opts ...discordgo.RequestOption,
	) error

	MessageReactionAdd(
		channelID string,
		messageID string,
		emojiID string,
		opts ...discordgo.RequestOption,
	) error

	MessageReactionRemove(
		channelID string,
		messageID string,
		emojiID string,
		userID string,
		opts ...discordgo.RequestOption,
	) error

	// UserChannelPermissions returns the acting user's computed
	// permissions in a channel. Permission math itself is Discord's;
	// we only read the result.
	UserChannelPermissions(
		userID string,
		channelID string,
		fetchOptions ...discordgo.RequestOption,
	) (int64, error)

	// UpdateCustomStatus sets the bot's custom status text
	UpdateCustomStatus(status string) error

	// BotUserID returns the connected bot account's user ID, or ""
	// before the gateway is ready.
	BotUserID() string
}

// Session implements SessionHandler by delegating to a discordgo session.
type Session struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (s Session) Open() error {
	s.logger.Info("opening gateway connection")
	return s.session.Open()
}

func (s Session) Close() error {
	s.logger.Info("closing gateway connection")
	return s.session.Close()
}

func (s Session) AddHandler(handler any) func() {
	return s.session.AddHandler(handler)
}

func (s Session) ChannelMessageSend(
	channelID string,
	content string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return s.session.ChannelMessageSend(channelID, content, opts...)
}

func (s Session) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return s.session.ChannelMessageSendEmbed(channelID, embed, opts...)
}

func (s Session) ChannelMessageEditEmbed(
	channelID string,
	messageID string,
	embed *discordgo.MessageEmbed,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return s.session.ChannelMessageEditEmbed(channelID, messageID, embed, opts...)
}

func (s Session) ChannelMessageDelete(
	channelID string,
	messageID string,
	opts ...discordgo.RequestOption,
) error {
	return s.session.ChannelMessageDelete(channelID, messageID, opts...)
}

func (s Session) ChannelMessage(
	channelID string,
	messageID string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return s.session.ChannelMessage(channelID, messageID, opts...)
}

func (s Session) Channel(
	channelID string,
	opts ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return s.session.Channel(channelID, opts...)
}

func (s Session) GuildChannels(
	guildID string,
	opts ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	return s.session.GuildChannels(guildID, opts...)
}

func (s Session) GuildRoles(
	guildID string,
	opts ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return s.session.GuildRoles(guildID, opts...)
}

func (s Session) GuildMember(
	guildID string,
	userID string,
	opts ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	return s.session.GuildMember(guildID, userID, opts...)
}

func (s Session) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	opts ...discordgo.RequestOption,
) error {
	return s.session.GuildMemberRoleAdd(guildID, userID, roleID, opts...)
}

func (s Session) GuildMemberRoleRemove(
	guildID string,
	userID string,
	roleID string,
	opts ...discordgo.RequestOption,
) error {
	return s.session.GuildMemberRoleRemove(guildID, userID, roleID, opts...)
}

func (s Session) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	opts ...discordgo.RequestOption,
) error {
	return s.session.MessageReactionAdd(channelID, messageID, emojiID, opts...)
}

func (s Session) MessageReactionRemove(
	channelID string,
	messageID string,
	emojiID string,
	userID string,
	opts ...discordgo.RequestOption,
) error {
	return s.session.MessageReactionRemove(
		channelID, messageID, emojiID, userID, opts...,
	)
}

func (s Session) UserChannelPermissions(
	userID string,
	channelID string,
	fetchOptions ...discordgo.RequestOption,
) (int64, error) {
	return s.session.UserChannelPermissions(userID, channelID, fetchOptions...)
}

func (s Session) UpdateCustomStatus(status string) error {
	return s.session.UpdateCustomStatus(status)
}

func (s Session) BotUserID() string {
	if s.session.State != nil && s.session.State.User != nil {
		return s.session.State.User.ID
	}
	return ""
}

// newSession creates a Session from the discord config.
func newSession(config *DiscordConfig, log *slog.Logger) (Session, error) {
	session := Session{logger: log.With(loggerNameKey, "discord_session")}
	disc, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.Identify.Intents = config.GatewayIntents
	if config.httpClient != nil {
		disc.Client = config.httpClient
	}
	session.session = disc
	return session, nil
}

// waiterKey identifies one in-flight wait for user input: exactly one
// wizard session may wait per (channel, user) pair.
type waiterKey struct {
	ChannelID string
	UserID    string
}

// messageWaiters routes gateway messages to in-flight wizard sessions.
// Register installs a buffered channel for a (channel, user) pair;
// Dispatch offers a message to that channel; Abort closes it, which the
// waiting session observes as a cancellation.
type messageWaiters struct {
	mu      sync.Mutex
	waiting map[waiterKey]chan *discordgo.Message
}

func newMessageWaiters() *messageWaiters {
	return &messageWaiters{waiting: map[waiterKey]chan *discordgo.Message{}}
}

// Register installs a waiter for the given key, returning the input
// channel and a remove function. Registering over an existing waiter
// aborts the old one.
func (w *messageWaiters) Register(key waiterKey) (<-chan *discordgo.Message, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.waiting[key]; ok {
		close(old)
	}
	ch := make(chan *discordgo.Message, 1)
	w.waiting[key] = ch
	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.waiting[key] == ch {
			delete(w.waiting, key)
		}
	}
}

// Dispatch offers a message to the waiter for its (channel, author)
// pair, if any. Non-blocking: if the waiter's buffer is full the
// message is dropped, since the session is still busy with the previous
// one. Returns whether a waiter existed.
func (w *messageWaiters) Dispatch(m *discordgo.Message) bool {
	if m.Author == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.waiting[waiterKey{ChannelID: m.ChannelID, UserID: m.Author.ID}]
	if !ok {
		return false
	}
	select {
	case ch <- m:
	default:
	}
	return true
}

// Abort closes the waiter for the given key, if any, which the waiting
// wizard session surfaces as [ErrWizardCanceled]. Returns whether a
// waiter existed.
func (w *messageWaiters) Abort(key waiterKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.waiting[key]
	if !ok {
		return false
	}
	close(ch)
	delete(w.waiting, key)
	return true
}
