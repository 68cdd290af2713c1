package blimp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// WelcomeConfig configures greeting and farewell messages posted when
// members join or leave a guild. Either message may be empty, which
// disables that half.
type WelcomeConfig struct {
	ModelUnixTime
	GuildID    string `gorm:"primaryKey" json:"guild_id"`
	ChannelOID uint   `gorm:"not null" json:"channel_oid"`

	// Greeting and Farewell support a `$user` placeholder, replaced with
	// a mention of the member in question.
	Greeting string `json:"greeting"`
	Farewell string `json:"farewell"`
}

// Welcome posts configured greetings and farewells for member joins
// and leaves.
type Welcome struct {
	bot    *Bot
	db     DBI
	store  *ObjectStore
	logger *slog.Logger
}

func newWelcome(bot *Bot) *Welcome {
	return &Welcome{
		bot:    bot,
		db:     bot.db,
		store:  bot.store,
		logger: bot.logger.With(loggerNameKey, "welcome"),
	}
}

// Update sets or replaces the guild's welcome configuration.
func (w *Welcome) Update(ctx context.Context, cfg WelcomeConfig) error {
	if cfg.Greeting == "" && cfg.Farewell == "" {
		return unableToComply(
			nil, "At least one of the greeting and farewell must be set.",
		)
	}
	_, err := w.db.Save(ctx, &cfg)
	return err
}

// Disable removes the guild's welcome configuration.
func (w *Welcome) Disable(ctx context.Context, guildID string) error {
	rowsAffected, err := w.db.Delete(ctx, &WelcomeConfig{GuildID: guildID})
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return unableToComply(nil, "This guild doesn't have welcome messages.")
	}
	return nil
}

func (w *Welcome) config(ctx context.Context, guildID string) (WelcomeConfig, bool) {
	var cfg WelcomeConfig
	err := w.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Take(&cfg).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			w.logger.ErrorContext(ctx, "error loading welcome config", tint.Err(err))
		}
		return cfg, false
	}
	return cfg, true
}

func (w *Welcome) post(ctx context.Context, cfg WelcomeConfig, text string, user *discordgo.User) {
	if text == "" || user == nil {
		return
	}
	channel, ok := w.store.ByOID(ctx, cfg.ChannelOID)
	if !ok || channel.Kind != HandleTextChannel {
		w.logger.WarnContext(
			ctx, "welcome channel oid doesn't resolve",
			"guild_id", cfg.GuildID, "channel_oid", cfg.ChannelOID,
		)
		return
	}
	text = strings.ReplaceAll(text, "$user", "<@"+user.ID+">")
	if _, err := w.bot.session.ChannelMessageSend(channel.ChannelID, text); err != nil {
		w.logger.WarnContext(ctx, "error posting welcome message", tint.Err(err))
	}
}

// HandleMemberAdd posts the guild's greeting, if configured.
func (w *Welcome) HandleMemberAdd(ctx context.Context, m *discordgo.GuildMemberAdd) {
	cfg, ok := w.config(ctx, m.GuildID)
	if !ok {
		return
	}
	w.post(ctx, cfg, cfg.Greeting, m.User)
}

// HandleMemberRemove posts the guild's farewell, if configured.
func (w *Welcome) HandleMemberRemove(ctx context.Context, m *discordgo.GuildMemberRemove) {
	cfg, ok := w.config(ctx, m.GuildID)
	if !ok {
		return
	}
	w.post(ctx, cfg, cfg.Farewell, m.User)
}
