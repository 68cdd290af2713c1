package blimp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// LoggingConfig designates a channel that receives a guild's audit
// trail of configuration changes made through the bot.
type LoggingConfig struct {
	ModelUnixTime
	GuildID    string `gorm:"primaryKey" json:"guild_id"`
	ChannelOID uint   `gorm:"not null" json:"channel_oid"`
}

// GuildLog posts configuration-change notices into each guild's
// designated log channel, when one is set. Posting is best-effort:
// a missing or dead log channel never fails the change itself.
type GuildLog struct {
	bot    *Bot
	db     DBI
	store  *ObjectStore
	logger *slog.Logger
}

func newGuildLog(bot *Bot) *GuildLog {
	return &GuildLog{
		bot:    bot,
		db:     bot.db,
		store:  bot.store,
		logger: bot.logger.With(loggerNameKey, "guild_log"),
	}
}

// SetChannel sets or replaces the guild's log channel.
func (g *GuildLog) SetChannel(ctx context.Context, guildID string, channelOID uint) error {
	_, err := g.db.Save(
		ctx, &LoggingConfig{GuildID: guildID, ChannelOID: channelOID},
	)
	return err
}

// Disable removes the guild's log channel.
func (g *GuildLog) Disable(ctx context.Context, guildID string) error {
	rowsAffected, err := g.db.Delete(ctx, &LoggingConfig{GuildID: guildID})
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return unableToComply(nil, "This guild doesn't have a log channel.")
	}
	return nil
}

// Post writes an audit notice into the guild's log channel, if one is
// configured.
func (g *GuildLog) Post(ctx context.Context, guildID string, actor *discordgo.User, text string) {
	var cfg LoggingConfig
	err := g.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Take(&cfg).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			g.logger.ErrorContext(ctx, "error loading logging config", tint.Err(err))
		}
		return
	}
	channel, ok := g.store.ByOID(ctx, cfg.ChannelOID)
	if !ok || channel.Kind != HandleTextChannel {
		g.logger.WarnContext(
			ctx, "log channel oid doesn't resolve",
			"guild_id", guildID, "channel_oid", cfg.ChannelOID,
		)
		return
	}
	embed := &discordgo.MessageEmbed{
		Color:       ColorIGuess,
		Description: text,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if actor != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    actor.Username,
			IconURL: actor.AvatarURL(""),
		}
	}
	if _, err = g.bot.session.ChannelMessageSendEmbed(
		channel.ChannelID, embed,
	); err != nil {
		g.logger.WarnContext(ctx, "error posting guild log", tint.Err(err))
	}
}
