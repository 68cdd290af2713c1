package blimp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// BoardConfig configures one repost board in a guild: messages in the
// guild that collect enough matching reactions get reposted into the
// board channel. The board channel is referenced by oid so aliases and
// stored configuration share one identity.
type BoardConfig struct {
	ModelUnixTime
	ID         uint   `gorm:"primaryKey" json:"id"`
	GuildID    string `gorm:"uniqueIndex:idx_board_guild_channel;not null" json:"guild_id"`
	ChannelOID uint   `gorm:"column:channel_oid;uniqueIndex:idx_board_guild_channel;not null" json:"channel_oid"`

	// Emoji is a normalized emoji token (unicode emoji, custom emoji ID,
	// or the literal "any").
	Emoji string `gorm:"not null" json:"emoji"`

	// MinReacts is how many matching reactions a message needs before it
	// is reposted.
	MinReacts int `gorm:"not null" json:"min_reacts"`

	// PostAgeLimit, when non-zero, is a Unix millisecond cutoff: messages
	// created before it are never reposted. Set from the configuring
	// command's timestamp so enabling a board doesn't flood it with old
	// messages.
	PostAgeLimit int64 `json:"post_age_limit,omitempty"`
}

func (b BoardConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", b.GuildID),
		slog.Uint64("channel_oid", uint64(b.ChannelOID)),
		slog.String("emoji", b.Emoji),
		slog.Int("min_reacts", b.MinReacts),
		slog.Int64("post_age_limit", b.PostAgeLimit),
	)
}

// BoardEntry records that a message has been reposted to a board, so it
// is never reposted twice.
type BoardEntry struct {
	ModelUnixTime
	ID         uint `gorm:"primaryKey" json:"id"`
	ChannelOID uint `gorm:"column:channel_oid;uniqueIndex:idx_board_entry;not null" json:"channel_oid"`
	MessageOID uint `gorm:"column:message_oid;uniqueIndex:idx_board_entry;not null" json:"message_oid"`
}

// Boards reposts well-reacted messages into configured board channels.
type Boards struct {
	bot    *Bot
	db     DBI
	store  *ObjectStore
	logger *slog.Logger

	// repostMu is held across the entry find-or-create AND the repost
	// send. Reaction events for the same message arrive concurrently,
	// and the entry row is only written after the repost succeeds, so
	// without the lock two events could both see "no entry yet".
	repostMu sync.Mutex

	// cacheMu guards cache, a per-guild snapshot of board configs. The
	// cache is invalidated on local writes and on cross-instance change
	// notifications.
	cacheMu sync.RWMutex
	cache   map[string][]BoardConfig
}

func newBoards(bot *Bot) *Boards {
	return &Boards{
		bot:    bot,
		db:     bot.db,
		store:  bot.store,
		logger: bot.logger.With(loggerNameKey, "board"),
		cache:  map[string][]BoardConfig{},
	}
}

// InvalidateCache drops all cached board configs. Called on local
// writes and on change notifications from other instances.
func (f *Boards) InvalidateCache() {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	f.cache = map[string][]BoardConfig{}
}

func (f *Boards) guildConfigs(ctx context.Context, guildID string) []BoardConfig {
	f.cacheMu.RLock()
	configs, ok := f.cache[guildID]
	f.cacheMu.RUnlock()
	if ok {
		return configs
	}

	err := f.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Find(&configs).Error
	if err != nil {
		f.logger.ErrorContext(ctx, "error loading board configs", tint.Err(err))
		return nil
	}
	f.cacheMu.Lock()
	f.cache[guildID] = configs
	f.cacheMu.Unlock()
	return configs
}

// Update creates or replaces the board configuration for a channel.
func (f *Boards) Update(
	ctx context.Context,
	guildID string,
	channelOID uint,
	emoji string,
	minReacts int,
	postAgeLimit int64,
) error {
	if minReacts < 1 {
		return unableToComply(nil, "A board needs at least one reaction.")
	}
	err := f.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var existing BoardConfig
			err := tx.Where(
				"guild_id = ? AND channel_oid = ?", guildID, channelOID,
			).Take(&existing).Error
			switch {
			case err == nil:
				existing.Emoji = emoji
				existing.MinReacts = minReacts
				existing.PostAgeLimit = postAgeLimit
				return tx.Save(&existing).Error
			case errors.Is(err, gorm.ErrRecordNotFound):
				return tx.Create(
					&BoardConfig{
						GuildID:      guildID,
						ChannelOID:   channelOID,
						Emoji:        emoji,
						MinReacts:    minReacts,
						PostAgeLimit: postAgeLimit,
					},
				).Error
			default:
				return err
			}
		},
	)
	if err != nil {
		return fmt.Errorf("error updating board config: %w", err)
	}
	f.InvalidateCache()
	f.bot.notifyChanged(ctx, notifyBoardChanged)
	f.logger.InfoContext(
		ctx, "board updated",
		"guild_id", guildID,
		"channel_oid", channelOID,
		"emoji", emoji,
		"min_reacts", minReacts,
		"post_age_limit", postAgeLimit,
	)
	return nil
}

// Disable removes the board configuration for a channel. Existing
// entries are kept so re-enabling doesn't repost old messages.
func (f *Boards) Disable(ctx context.Context, guildID string, channelOID uint) error {
	rowsAffected, err := f.db.Delete(
		ctx,
		&BoardConfig{},
		"guild_id = ? AND channel_oid = ?", guildID, channelOID,
	)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return unableToComply(nil, "That channel doesn't have a board.")
	}
	f.InvalidateCache()
	f.bot.notifyChanged(ctx, notifyBoardChanged)
	return nil
}

// emojiMatches reports whether a gateway reaction emoji matches a
// stored board emoji token.
func emojiMatches(stored string, emoji discordgo.Emoji) bool {
	if stored == "any" {
		return true
	}
	if emoji.ID != "" {
		return stored == emoji.ID
	}
	return stored == emoji.Name
}

// reactionCount returns how many reactions of the triggering emoji a
// message has accumulated.
func reactionCount(msg *discordgo.Message, emoji discordgo.Emoji) int {
	for _, r := range msg.Reactions {
		if r.Emoji == nil {
			continue
		}
		if emoji.ID != "" {
			if r.Emoji.ID == emoji.ID {
				return r.Count
			}
		} else if r.Emoji.Name == emoji.Name {
			return r.Count
		}
	}
	return 0
}

// HandleReactionAdd reposts the reacted-to message to any board whose
// emoji and threshold it now satisfies.
func (f *Boards) HandleReactionAdd(ctx context.Context, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" {
		return
	}
	configs := f.guildConfigs(ctx, r.GuildID)
	if len(configs) == 0 {
		return
	}

	var msg *discordgo.Message
	for _, cfg := range configs {
		if !emojiMatches(cfg.Emoji, r.Emoji) {
			continue
		}
		if cfg.PostAgeLimit > 0 {
			created, err := discordgo.SnowflakeTimestamp(r.MessageID)
			if err != nil || created.UnixMilli() < cfg.PostAgeLimit {
				continue
			}
		}
		if msg == nil {
			var err error
			msg, err = f.bot.session.ChannelMessage(r.ChannelID, r.MessageID)
			if err != nil {
				f.logger.WarnContext(
					ctx, "error fetching reacted message", tint.Err(err),
				)
				return
			}
		}
		if reactionCount(msg, r.Emoji) < cfg.MinReacts {
			continue
		}
		if err := f.repost(ctx, cfg, msg); err != nil {
			f.logger.ErrorContext(ctx, "error reposting to board", tint.Err(err))
		}
	}
}

// repost puts msg on the board if it isn't there yet. The lock spans
// the existence check, the send, and the entry insert.
func (f *Boards) repost(ctx context.Context, cfg BoardConfig, msg *discordgo.Message) error {
	messageOID, err := f.store.MakeObject(ctx, MessageHandle(msg.ChannelID, msg.ID))
	if err != nil {
		return err
	}

	f.repostMu.Lock()
	defer f.repostMu.Unlock()

	var entry BoardEntry
	err = f.db.DB().WithContext(ctx).Where(
		"channel_oid = ? AND message_oid = ?", cfg.ChannelOID, messageOID,
	).Take(&entry).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	boardChannel, ok := f.store.ByOID(ctx, cfg.ChannelOID)
	if !ok || boardChannel.Kind != HandleTextChannel {
		return fmt.Errorf("board channel oid %d doesn't resolve", cfg.ChannelOID)
	}

	if _, err = f.bot.session.ChannelMessageSendEmbed(
		boardChannel.ChannelID, boardEmbed(msg),
	); err != nil {
		return fmt.Errorf("error sending board repost: %w", err)
	}

	if _, err = f.db.Create(
		ctx,
		&BoardEntry{ChannelOID: cfg.ChannelOID, MessageOID: messageOID},
	); err != nil {
		return fmt.Errorf("error recording board entry: %w", err)
	}
	return nil
}

func boardEmbed(msg *discordgo.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:       ColorAutomaticBlue,
		Description: msg.Content,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Message",
				Value: fmt.Sprintf(
					"[Jump](https://discord.com/channels/%s/%s/%s)",
					msg.GuildID, msg.ChannelID, msg.ID,
				),
				Inline: true,
			},
		},
	}
	if msg.Author != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    msg.Author.Username,
			IconURL: msg.Author.AvatarURL(""),
		}
	}
	for _, att := range msg.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			embed.Image = &discordgo.MessageEmbedImage{URL: att.URL}
			break
		}
	}
	return embed
}
