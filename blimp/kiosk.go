package blimp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// maxKioskPairs caps how many emoji/role pairs one kiosk message can
// carry. Discord stops rendering reactions past twenty anyway.
const maxKioskPairs = 20

// KioskEntry is one emoji/role pair on a kiosk message: reacting with
// the emoji grants the role, un-reacting revokes it.
type KioskEntry struct {
	ModelUnixTime
	ID         uint   `gorm:"primaryKey" json:"id"`
	GuildID    string `gorm:"not null" json:"guild_id"`
	MessageOID uint   `gorm:"column:message_oid;uniqueIndex:idx_kiosk_message_emoji;not null" json:"message_oid"`

	// Emoji is a normalized emoji token (unicode emoji or custom emoji ID).
	Emoji  string `gorm:"uniqueIndex:idx_kiosk_message_emoji;not null" json:"emoji"`
	RoleID string `gorm:"not null" json:"role_id"`
}

func (k KioskEntry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", k.GuildID),
		slog.Uint64("message_oid", uint64(k.MessageOID)),
		slog.String("emoji", k.Emoji),
		slog.String("role_id", k.RoleID),
	)
}

// RolePair is one emoji-to-role binding being added to a kiosk.
type RolePair struct {
	Emoji string
	Role  *discordgo.Role
}

// Kiosks manages self-assignable roles via reactions on designated
// messages.
type Kiosks struct {
	bot    *Bot
	db     DBI
	store  *ObjectStore
	logger *slog.Logger
}

func newKiosks(bot *Bot) *Kiosks {
	return &Kiosks{
		bot:    bot,
		db:     bot.db,
		store:  bot.store,
		logger: bot.logger.With(loggerNameKey, "kiosk"),
	}
}

// Update replaces a kiosk's pairs wholesale.
func (f *Kiosks) Update(
	ctx context.Context,
	guildID string,
	messageOID uint,
	pairs []RolePair,
) error {
	if len(pairs) == 0 {
		return unableToComply(nil, "A kiosk needs at least one emoji-role pair.")
	}
	if len(pairs) > maxKioskPairs {
		return unableToComply(
			nil,
			"A kiosk can have at most %d emoji-role pairs.",
			maxKioskPairs,
		)
	}
	err := f.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			if err := tx.Where(
				"message_oid = ?", messageOID,
			).Delete(&KioskEntry{}).Error; err != nil {
				return err
			}
			return f.insertPairs(tx, guildID, messageOID, pairs)
		},
	)
	if err != nil {
		return err
	}
	f.seedReactions(ctx, messageOID, pairs)
	f.logger.InfoContext(
		ctx, "kiosk updated",
		"guild_id", guildID, "message_oid", messageOID, "pairs", len(pairs),
	)
	return nil
}

// Append adds pairs to an existing kiosk without disturbing the ones
// already there. The cap applies to the combined total.
func (f *Kiosks) Append(
	ctx context.Context,
	guildID string,
	messageOID uint,
	pairs []RolePair,
) error {
	if len(pairs) == 0 {
		return unableToComply(nil, "Nothing to append.")
	}
	err := f.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&KioskEntry{}).Where(
				"message_oid = ?", messageOID,
			).Count(&count).Error; err != nil {
				return err
			}
			if int(count)+len(pairs) > maxKioskPairs {
				return unableToComply(
					nil,
					"That would put the kiosk over the limit of %d emoji-role pairs.",
					maxKioskPairs,
				)
			}
			return f.insertPairs(tx, guildID, messageOID, pairs)
		},
	)
	if err != nil {
		return err
	}
	f.seedReactions(ctx, messageOID, pairs)
	return nil
}

func (f *Kiosks) insertPairs(
	tx *gorm.DB,
	guildID string,
	messageOID uint,
	pairs []RolePair,
) error {
	for _, pair := range pairs {
		entry := KioskEntry{
			GuildID:    guildID,
			MessageOID: messageOID,
			Emoji:      pair.Emoji,
			RoleID:     pair.Role.ID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("error creating kiosk entry: %w", err)
		}
	}
	return nil
}

// seedReactions has the bot react with each kiosk emoji so members have
// something to click. Best-effort.
func (f *Kiosks) seedReactions(ctx context.Context, messageOID uint, pairs []RolePair) {
	h, ok := f.store.ByOID(ctx, messageOID)
	if !ok || h.Kind != HandleMessage {
		return
	}
	for _, pair := range pairs {
		if err := f.bot.session.MessageReactionAdd(
			h.ChannelID, h.MessageID, reactionEmoji(pair.Emoji),
		); err != nil {
			f.logger.WarnContext(
				ctx, "error seeding kiosk reaction",
				"emoji", pair.Emoji, tint.Err(err),
			)
		}
	}
}

// reactionEmoji converts a stored emoji token into the `name:id` form
// the reaction endpoints want for custom emoji.
func reactionEmoji(stored string) string {
	if snowflakePattern.MatchString(stored) {
		return "emoji:" + stored
	}
	return stored
}

// View describes a kiosk's pairs for display.
func (f *Kiosks) View(ctx context.Context, messageOID uint) ([]KioskEntry, error) {
	var entries []KioskEntry
	err := f.db.DB().WithContext(ctx).Where(
		"message_oid = ?", messageOID,
	).Order("id").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, unableToComply(nil, "That message isn't a kiosk.")
	}
	return entries, nil
}

// Delete removes a kiosk entirely.
func (f *Kiosks) Delete(ctx context.Context, messageOID uint) error {
	rowsAffected, err := f.db.Delete(
		ctx, &KioskEntry{}, "message_oid = ?", messageOID,
	)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return unableToComply(nil, "That message isn't a kiosk.")
	}
	return nil
}

func (f *Kiosks) entryFor(
	ctx context.Context,
	r *discordgo.MessageReaction,
) (KioskEntry, bool) {
	oid, ok := f.store.ByHandle(ctx, MessageHandle(r.ChannelID, r.MessageID))
	if !ok {
		return KioskEntry{}, false
	}
	emoji := r.Emoji.Name
	if r.Emoji.ID != "" {
		emoji = r.Emoji.ID
	}
	var entry KioskEntry
	err := f.db.DB().WithContext(ctx).Where(
		"message_oid = ? AND emoji = ?", oid, emoji,
	).Take(&entry).Error
	if err != nil {
		return KioskEntry{}, false
	}
	return entry, true
}

// HandleReactionAdd grants the paired role when a member reacts on a
// kiosk message.
func (f *Kiosks) HandleReactionAdd(ctx context.Context, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" || r.UserID == f.bot.session.BotUserID() {
		return
	}
	entry, ok := f.entryFor(ctx, r.MessageReaction)
	if !ok {
		return
	}
	if err := f.bot.session.GuildMemberRoleAdd(
		r.GuildID, r.UserID, entry.RoleID,
	); err != nil {
		f.logger.WarnContext(
			ctx, "error granting kiosk role",
			"role_id", entry.RoleID, "user_id", r.UserID, tint.Err(err),
		)
	}
}

// HandleReactionRemove revokes the paired role when a member removes
// their reaction from a kiosk message.
func (f *Kiosks) HandleReactionRemove(
	ctx context.Context,
	r *discordgo.MessageReactionRemove,
) {
	if r.GuildID == "" || r.UserID == f.bot.session.BotUserID() {
		return
	}
	entry, ok := f.entryFor(ctx, r.MessageReaction)
	if !ok {
		return
	}
	if err := f.bot.session.GuildMemberRoleRemove(
		r.GuildID, r.UserID, entry.RoleID,
	); err != nil {
		f.logger.WarnContext(
			ctx, "error revoking kiosk role",
			"role_id", entry.RoleID, "user_id", r.UserID, tint.Err(err),
		)
	}
}

// DescribeEntries renders kiosk pairs as display lines.
func DescribeEntries(entries []KioskEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s → <@&%s>\n", displayEmoji(e.Emoji), e.RoleID)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
