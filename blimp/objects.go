package blimp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AliasMarker is the character every alias name starts with.
const AliasMarker = '\''

// HandleKind tags a Handle with the kind of Discord entity it refers to.
type HandleKind int

const (
	// HandleMessage refers to a message within a text channel.
	HandleMessage HandleKind = iota + 1
	// HandleTextChannel refers to a text channel.
	HandleTextChannel
	// HandleCategory refers to a channel category.
	HandleCategory
	// HandleGuild refers to a guild.
	HandleGuild
	// HandleUser refers to a user.
	HandleUser
)

func (k HandleKind) String() string {
	switch k {
	case HandleMessage:
		return "message"
	case HandleTextChannel:
		return "text channel"
	case HandleCategory:
		return "category"
	case HandleGuild:
		return "guild"
	case HandleUser:
		return "user"
	default:
		return fmt.Sprintf("HandleKind(%d)", int(k))
	}
}

// Handle is a tagged reference to exactly one Discord entity. Two
// handles are equal iff their canonical encodings (see [Handle.Encode])
// are byte-identical.
type Handle struct {
	Kind HandleKind

	// ChannelID is set for message, text channel, and category handles.
	ChannelID string
	// MessageID is set for message handles only.
	MessageID string
	// GuildID is set for guild handles only.
	GuildID string
	// UserID is set for user handles only.
	UserID string
}

// MessageHandle returns a Handle referring to a message.
func MessageHandle(channelID, messageID string) Handle {
	return Handle{Kind: HandleMessage, ChannelID: channelID, MessageID: messageID}
}

// TextChannelHandle returns a Handle referring to a text channel.
func TextChannelHandle(channelID string) Handle {
	return Handle{Kind: HandleTextChannel, ChannelID: channelID}
}

// CategoryHandle returns a Handle referring to a channel category.
func CategoryHandle(categoryID string) Handle {
	return Handle{Kind: HandleCategory, ChannelID: categoryID}
}

// GuildHandle returns a Handle referring to a guild.
func GuildHandle(guildID string) Handle {
	return Handle{Kind: HandleGuild, GuildID: guildID}
}

// UserHandle returns a Handle referring to a user.
func UserHandle(userID string) Handle {
	return Handle{Kind: HandleUser, UserID: userID}
}

// handleData is the stored form of a Handle. Exactly one field is set.
// The keys match the original schema, so an existing objects table
// remains readable.
type handleData struct {
	M  []string `json:"m,omitempty"`
	TC string   `json:"tc,omitempty"`
	CC string   `json:"cc,omitempty"`
	G  string   `json:"g,omitempty"`
	U  string   `json:"u,omitempty"`
}

// Encode returns the canonical serialized form of the Handle. The
// encoding is deterministic: a given handle always produces the same
// bytes, which is what the objects table dedups on.
func (h Handle) Encode() (string, error) {
	var data handleData
	switch h.Kind {
	case HandleMessage:
		data.M = []string{h.ChannelID, h.MessageID}
	case HandleTextChannel:
		data.TC = h.ChannelID
	case HandleCategory:
		data.CC = h.ChannelID
	case HandleGuild:
		data.G = h.GuildID
	case HandleUser:
		data.U = h.UserID
	default:
		return "", fmt.Errorf("cannot encode handle kind %s", h.Kind)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeHandle parses the canonical serialized form back into a Handle.
func DecodeHandle(s string) (Handle, error) {
	var data handleData
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return Handle{}, fmt.Errorf("malformed handle data %q: %w", s, err)
	}
	switch {
	case len(data.M) == 2:
		return MessageHandle(data.M[0], data.M[1]), nil
	case data.TC != "":
		return TextChannelHandle(data.TC), nil
	case data.CC != "":
		return CategoryHandle(data.CC), nil
	case data.G != "":
		return GuildHandle(data.G), nil
	case data.U != "":
		return UserHandle(data.U), nil
	default:
		return Handle{}, fmt.Errorf("handle data %q has no recognized tag", s)
	}
}

// Object is a deduplicated, stably-identified record of a Handle.
// Rows are append-only: the handle payload never changes, and rows are
// not garbage collected when the last referencing row goes away.
type Object struct {
	OID  uint   `gorm:"primaryKey;column:oid" json:"oid"`
	Data string `gorm:"uniqueIndex;not null" json:"data"`
}

// Alias binds a human-chosen short name to an Object, per guild.
type Alias struct {
	ModelUnixTime
	ID      uint   `gorm:"primaryKey" json:"id"`
	GuildID string `gorm:"uniqueIndex:idx_alias_guild_name;not null" json:"guild_id"`
	Alias   string `gorm:"uniqueIndex:idx_alias_guild_name;not null" json:"alias"`
	OID     uint   `gorm:"not null" json:"oid"`
}

func (a Alias) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", a.GuildID),
		slog.String("alias", a.Alias),
		slog.Uint64("oid", uint64(a.OID)),
	)
}

// ValidateAlias checks whether a string is allowed to be an alias name:
// at least two characters, a leading apostrophe, no whitespace.
func ValidateAlias(name string) error {
	if len(name) < 2 || name[0] != AliasMarker {
		return &InvalidAliasError{
			Alias:  name,
			Reason: "must be an apostrophe followed by at least one character",
		}
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return &InvalidAliasError{Alias: name, Reason: "contains whitespace"}
	}
	return nil
}

// ObjectStore provides deduplicated, stable identifiers for Discord
// entity handles, plus per-guild alias names for those identifiers.
// It is injected into command handlers and the wizard engine rather
// than living in a package-level global.
type ObjectStore struct {
	db     DBI
	logger *slog.Logger
}

// NewObjectStore initializes an ObjectStore on the given database.
func NewObjectStore(db DBI, log *slog.Logger) *ObjectStore {
	if log == nil {
		log = slog.Default()
	}
	return &ObjectStore{
		db:     db,
		logger: log.With(loggerNameKey, "objects"),
	}
}

// ByHandle returns the oid for an exact canonical match of the given
// handle, or false if no such object exists. Lookup misses are not
// errors.
func (o *ObjectStore) ByHandle(ctx context.Context, h Handle) (uint, bool) {
	data, err := h.Encode()
	if err != nil {
		o.logger.ErrorContext(ctx, "unencodable handle", tint.Err(err))
		return 0, false
	}
	var obj Object
	err = o.db.DB().WithContext(ctx).Where("data = ?", data).Take(&obj).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			o.logger.ErrorContext(ctx, "object lookup failed", tint.Err(err))
		}
		return 0, false
	}
	return obj.OID, true
}

// MakeObject returns the oid for the given handle, inserting a new
// object row if none exists. The insert uses ON CONFLICT DO NOTHING on
// the canonical data column, so concurrent calls with equal handles
// cannot create duplicates.
func (o *ObjectStore) MakeObject(ctx context.Context, h Handle) (uint, error) {
	data, err := h.Encode()
	if err != nil {
		return 0, err
	}

	o.db.Lock()
	defer o.db.Unlock()

	obj := Object{Data: data}
	rv := o.db.DB().WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "data"}},
			DoNothing: true,
		},
	).Create(&obj)
	if rv.Error != nil {
		return 0, fmt.Errorf("error creating object: %w", rv.Error)
	}
	if rv.RowsAffected > 0 && obj.OID != 0 {
		return obj.OID, nil
	}

	// Conflicted with an existing row; fetch its oid.
	var existing Object
	err = o.db.DB().WithContext(ctx).Where("data = ?", data).Take(&existing).Error
	if err != nil {
		return 0, fmt.Errorf("error fetching deduplicated object: %w", err)
	}
	return existing.OID, nil
}

// ByOID returns the handle stored under the given oid, or false if no
// such object exists.
func (o *ObjectStore) ByOID(ctx context.Context, oid uint) (Handle, bool) {
	var obj Object
	err := o.db.DB().WithContext(ctx).Where("oid = ?", oid).Take(&obj).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			o.logger.ErrorContext(ctx, "object lookup failed", tint.Err(err))
		}
		return Handle{}, false
	}
	h, err := DecodeHandle(obj.Data)
	if err != nil {
		o.logger.ErrorContext(ctx, "stored handle is malformed", tint.Err(err), "oid", oid)
		return Handle{}, false
	}
	return h, true
}

// ByAlias resolves a guild alias to its oid and handle, or false if the
// alias (or, pathologically, its object) doesn't exist.
func (o *ObjectStore) ByAlias(
	ctx context.Context,
	guildID string,
	name string,
) (uint, Handle, bool) {
	var alias Alias
	err := o.db.DB().WithContext(ctx).Where(
		"guild_id = ? AND alias = ?", guildID, name,
	).Take(&alias).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			o.logger.ErrorContext(ctx, "alias lookup failed", tint.Err(err))
		}
		return 0, Handle{}, false
	}
	h, ok := o.ByOID(ctx, alias.OID)
	if !ok {
		return 0, Handle{}, false
	}
	return alias.OID, h, true
}

// CreateAlias registers an alias name for an object in a guild. The
// duplicate check and insert run in one transaction, so two racing
// creates for the same name cannot both succeed. Returns an error
// wrapping [ErrAliasExists] on duplicates, or an [InvalidAliasError]
// if the name fails validation.
func (o *ObjectStore) CreateAlias(
	ctx context.Context,
	guildID string,
	name string,
	oid uint,
) error {
	if err := ValidateAlias(name); err != nil {
		return err
	}
	err := o.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&Alias{}).Where(
				"guild_id = ? AND alias = ?", guildID, name,
			).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return unableToComply(
					ErrAliasExists,
					"Alias %s is already registered.",
					name,
				)
			}
			return tx.Create(
				&Alias{GuildID: guildID, Alias: name, OID: oid},
			).Error
		},
	)
	if err == nil {
		o.logger.InfoContext(
			ctx, "created alias",
			"guild_id", guildID, "alias", name, "oid", oid,
		)
	}
	return err
}

// DeleteAlias removes an alias name from a guild, leaving the
// underlying object untouched. Returns an [InvalidAliasError] for
// malformed names, or an error wrapping [ErrAliasNotFound] if no such
// alias exists.
func (o *ObjectStore) DeleteAlias(
	ctx context.Context,
	guildID string,
	name string,
) error {
	if err := ValidateAlias(name); err != nil {
		return err
	}
	rowsAffected, err := o.db.Delete(
		ctx,
		&Alias{},
		"guild_id = ? AND alias = ?", guildID, name,
	)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return unableToComply(ErrAliasNotFound, "Alias %s doesn't exist.", name)
	}
	o.logger.InfoContext(ctx, "deleted alias", "guild_id", guildID, "alias", name)
	return nil
}

// ListAliases returns all aliases configured for a guild, in name order.
func (o *ObjectStore) ListAliases(ctx context.Context, guildID string) ([]Alias, error) {
	var aliases []Alias
	err := o.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Order("alias").Find(&aliases).Error
	return aliases, err
}

// ObjectCount returns the number of object rows. Used by the status API.
func (o *ObjectStore) ObjectCount(ctx context.Context) int64 {
	var count int64
	_ = o.db.DB().WithContext(ctx).Model(&Object{}).Count(&count).Error
	return count
}

// AliasCount returns the number of alias rows. Used by the status API.
func (o *ObjectStore) AliasCount(ctx context.Context) int64 {
	var count int64
	_ = o.db.DB().WithContext(ctx).Model(&Alias{}).Count(&count).Error
	return count
}
