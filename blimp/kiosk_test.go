package blimp

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKioskChannelID = "400000000000000060"
	testKioskMessageID = "200000000000000060"
)

func setupKiosk(t testing.TB, bot *Bot, pairs []RolePair) uint {
	t.Helper()
	ctx := context.Background()
	oid, err := bot.store.MakeObject(
		ctx, MessageHandle(testKioskChannelID, testKioskMessageID),
	)
	require.NoError(t, err)
	require.NoError(t, bot.kiosks.Update(ctx, testGuildID, oid, pairs))
	return oid
}

func kioskReaction(emoji discordgo.Emoji, userID string) *discordgo.MessageReaction {
	return &discordgo.MessageReaction{
		GuildID:   testGuildID,
		ChannelID: testKioskChannelID,
		MessageID: testKioskMessageID,
		UserID:    userID,
		Emoji:     emoji,
	}
}

func TestKioskGrantsAndRevokesRole(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	ctx := context.Background()
	role := &discordgo.Role{ID: "700000000000000001", Name: "Member"}
	setupKiosk(t, bot, []RolePair{{Emoji: "👍", Role: role}})

	bot.kiosks.HandleReactionAdd(
		ctx, &discordgo.MessageReactionAdd{
			MessageReaction: kioskReaction(
				discordgo.Emoji{Name: "👍"}, "500000000000000002",
			),
		},
	)
	assert.Equal(t, []string{"500000000000000002:700000000000000001"}, session.roleAdds)

	bot.kiosks.HandleReactionRemove(
		ctx, &discordgo.MessageReactionRemove{
			MessageReaction: kioskReaction(
				discordgo.Emoji{Name: "👍"}, "500000000000000002",
			),
		},
	)
	assert.Equal(t, []string{"500000000000000002:700000000000000001"}, session.roleRemoves)
}

func TestKioskIgnoresUnknownEmoji(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	role := &discordgo.Role{ID: "700000000000000001"}
	setupKiosk(t, bot, []RolePair{{Emoji: "👍", Role: role}})

	bot.kiosks.HandleReactionAdd(
		context.Background(), &discordgo.MessageReactionAdd{
			MessageReaction: kioskReaction(
				discordgo.Emoji{Name: "👎"}, "500000000000000002",
			),
		},
	)
	assert.Empty(t, session.roleAdds)
}

func TestKioskIgnoresBotOwnReactions(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	role := &discordgo.Role{ID: "700000000000000001"}
	setupKiosk(t, bot, []RolePair{{Emoji: "👍", Role: role}})

	bot.kiosks.HandleReactionAdd(
		context.Background(), &discordgo.MessageReactionAdd{
			MessageReaction: kioskReaction(
				discordgo.Emoji{Name: "👍"}, bot.session.BotUserID(),
			),
		},
	)
	assert.Empty(t, session.roleAdds)
}

func TestKioskCustomEmoji(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	role := &discordgo.Role{ID: "700000000000000002"}
	// Stored as the custom emoji's numeric ID.
	setupKiosk(t, bot, []RolePair{{Emoji: "800000000000000001", Role: role}})

	bot.kiosks.HandleReactionAdd(
		context.Background(), &discordgo.MessageReactionAdd{
			MessageReaction: kioskReaction(
				discordgo.Emoji{Name: "blob", ID: "800000000000000001"},
				"500000000000000002",
			),
		},
	)
	assert.Equal(t, []string{"500000000000000002:700000000000000002"}, session.roleAdds)
}

func TestKioskPairLimit(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)
	ctx := context.Background()

	tooMany := make([]RolePair, maxKioskPairs+1)
	for i := range tooMany {
		tooMany[i] = RolePair{
			Emoji: fmt.Sprintf("80000000000000%04d", i),
			Role:  &discordgo.Role{ID: fmt.Sprintf("70000000000000%04d", i)},
		}
	}
	oid, err := bot.store.MakeObject(
		ctx, MessageHandle(testKioskChannelID, testKioskMessageID),
	)
	require.NoError(t, err)

	var comply *UnableToComplyError
	err = bot.kiosks.Update(ctx, testGuildID, oid, tooMany)
	assert.ErrorAs(t, err, &comply)

	// Appending past the cap is rejected too, and leaves the existing
	// pairs intact.
	require.NoError(t, bot.kiosks.Update(ctx, testGuildID, oid, tooMany[:maxKioskPairs]))
	err = bot.kiosks.Append(
		ctx, testGuildID, oid,
		[]RolePair{{Emoji: "🆕", Role: &discordgo.Role{ID: "700000000000009999"}}},
	)
	assert.ErrorAs(t, err, &comply)

	entries, err := bot.kiosks.View(ctx, oid)
	require.NoError(t, err)
	assert.Len(t, entries, maxKioskPairs)
}

func TestKioskAppendKeepsExistingPairs(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)
	ctx := context.Background()
	oid := setupKiosk(
		t, bot,
		[]RolePair{{Emoji: "👍", Role: &discordgo.Role{ID: "700000000000000001"}}},
	)

	require.NoError(
		t, bot.kiosks.Append(
			ctx, testGuildID, oid,
			[]RolePair{{Emoji: "👎", Role: &discordgo.Role{ID: "700000000000000002"}}},
		),
	)

	entries, err := bot.kiosks.View(ctx, oid)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "👍", entries[0].Emoji)
	assert.Equal(t, "👎", entries[1].Emoji)
}

func TestKioskUpdateSeedsReactions(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	setupKiosk(
		t, bot,
		[]RolePair{
			{Emoji: "👍", Role: &discordgo.Role{ID: "700000000000000001"}},
			{Emoji: "800000000000000001", Role: &discordgo.Role{ID: "700000000000000002"}},
		},
	)

	assert.Equal(
		t, []string{
			testKioskChannelID + "/" + testKioskMessageID + "/👍",
			testKioskChannelID + "/" + testKioskMessageID + "/emoji:800000000000000001",
		},
		session.reactions,
	)
}

func TestKioskDelete(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)
	ctx := context.Background()
	oid := setupKiosk(
		t, bot,
		[]RolePair{{Emoji: "👍", Role: &discordgo.Role{ID: "700000000000000001"}}},
	)

	require.NoError(t, bot.kiosks.Delete(ctx, oid))
	_, err := bot.kiosks.View(ctx, oid)
	var comply *UnableToComplyError
	assert.ErrorAs(t, err, &comply)
}
