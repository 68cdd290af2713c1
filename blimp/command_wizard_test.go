package blimp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Drives the board wizard end to end: channel, emoji, threshold, age
// limit, confirmation, cleanup. The configuration must land through the
// same path as the direct command, with no command text re-parsed.
func TestWizardBoardEndToEnd(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	session.channels[testBoardChannelID] = &discordgo.Channel{
		ID:      testBoardChannelID,
		GuildID: testGuildID,
		Name:    "board",
		Type:    discordgo.ChannelTypeGuildText,
	}

	c := newTestContext(t, bot, "wizard! board")
	done := make(chan error, 1)
	go func() {
		done <- bot.commandWizard(context.Background(), c, []string{"board"})
	}()

	// The progress message is the first thing the wizard sends.
	var progressID string
	require.Eventually(
		t, func() bool {
			if session.sentCount() == 0 {
				return false
			}
			session.mu.Lock()
			progressID = session.sent[0].ID
			session.mu.Unlock()
			return true
		},
		10*time.Second,
		10*time.Millisecond,
	)

	completedStages := func() int {
		embed := session.embedFor(progressID)
		if embed == nil {
			return 0
		}
		n := 0
		for _, f := range embed.Fields {
			if strings.HasPrefix(f.Name, "✅") {
				n++
			}
		}
		return n
	}

	// Offer each stage's input only while that stage is still pending,
	// so a retried send can't leak into the next stage.
	feed := func(content string, stage int) {
		t.Helper()
		require.Eventually(
			t, func() bool {
				if completedStages() > stage {
					return true
				}
				bot.waiters.Dispatch(userMessage(c, content))
				return false
			},
			10*time.Second,
			10*time.Millisecond,
		)
	}

	feed("<#"+testBoardChannelID+">", 0) // channel stage
	feed("⭐", 1)                         // emoji stage
	feed("2", 2)                         // threshold stage
	feed("yes", 3)                       // old messages allowed
	feed("yes", 4)                       // confirm
	feed("no", 5)                        // decline cleanup

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("wizard didn't finish")
	}

	configs := bot.boards.guildConfigs(context.Background(), testGuildID)
	require.Len(t, configs, 1)
	assert.Equal(t, "⭐", configs[0].Emoji)
	assert.Equal(t, 2, configs[0].MinReacts)
	assert.Zero(t, configs[0].PostAgeLimit)
}

func TestWizardCanceledByUser(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)

	c := newTestContext(t, bot, "wizard! board")
	done := make(chan error, 1)
	go func() {
		done <- bot.commandWizard(context.Background(), c, []string{"board"})
	}()

	require.Eventually(
		t, func() bool {
			return bot.waiters.Dispatch(userMessage(c, "cancel!"))
		},
		10*time.Second,
		10*time.Millisecond,
	)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrWizardCanceled)
	case <-time.After(30 * time.Second):
		t.Fatal("wizard didn't finish")
	}

	assert.Empty(t, bot.boards.guildConfigs(context.Background(), testGuildID))

	// The command layer stays silent about cancellations; the wizard
	// embed is the whole story.
	sentBefore := session.sentCount()
	bot.replyError(c, ErrWizardCanceled)
	assert.Equal(t, sentBefore, session.sentCount())
}

func TestWizardCancelCommand(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)

	c := newTestContext(t, bot, "wizard! board")
	done := make(chan error, 1)
	go func() {
		done <- bot.commandWizard(context.Background(), c, []string{"board"})
	}()

	// Wait for the session to start listening, then force-cancel it as
	// a moderator would.
	moderator := newTestContext(t, bot, "wizard! cancel <@500000000000000001>")
	moderator.message.Author = &discordgo.User{ID: "500000000000000099", Username: "mod"}
	require.Eventually(
		t, func() bool {
			return bot.commandWizard(
				context.Background(), moderator,
				[]string{"cancel", "<@500000000000000001>"},
			) == nil
		},
		10*time.Second,
		10*time.Millisecond,
	)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrWizardCanceled)
	case <-time.After(30 * time.Second):
		t.Fatal("wizard didn't finish")
	}
}

func TestWizardCancelWithNothingRunning(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)
	c := newTestContext(t, bot, "wizard! cancel")
	err := bot.commandWizard(context.Background(), c, []string{"cancel"})
	var comply *UnableToComplyError
	assert.ErrorAs(t, err, &comply)
}
