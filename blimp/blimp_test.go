package blimp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"
)

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     slog.LevelDebug,
				AddSource: true,
			},
		),
	).With("test_name", t.Name())
}

func setupTestDB(t testing.TB) *Database {
	t.Helper()
	tmpdir := t.TempDir()
	dbPath := filepath.Join(tmpdir, "test.sqlite3")
	db, err := CreateDB(context.Background(), dbTypeSQLite, dbPath, nil, 0)
	if err != nil {
		t.Fatalf("error creating test database: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return NewDatabase(db, testLogger(t), false)
}

// mockSession is a mock implementation of SessionHandler that records
// outgoing traffic instead of talking to Discord.
type mockSession struct {
	mu sync.Mutex

	logger *slog.Logger
	nextID int

	// canned state
	channels    map[string]*discordgo.Channel
	messages    map[string]*discordgo.Message
	roles       []*discordgo.Role
	members     map[string]*discordgo.Member
	permissions int64

	// recorded traffic
	sent         []*discordgo.Message
	embeds       map[string]*discordgo.MessageEmbed
	deleted      []string
	roleAdds     []string
	roleRemoves  []string
	reactions    []string
	customStatus string
}

func newMockSession(t testing.TB) *mockSession {
	return &mockSession{
		logger:      testLogger(t).With(loggerNameKey, "mock_session"),
		channels:    map[string]*discordgo.Channel{},
		messages:    map[string]*discordgo.Message{},
		members:     map[string]*discordgo.Member{},
		embeds:      map[string]*discordgo.MessageEmbed{},
		permissions: discordgo.PermissionAdministrator,
	}
}

func (m *mockSession) newMessageID() string {
	m.nextID++
	return fmt.Sprintf("90000000000000%04d", m.nextID)
}

func (m *mockSession) Open() error  { return nil }
func (m *mockSession) Close() error { return nil }

func (m *mockSession) AddHandler(_ any) func() {
	return func() {}
}

func (m *mockSession) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &discordgo.Message{
		ID:        m.newMessageID(),
		ChannelID: channelID,
		Content:   content,
	}
	m.sent = append(m.sent, msg)
	return msg, nil
}

func (m *mockSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &discordgo.Message{
		ID:        m.newMessageID(),
		ChannelID: channelID,
		Embeds:    []*discordgo.MessageEmbed{embed},
	}
	m.sent = append(m.sent, msg)
	m.embeds[msg.ID] = embed
	return msg, nil
}

func (m *mockSession) ChannelMessageEditEmbed(
	channelID string,
	messageID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeds[messageID] = embed
	return &discordgo.Message{
		ID:        messageID,
		ChannelID: channelID,
		Embeds:    []*discordgo.MessageEmbed{embed},
	}, nil
}

func (m *mockSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, channelID+"/"+messageID)
	return nil
}

func (m *mockSession) ChannelMessage(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[channelID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("no such message %s/%s", channelID, messageID)
	}
	return msg, nil
}

func (m *mockSession) Channel(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("no such channel %s", channelID)
	}
	return ch, nil
}

func (m *mockSession) GuildChannels(
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := make([]*discordgo.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	return channels, nil
}

func (m *mockSession) GuildRoles(
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return m.roles, nil
}

func (m *mockSession) GuildMember(
	_ string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[userID]
	if !ok {
		return nil, fmt.Errorf("no such member %s", userID)
	}
	return member, nil
}

func (m *mockSession) GuildMemberRoleAdd(
	_ string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleAdds = append(m.roleAdds, userID+":"+roleID)
	return nil
}

func (m *mockSession) GuildMemberRoleRemove(
	_ string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleRemoves = append(m.roleRemoves, userID+":"+roleID)
	return nil
}

func (m *mockSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, channelID+"/"+messageID+"/"+emojiID)
	return nil
}

func (m *mockSession) MessageReactionRemove(
	_ string,
	_ string,
	_ string,
	_ string,
	_ ...discordgo.RequestOption,
) error {
	return nil
}

func (m *mockSession) UserChannelPermissions(
	_ string,
	_ string,
	_ ...discordgo.RequestOption,
) (int64, error) {
	return m.permissions, nil
}

func (m *mockSession) UpdateCustomStatus(status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customStatus = status
	return nil
}

func (m *mockSession) BotUserID() string { return "100000000000000001" }

func (m *mockSession) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSession) lastSent() *discordgo.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockSession) embedFor(messageID string) *discordgo.MessageEmbed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embeds[messageID]
}

// newTestBot wires a Bot against a temp database and a mock session,
// skipping the gateway connection.
func newTestBot(t testing.TB) (*Bot, *mockSession) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Discord.Token = "test-token"

	bot, err := New(cfg)
	require.NoError(t, err)

	session := newMockSession(t)
	bot.session = session
	bot.logger = testLogger(t)
	bot.db = setupTestDB(t)
	bot.store = NewObjectStore(bot.db, bot.logger)
	bot.notifier = noopNotifier{}
	bot.boards = newBoards(bot)
	bot.kiosks = newKiosks(bot)
	bot.guildLog = newGuildLog(bot)
	bot.welcome = newWelcome(bot)
	return bot, session
}

// newTestContext builds a command Context for a message the test
// pretends a user sent.
func newTestContext(t testing.TB, bot *Bot, content string) *Context {
	t.Helper()
	return &Context{
		bot:     bot,
		session: bot.session,
		logger:  testLogger(t),
		message: &discordgo.Message{
			ID:        "200000000000000001",
			GuildID:   "300000000000000001",
			ChannelID: "400000000000000001",
			Content:   content,
			Author: &discordgo.User{
				ID:       "500000000000000001",
				Username: "tester",
			},
		},
	}
}
