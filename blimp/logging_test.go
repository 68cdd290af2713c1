package blimp

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures log records for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) last(t testing.TB) slog.Record {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.records)
	return h.records[len(h.records)-1]
}

func TestDiscordgoLoggerFunc(t *testing.T) {
	t.Parallel()
	handler := &recordingHandler{}
	logFn := discordgoLoggerFunc(context.Background(), handler)

	logFn(discordgo.LogWarning, 0, "shard %d\nreconnecting", 3)
	record := handler.last(t)
	assert.Equal(t, slog.LevelWarn, record.Level)
	assert.Equal(t, "shard 3reconnecting", record.Message)

	logFn(discordgo.LogError, 0, "gateway closed")
	assert.Equal(t, slog.LevelError, handler.last(t).Level)

	// Unknown discordgo levels fall back to info.
	logFn(99, 0, "mystery")
	assert.Equal(t, slog.LevelInfo, handler.last(t).Level)
}

// The package-level discordgo logger must actually be wired up, so
// library logging reaches slog instead of vanishing.
func TestConfigureDiscordgoLogging(t *testing.T) {
	original := discordgo.Logger
	t.Cleanup(
		func() {
			discordgo.Logger = original
		},
	)

	handler := &recordingHandler{}
	configureDiscordgoLogging(context.Background(), handler)
	require.NotNil(t, discordgo.Logger)

	discordgo.Logger(discordgo.LogError, 2, "gateway %s", "boom")
	record := handler.last(t)
	assert.Equal(t, slog.LevelError, record.Level)
	assert.Equal(t, "gateway boom", record.Message)
}
