package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/The-Valley-Discord/blimp/blimp"
	"github.com/bwmarrin/discordgo"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Save the original environment
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)

	// Clear the environment before the test
	os.Clearenv()

	tmpdir := t.TempDir()

	// Set up the test environment file
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General/database config

BLIMP_DATABASE=/home/foo/blimp.sqlite3
BLIMP_DATABASE_TYPE=sqlite
BLIMP_DATABASE_LOG_LEVEL=INFO
BLIMP_DATABASE_SLOW_THRESHOLD=200ms
BLIMP_LOG_LEVEL=INFO
BLIMP_STARTUP_TIMEOUT=30s
BLIMP_SHUTDOWN_TIMEOUT=60s

# Discord bot config

BLIMP_DISCORD_TOKEN=your-discord-bot-token
BLIMP_DISCORD_SUFFIX=!
BLIMP_DISCORD_CUSTOM_STATUS="watching from far above"
BLIMP_DISCORD_LOG_LEVEL=WARN
BLIMP_DISCORD_DISCORDGO_LOG_LEVEL=WARN
BLIMP_DISCORD_GATEWAY_INTENTS=3243773

# Wizard engine

BLIMP_WIZARD_INPUT_TIMEOUT=5m

# Status API server

BLIMP_API_ENABLED=true
BLIMP_API_LISTEN=127.0.0.1:5000
BLIMP_API_LOG_LEVEL=DEBUG
BLIMP_API_CORS_ALLOW_ORIGINS=https://127.0.0.1:5000 https://localhost:5000
BLIMP_API_CORS_ALLOW_METHODS=GET HEAD OPTIONS
BLIMP_API_CORS_ALLOW_HEADERS=Origin Content-Type Accept
BLIMP_API_CORS_MAX_AGE=12h
BLIMP_API_READ_TIMEOUT=5s
BLIMP_API_READ_HEADER_TIMEOUT=5s
BLIMP_API_WRITE_TIMEOUT=10s
BLIMP_API_IDLE_TIMEOUT=30s
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	assert.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "/home/foo/blimp.sqlite3", cfg.Database)
	assert.Equal(t, "/home/foo/blimp.sqlite3", viper.GetString("database"))
	assert.Equal(t, "sqlite", viper.GetString("database_type"))

	assertLogLevel(t, slog.LevelInfo, viper.Get("database_log_level"))

	assert.Equal(t, 200*time.Millisecond, viper.GetDuration("database_slow_threshold"))
	assertLogLevel(t, slog.LevelInfo, viper.Get("log_level"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("startup_timeout"))
	assert.Equal(t, 60*time.Second, viper.GetDuration("shutdown_timeout"))

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assert.Equal(t, "!", viper.GetString("discord.suffix"))
	assert.Equal(t, "watching from far above", viper.GetString("discord.custom_status"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.log_level"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.discordgo_log_level"))
	assert.Equal(t, 3243773, viper.GetInt("discord.gateway_intents"))

	assert.Equal(t, 5*time.Minute, viper.GetDuration("wizard.input_timeout"))

	assert.True(t, viper.GetBool("api.enabled"))
	assert.Equal(t, "127.0.0.1:5000", viper.GetString("api.listen"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("api.log_level"))
	assert.Equal(t, slog.LevelDebug, cfg.API.LogLevel.Level())
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5000", "https://localhost:5000"},
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	assert.Equal(
		t,
		[]string{"GET", "HEAD", "OPTIONS"},
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	assert.Equal(
		t,
		[]string{"GET", "HEAD", "OPTIONS"},
		cfg.API.CORS.AllowMethods,
	)
	assert.Equal(
		t,
		[]string{"Origin", "Content-Type", "Accept"},
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	assert.Equal(t, 12*time.Hour, viper.GetDuration("api.cors.max_age"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_timeout"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_header_timeout"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("api.write_timeout"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("api.idle_timeout"))

	// Unmarshal the configuration into a blimp.Config struct
	var config blimp.Config
	err = viper.Unmarshal(
		&config, viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	assert.NoError(t, err)

	// Verify some key fields in the Config struct
	assert.Equal(t, "/home/foo/blimp.sqlite3", config.Database)
	assert.Equal(t, "sqlite", config.DatabaseType)
	assert.Equal(t, slog.LevelInfo, config.DatabaseLogLevel.Level())
	assert.Equal(t, 200*time.Millisecond, config.DatabaseSlowThreshold)
	assert.Equal(t, slog.LevelInfo, config.LogLevel.Level())
	assert.Equal(t, 30*time.Second, config.StartupTimeout)
	assert.Equal(t, 60*time.Second, config.ShutdownTimeout)

	assert.Equal(t, "your-discord-bot-token", config.Discord.Token)
	assert.Equal(t, "!", config.Discord.Suffix)
	assert.Equal(t, "watching from far above", config.Discord.CustomStatus)
	assert.Equal(t, slog.LevelWarn, config.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelWarn, config.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, discordgo.Intent(3243773), config.Discord.GatewayIntents)

	assert.Equal(t, 5*time.Minute, config.Wizard.InputTimeout)

	assert.True(t, config.API.Enabled)
	assert.Equal(t, "127.0.0.1:5000", config.API.Listen)
	assert.Equal(t, slog.LevelDebug, config.API.LogLevel.Level())
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5000", "https://localhost:5000"},
		config.API.CORS.AllowOrigins,
	)
	assert.Equal(
		t,
		[]string{"Origin", "Content-Type", "Accept"},
		config.API.CORS.AllowHeaders,
	)
}

func TestGetLogLevel(t *testing.T) {
	for _, name := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		lvl, err := getLogLevel(name)
		require.NoError(t, err)
		assert.Equal(t, name, lvl.String())
	}
	_, err := getLogLevel("LOUD")
	assert.Error(t, err)
}
