//nolint:lll // struct tags can't be split
package blimp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	EnvvarSetEnvPrefix = "BLIMP_ENV_PREFIX"
	DefaultEnvPrefix   = "BLIMP"

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "blimp.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	// DefaultCommandSuffix is appended to the first word of a message to
	// address the bot: `alias! make ...` rather than a prefix.
	DefaultCommandSuffix = "!"

	// DefaultWizardInputTimeout is how long a wizard stage waits for
	// qualifying input before giving up.
	DefaultWizardInputTimeout = 5 * time.Minute

	DefaultDiscordCustomStatus  = "watching from far above"
	DefaultDiscordErrorMessage  = "Something went wrong. It wasn't your fault."
	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsGuildMembers

	DefaultAPIListen         = "127.0.0.1:5000"
	defaultListenNetwork     = "tcp"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	DefaultCORSMaxAge        = 12 * time.Hour

	discordMaxMessageLength = 2000
)

var DefaultCORSAllowMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
}

// Config is the static (file/env) configuration for the bot. Feature
// configuration (boards, kiosks, log channels...) lives in the database
// and is managed through commands.
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Discord configures the Discord connection and command syntax
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Wizard configures the interactive wizard engine
	Wizard *WizardConfig `yaml:"wizard" mapstructure:"wizard" json:"wizard"`

	// API configures the status HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits how long the bot has to connect and
	// initialize before startup is aborted.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Suffix is the character addressed commands end with (`alias!`)
	Suffix string `yaml:"suffix" mapstructure:"suffix" json:"suffix"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// CustomStatus is shown as the bot's activity
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// ErrorMessage is the generic reply for unexpected failures
	ErrorMessage string `yaml:"error_message" mapstructure:"error_message" json:"error_message"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// WizardConfig configures the interactive wizard engine.
type WizardConfig struct {
	// InputTimeout is the per-stage inactivity timeout. The clock resets
	// at the start of each stage, not once per session.
	InputTimeout time.Duration `yaml:"input_timeout" mapstructure:"input_timeout" json:"input_timeout"`
}

// APIConfig configures the status HTTP server.
type APIConfig struct {
	// Determines if the status server should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true,hostname|filepath"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the status server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
		MaxAge:       c.MaxAge,
	}
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			Suffix:            DefaultCommandSuffix,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			CustomStatus:      DefaultDiscordCustomStatus,
			ErrorMessage:      DefaultDiscordErrorMessage,
			GatewayIntents:    DefaultDiscordGatewayIntent,
		},
		Wizard: &WizardConfig{
			InputTimeout: DefaultWizardInputTimeout,
		},
		API: &APIConfig{
			Enabled:           false,
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS: CORSConfig{
				AllowOrigins: []string{},
				AllowMethods: DefaultCORSAllowMethods,
				AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
				MaxAge:       DefaultCORSMaxAge,
			},
		},
	}
}
