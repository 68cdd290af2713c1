package blimp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Bot ties together the Discord session, the object store, and the
// feature handlers. Create one with New and start it with Run.
type Bot struct {
	config  *Config
	logger  *slog.Logger
	session SessionHandler

	db    *Database
	store *ObjectStore

	waiters  *messageWaiters
	notifier DBNotifier

	boards   *Boards
	kiosks   *Kiosks
	guildLog *GuildLog
	welcome  *Welcome

	commands map[string]*command

	httpServer *http.Server
	started    time.Time
}

// New validates the config and creates a Bot. No connections are made
// until Run.
func New(config *Config) (*Bot, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if config.Discord == nil || config.Discord.Token == "" {
		return nil, errors.New("discord token not set")
	}
	if config.Discord.Suffix == "" {
		config.Discord.Suffix = DefaultCommandSuffix
	}
	if config.Wizard == nil {
		config.Wizard = &WizardConfig{InputTimeout: DefaultWizardInputTimeout}
	}
	if config.HTTPClient != nil {
		config.Discord.httpClient = config.HTTPClient
	}

	logger := slog.New(newLogHandler(config.LogLevel)).With(loggerNameKey, "blimp")

	session, err := newSession(
		config.Discord,
		slog.New(newLogHandler(config.Discord.LogLevel)),
	)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		config:  config,
		logger:  logger,
		session: session,
		waiters: newMessageWaiters(),
	}
	bot.registerCommands()
	return bot, nil
}

// Run connects everything and blocks until ctx is canceled, then shuts
// down gracefully.
func (b *Bot) Run(ctx context.Context) error {
	startupCtx, startupCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startupCancel()

	if err := b.initialize(startupCtx); err != nil {
		return err
	}

	configureDiscordgoLogging(ctx, newLogHandler(b.config.Discord.DiscordGoLogLevel))

	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onReactionRemove)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("error connecting to discord: %w", err)
	}
	b.started = time.Now()
	b.logger.InfoContext(ctx, "connected", "config", b.config)

	if b.config.Discord.CustomStatus != "" {
		if err := b.session.UpdateCustomStatus(b.config.Discord.CustomStatus); err != nil {
			b.logger.WarnContext(ctx, "error setting custom status", tint.Err(err))
		}
	}

	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		if err := b.notifier.Listen(
			ctx, func(topic string) {
				if topic == notifyBoardChanged {
					b.boards.InvalidateCache()
				}
			},
		); err != nil {
			b.logger.ErrorContext(ctx, "notifier stopped", tint.Err(err))
		}
	}()

	apiDone := make(chan error, 1)
	if b.config.API != nil && b.config.API.Enabled {
		b.httpServer = newAPIServer(b)
		listener, err := net.Listen(b.config.API.ListenNetwork, b.config.API.Listen)
		if err != nil {
			_ = b.session.Close()
			return fmt.Errorf("error listening on %s: %w", b.config.API.Listen, err)
		}
		b.logger.InfoContext(ctx, "status api listening", "listen", b.config.API.Listen)
		go func() {
			serveErr := b.httpServer.Serve(listener)
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				apiDone <- serveErr
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-apiDone:
		b.logger.Error("status api failed", tint.Err(err))
	}

	return b.shutdown(notifierDone)
}

func (b *Bot) initialize(ctx context.Context) error {
	gormDB, err := CreateDB(
		ctx,
		b.config.DatabaseType,
		b.config.Database,
		b.config.DatabaseLogLevel,
		b.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	b.db = NewDatabase(
		gormDB,
		slog.New(newLogHandler(b.config.DatabaseLogLevel)),
		b.config.DatabaseType == dbTypePostgres,
	)
	b.store = NewObjectStore(b.db, b.logger)

	b.notifier, err = newNotifier(ctx, b.config, b.logger)
	if err != nil {
		return fmt.Errorf("error initializing change notifier: %w", err)
	}

	b.boards = newBoards(b)
	b.kiosks = newKiosks(b)
	b.guildLog = newGuildLog(b)
	b.welcome = newWelcome(b)
	return nil
}

func (b *Bot) shutdown(notifierDone <-chan struct{}) error {
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), b.config.ShutdownTimeout,
	)
	defer cancel()

	b.logger.Info("shutting down")

	var errs []error
	if b.httpServer != nil {
		if err := b.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
	}
	if err := b.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("discord close: %w", err))
	}
	b.notifier.Close()
	select {
	case <-notifierDone:
	case <-shutdownCtx.Done():
	}
	return errors.Join(errs...)
}

// Store returns the bot's object store.
func (b *Bot) Store() *ObjectStore { return b.store }

// onMessageCreate routes an incoming message: first to any wizard
// session waiting on its (channel, author) pair, then to the command
// dispatcher. A message consumed by a wizard is never also a command.
func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == b.session.BotUserID() {
		return
	}
	if b.waiters.Dispatch(m.Message) {
		return
	}
	b.dispatchCommand(m.Message)
}

func (b *Bot) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	ctx := context.Background()
	b.boards.HandleReactionAdd(ctx, r)
	b.kiosks.HandleReactionAdd(ctx, r)
}

func (b *Bot) onReactionRemove(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
	b.kiosks.HandleReactionRemove(context.Background(), r)
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	b.welcome.HandleMemberAdd(context.Background(), m)
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	b.welcome.HandleMemberRemove(context.Background(), m)
}
