package blimp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
)

const (
	// notifyChannel is the postgres NOTIFY channel shared by all
	// instances pointed at one database.
	notifyChannel = "blimp_changes"

	notifyBoardChanged = "board"
)

// DBNotifier propagates configuration-change events between bot
// instances sharing one database, so in-memory caches stay honest.
// The SQLite deployment is single-instance and gets a no-op.
type DBNotifier interface {
	// Notify broadcasts a change topic to all listening instances.
	Notify(ctx context.Context, topic string) error

	// Listen blocks, invoking onEvent for each received topic, until ctx
	// is done.
	Listen(ctx context.Context, onEvent func(topic string)) error

	Close()
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string) error { return nil }

func (noopNotifier) Listen(ctx context.Context, _ func(string)) error {
	<-ctx.Done()
	return nil
}

func (noopNotifier) Close() {}

// postgresNotifier implements DBNotifier on LISTEN/NOTIFY, over a pgx
// pool separate from the GORM connection: LISTEN holds a connection
// open, which would starve the ORM's pool.
type postgresNotifier struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func newPostgresNotifier(
	ctx context.Context,
	dsn string,
	log *slog.Logger,
) (*postgresNotifier, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &postgresNotifier{
		pool:   pool,
		logger: log.With(loggerNameKey, "notifier"),
	}, nil
}

func (n *postgresNotifier) Notify(ctx context.Context, topic string) error {
	_, err := n.pool.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, topic)
	return err
}

func (n *postgresNotifier) Listen(ctx context.Context, onEvent func(topic string)) error {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "listening for change notifications")

	for {
		notification, waitErr := conn.Conn().WaitForNotification(ctx)
		if waitErr != nil {
			if errors.Is(waitErr, context.Canceled) {
				return nil
			}
			return waitErr
		}
		n.logger.DebugContext(
			ctx, "change notification", "topic", notification.Payload,
		)
		onEvent(notification.Payload)
	}
}

func (n *postgresNotifier) Close() {
	n.pool.Close()
}

// newNotifier picks the notifier implementation for the configured
// database type.
func newNotifier(
	ctx context.Context,
	cfg *Config,
	log *slog.Logger,
) (DBNotifier, error) {
	if cfg.DatabaseType != dbTypePostgres {
		return noopNotifier{}, nil
	}
	return newPostgresNotifier(ctx, cfg.Database, log)
}

// notifyChanged broadcasts a change topic, logging rather than failing
// on error; a missed cache invalidation elsewhere is tolerable.
func (b *Bot) notifyChanged(ctx context.Context, topic string) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(ctx, topic); err != nil {
		b.logger.WarnContext(ctx, "error broadcasting change", tint.Err(err))
	}
}
