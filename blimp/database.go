package blimp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteExecPragma = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// ModelUnixTime is an embeddable model with Unix millisecond timestamps
// for creation and update.
type ModelUnixTime struct {
	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
}

// Database wraps the GORM connection, serializing writes behind a mutex
// when concurrent writes are disabled (the default for SQLite, which has
// a single writer anyway).
//
// It implements DBI, which exists primarily so database operations can be
// mocked in tests.
type Database struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

// NewDatabase initializes a new Database around the given GORM connection.
func NewDatabase(
	db *gorm.DB,
	log *slog.Logger,
	enableConcurrentWrites bool,
) *Database {
	if log == nil {
		log = slog.Default()
	}
	return &Database{
		db:                     db,
		logger:                 log.With(loggerNameKey, "writedb"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (d *Database) DB() *gorm.DB {
	return d.db
}

func (d *Database) Lock() {
	if d.enableConcurrentWrites {
		return
	}
	d.mu.Lock()
}

func (d *Database) Unlock() {
	if d.enableConcurrentWrites {
		return
	}
	d.mu.Unlock()
}

func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

func (d *Database) Create(ctx context.Context, value any) (int64, error) {
	d.Lock()
	defer d.Unlock()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	rv := d.db.WithContext(ctx).Create(value)
	return rv.RowsAffected, rv.Error
}

func (d *Database) Save(ctx context.Context, value any) (int64, error) {
	d.Lock()
	defer d.Unlock()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	rv := d.db.WithContext(ctx).Save(value)
	return rv.RowsAffected, rv.Error
}

func (d *Database) Delete(ctx context.Context, value any, conds ...any) (int64, error) {
	d.Lock()
	defer d.Unlock()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	rv := d.db.WithContext(ctx).Delete(value, conds...)
	return rv.RowsAffected, rv.Error
}

func (d *Database) Transaction(
	ctx context.Context,
	fc func(tx *gorm.DB) error,
	opts ...*sql.TxOptions,
) error {
	d.Lock()
	defer d.Unlock()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.db.WithContext(ctx).Transaction(fc, opts...)
}

// DBI defines the write-side database operations used by the object
// store and feature handlers. [Database] implements this interface for
// 'real' DB operations; tests substitute mocks.
type DBI interface {
	Lock()
	Unlock()
	DB() *gorm.DB
	Create(ctx context.Context, value any) (rowsAffected int64, err error)
	Save(ctx context.Context, value any) (rowsAffected int64, err error)
	Delete(ctx context.Context, value any, conds ...any) (rowsAffected int64, err error)
	Transaction(
		ctx context.Context,
		fc func(tx *gorm.DB) error,
		opts ...*sql.TxOptions,
	) error
}

// CreateDB initializes a GORM connection for the given database type
// ('sqlite' or 'postgres') and runs migrations for all feature tables.
// A nil logLevel falls back to warnings only, a non-positive
// slowThreshold to [DefaultDatabaseSlowThreshold].
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
	logLevel slog.Leveler,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	if logLevel == nil {
		logLevel = slog.LevelWarn
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultDatabaseSlowThreshold
	}
	handler := newLogHandler(logLevel)
	gormLogger := newGORMLogger(handler, slowThreshold)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if databaseType == dbTypeSQLite {
		for _, pragma := range sqliteExecPragma {
			if e := db.Exec(pragma).Error; e != nil {
				return db, fmt.Errorf("error setting pragma %q: %w", pragma, e)
			}
		}
	}

	txn := db.WithContext(ctx).Begin()
	err = txn.Migrator().AutoMigrate(
		&Object{},
		&Alias{},
		&BoardConfig{},
		&BoardEntry{},
		&KioskEntry{},
		&LoggingConfig{},
		&WelcomeConfig{},
	)
	if err != nil {
		return db, err
	}
	if commitErr := txn.Commit().Error; commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
