package blimp

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func closeGorm(t testing.TB, db *gorm.DB) {
	t.Helper()
	t.Cleanup(
		func() {
			sqlDB, err := db.DB()
			if err == nil {
				_ = sqlDB.Close()
			}
		},
	)
}

// CreateDB threads the configured level and slow-query threshold into
// the GORM logger rather than hard-coding defaults.
func TestCreateDBGormLoggerConfig(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "blimp.sqlite3")

	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	db, err := CreateDB(
		context.Background(), dbTypeSQLite, dbPath, level, 750*time.Millisecond,
	)
	require.NoError(t, err)
	closeGorm(t, db)

	gormLogger, ok := db.Config.Logger.(*gormStructuredLogger)
	require.True(t, ok)
	assert.Equal(t, 750*time.Millisecond, gormLogger.SlowThreshold)
}

func TestCreateDBGormLoggerDefaults(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "blimp.sqlite3")

	db, err := CreateDB(context.Background(), dbTypeSQLite, dbPath, nil, 0)
	require.NoError(t, err)
	closeGorm(t, db)

	gormLogger, ok := db.Config.Logger.(*gormStructuredLogger)
	require.True(t, ok)
	assert.Equal(t, DefaultDatabaseSlowThreshold, gormLogger.SlowThreshold)
}
