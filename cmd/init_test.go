package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestInitCommand(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	originalType := cfg.DatabaseType
	originalDB := cfg.Database
	t.Cleanup(
		func() {
			cfg.DatabaseType = originalType
			cfg.Database = originalDB
		},
	)
	cfg.DatabaseType = "sqlite"
	cfg.Database = dbPath

	var out bytes.Buffer
	initCmd.SetOut(&out)
	initCmd.SetContext(context.Background())
	initCmd.Run(initCmd, nil)

	assert.Contains(t, out.String(), "Initialization complete")

	// The migrated tables exist.
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	for _, table := range []string{"objects", "aliases", "board_configs", "kiosk_entries"} {
		assert.Truef(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}
