package migrate

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func sqliteConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "cache.db")
	cfg.DatastoreMigrateAtStart = false
	return cfg
}

func TestDryRunListsMigrations(t *testing.T) {
	cfg := sqliteConfig(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, true, &out))
	assert.Equal(t, "sqlite-schema\n", out.String())
	assert.NoFileExists(t, cfg.DBURL)
}

func TestRunCreatesSchema(t *testing.T) {
	cfg := sqliteConfig(t)
	require.NoError(t, run(context.Background(), cfg, false, &bytes.Buffer{}))

	db, err := gorm.Open(sqlite.Open(cfg.DBURL), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("conversations"))
	assert.True(t, db.Migrator().HasTable("meta"))
}

func TestRunWithoutMigrationsIsNoop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "memory"
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, true, &out))
	assert.Empty(t, out.String())
}
