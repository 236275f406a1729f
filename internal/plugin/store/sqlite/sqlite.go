package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/plugin/store/sqlstore"
	registrymigrate "github.com/chirino/conversation-cache/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.RecordStore, error) {
			cfg := config.FromContext(ctx)
			db, err := open(cfg.DBURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			// One writer at a time; extra connections only queue on the file lock.
			sqlDB.SetMaxOpenConns(1)
			return sqlstore.New(db, classify), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Store: "sqlite", Order: 100, Migrator: &sqliteMigrator{}})
}

// dsn adds a busy timeout and WAL journaling unless the caller set options.
func dsn(url string) string {
	if strings.Contains(url, "?") {
		return url
	}
	return url + "?_busy_timeout=5000&_journal_mode=WAL"
}

func open(url string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn(url)), &gorm.Config{Logger: logger.Discard})
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context, cfg *config.Config) error {
	db, err := open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: failed to open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.WithContext(ctx).AutoMigrate(&model.Conversation{}, &model.Meta{}); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	return nil
}

// classify reports lock contention as a transient outage.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return &registrystore.UnavailableError{Store: "sqlite", Err: err}
	}
	return err
}
