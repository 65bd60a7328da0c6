// Package sqlite registers an embedded single-file datastore. It suits local
// development, the BDD suite and single-node deployments.
package sqlite

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

const defaultDSN = "conversations.db"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			db, err := Open(config.FromContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite: %w", err)
			}
			return gormstore.New(db), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

// DSN returns the configured database file with the pragmas this store relies on.
func DSN(cfg *config.Config) string {
	dsn := defaultDSN
	if cfg != nil && strings.TrimSpace(cfg.DBURL) != "" {
		dsn = strings.TrimPrefix(strings.TrimSpace(cfg.DBURL), "sqlite://")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Open connects to the database. SQLite allows a single writer, so the pool is
// limited to one connection.
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(DSN(cfg)), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("migration: failed to open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}
