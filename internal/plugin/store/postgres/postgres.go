// Package postgres registers the PostgreSQL datastore. Queries go through the
// shared gorm store; the schema is applied with a direct pgx connection.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

const poolReportInterval = 15 * time.Second

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			db, err := Open(ctx, config.FromContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			return gormstore.New(db), nil
		},
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: schemaMigrator{}})
}

// Open connects with the configured pool limits. Pool usage is published to
// metrics until ctx ends.
func Open(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("postgres requires a database url")
	}
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	go func() {
		ticker := time.NewTicker(poolReportInterval)
		defer ticker.Stop()
		for {
			security.SetDBPool(sqlDB.Stats().OpenConnections, cfg.DBMaxOpenConns)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return db, nil
}

type schemaMigrator struct{}

func (schemaMigrator) Name() string { return "postgres-schema" }

// Migrate applies the idempotent schema script. It runs over the simple
// query protocol so the script may hold several statements.
func (m schemaMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "postgres" {
		return nil
	}
	start := time.Now()
	conn, err := pgx.Connect(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("%s: connect: %w", m.Name(), err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, schemaSQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("%s: %w", m.Name(), err)
	}
	log.Info("Schema ready", "migrator", m.Name(), "duration", time.Since(start))
	return nil
}
