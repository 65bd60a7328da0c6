// Package migrate implements the migrate sub-command, which applies the
// datastore schema without starting the server.
package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Store plugins register their migrators alongside the store itself.
	_ "github.com/chirino/conversation-service/internal/plugin/store/mongo"
	_ "github.com/chirino/conversation-service/internal/plugin/store/postgres"
	_ "github.com/chirino/conversation-service/internal/plugin/store/sqlite"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var list bool
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the datastore schema and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-kind",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_DB_KIND"),
				Destination: &cfg.DatastoreType,
				Value:       cfg.DatastoreType,
				Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
			},
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_DB_URL"),
				Destination: &cfg.DBURL,
				Usage:       "Database connection URL (file path for sqlite)",
			},
			&cli.BoolFlag{
				Name:        "list",
				Destination: &list,
				Usage:       "Print the registered migrators in execution order and exit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if list {
				out := io.Writer(os.Stdout)
				if w := cmd.Root().Writer; w != nil {
					out = w
				}
				for _, name := range registrymigrate.Names() {
					_, _ = fmt.Fprintln(out, name)
				}
				return nil
			}
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			return Run(ctx, cfg)
		},
	}
}

// Run applies every registered migrator against cfg's datastore. The
// migrate-at-start toggle only governs server startup, so it is forced on.
func Run(ctx context.Context, cfg config.Config) error {
	if _, err := registrystore.Select(cfg.DatastoreType); err != nil {
		return err
	}
	if cfg.DatastoreType != "sqlite" && strings.TrimSpace(cfg.DBURL) == "" {
		return fmt.Errorf("--db-url is required for --db-kind=%s", cfg.DatastoreType)
	}
	cfg.DatastoreMigrateAtStart = true

	log.Info("Migrating datastore", "kind", cfg.DatastoreType, "migrators", len(registrymigrate.Names()))
	if err := registrymigrate.RunAll(config.WithContext(ctx, &cfg)); err != nil {
		return err
	}
	log.Info("Datastore schema is up to date", "kind", cfg.DatastoreType)
	return nil
}
