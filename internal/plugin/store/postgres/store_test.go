package postgres_test

import (
	"context"
	"testing"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/store/postgres"
	"github.com/chirino/conversation-service/internal/plugin/store/storetest"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/testutil/containers"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	dbURL := containers.StartPostgres(t)

	// One container for the whole suite; the shared tests use unique user ids.
	storetest.Run(t, func(t *testing.T) (registrystore.ConversationStore, context.Context) {
		t.Helper()
		cfg := config.DefaultConfig()
		cfg.DBURL = dbURL
		ctx := config.WithContext(context.Background(), &cfg)

		// Ensure postgres store plugin is registered
		_ = postgres.ForceImport

		require.NoError(t, registrymigrate.RunAll(ctx))

		loader, err := registrystore.Select("postgres")
		require.NoError(t, err)
		store, err := loader(ctx)
		require.NoError(t, err)
		return store, ctx
	})
}
