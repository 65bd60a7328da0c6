package mongo_test

import (
	"context"
	"testing"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/store/mongo"
	"github.com/chirino/conversation-service/internal/plugin/store/storetest"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/testutil/containers"
	"github.com/stretchr/testify/require"
)

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	dbURL := containers.StartMongo(t)

	storetest.Run(t, func(t *testing.T) (registrystore.ConversationStore, context.Context) {
		t.Helper()
		cfg := config.DefaultConfig()
		cfg.DatastoreType = "mongo"
		cfg.DBURL = dbURL
		ctx := config.WithContext(context.Background(), &cfg)

		// Ensure mongo store plugin is registered
		_ = mongo.ForceImport

		require.NoError(t, registrymigrate.RunAll(ctx))

		loader, err := registrystore.Select("mongo")
		require.NoError(t, err)
		store, err := loader(ctx)
		require.NoError(t, err)
		return store, ctx
	})
}
