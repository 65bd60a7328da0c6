package bdd

import (
	"testing"

	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/chirino/conversation-service/internal/testutil/containers"

	_ "github.com/chirino/conversation-service/internal/plugin/store/postgres"
)

func TestFeaturesPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	dbURL := containers.StartPostgres(t)

	cfg := testConfig()
	cfg.DatastoreType = "postgres"
	cfg.DBURL = dbURL
	cfg.CacheType = "local"

	runFeatures(t, &cfg, func() cucumber.TestDB {
		return &PostgresTestDB{DBURL: dbURL}
	})
}
