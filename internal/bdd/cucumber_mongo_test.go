package bdd

import (
	"testing"

	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/chirino/conversation-service/internal/testutil/containers"

	_ "github.com/chirino/conversation-service/internal/plugin/cache/redis"
	_ "github.com/chirino/conversation-service/internal/plugin/store/mongo"
)

func TestFeaturesMongo(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	mongoURL := containers.StartMongo(t)
	redisURL := containers.StartRedis(t)

	cfg := testConfig()
	cfg.DatastoreType = "mongo"
	cfg.DBURL = mongoURL
	cfg.CacheType = "redis"
	cfg.RedisURL = redisURL

	runFeatures(t, &cfg, func() cucumber.TestDB {
		db := &MongoTestDB{DBURL: mongoURL, RedisURL: redisURL}
		t.Cleanup(db.Close)
		return db
	})
}
