package bdd

import (
	"context"
	"fmt"
	"sync"

	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoTestDB resets the mongo datastore and, when RedisURL is set, the
// profile cache in front of it. Stale cached profiles would otherwise leak
// between scenarios that reuse user ids.
type MongoTestDB struct {
	DBURL    string
	RedisURL string

	once   sync.Once
	client *mongo.Client
	redis  *goredis.Client
	err    error
}

var _ cucumber.TestDB = (*MongoTestDB)(nil)

func (m *MongoTestDB) connect() error {
	m.once.Do(func() {
		m.client, m.err = mongo.Connect(options.Client().ApplyURI(m.DBURL))
		if m.err != nil || m.RedisURL == "" {
			return
		}
		opts, err := goredis.ParseURL(m.RedisURL)
		if err != nil {
			m.err = err
			return
		}
		m.redis = goredis.NewClient(opts)
	})
	return m.err
}

func (m *MongoTestDB) ClearAll(ctx context.Context) error {
	if err := m.connect(); err != nil {
		return fmt.Errorf("mongo test db: %w", err)
	}
	db := m.client.Database("conversation_service")
	for _, coll := range []string{"conversations", "users"} {
		if _, err := db.Collection(coll).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("clear %s: %w", coll, err)
		}
	}
	if m.redis != nil {
		if err := m.redis.FlushDB(ctx).Err(); err != nil {
			return fmt.Errorf("flush profile cache: %w", err)
		}
	}
	return nil
}

// Query returns nil: SQL assertions do not apply to documents and are skipped.
func (m *MongoTestDB) Query(context.Context, string) ([]map[string]any, error) {
	return nil, nil
}

// Close releases the shared clients.
func (m *MongoTestDB) Close() {
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
	}
	if m.redis != nil {
		_ = m.redis.Close()
	}
}
