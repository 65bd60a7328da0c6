package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/testutil/containers"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisUserCache(t *testing.T) {
	redisURL := containers.StartRedis(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.RedisURL = redisURL
	cfg.CacheTTL = time.Minute
	c, err := load(config.WithContext(ctx, &cfg))
	require.NoError(t, err)
	require.True(t, c.Available())

	require.NoError(t, c.SetMany(ctx, []model.User{
		{ID: "alice", Name: "Alice", Password: "secret-hash", Phone: "555-0001"},
		{ID: "bob", Name: "Bob"},
	}, 0))

	got, err := c.GetMany(ctx, []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got["alice"].Name)
	assert.Empty(t, got["alice"].Password, "secrets are never written to the cache")
	assert.Empty(t, got["alice"].Phone)

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)
	raw := goredis.NewClient(opts)
	t.Cleanup(func() { _ = raw.Close() })
	ttl, err := raw.TTL(ctx, userKey("bob")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, c.SetMany(ctx, []model.User{{ID: "carol", Name: "Carol"}}, 5*time.Second))
	ttl, err = raw.TTL(ctx, userKey("carol")).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 5*time.Second)

	require.NoError(t, c.Remove(ctx, "alice"))
	got, err = c.GetMany(ctx, []string{"alice"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLoadRequiresURL(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := load(config.WithContext(context.Background(), &cfg))
	require.ErrorContains(t, err, "REDIS_URL")
}
