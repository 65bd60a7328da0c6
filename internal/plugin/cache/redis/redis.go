package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/model"
	registrycache "github.com/chirino/conversation-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UserCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CONVERSATION_SERVICE_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURLWithTTL creates a UserCache from a Redis URL with an explicit profile TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.UserCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisUserCache{client: client, ttl: ttl}, nil
}

type redisUserCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func userKey(id string) string {
	return "user-profile:" + id
}

func (c *redisUserCache) Available() bool {
	return true
}

func (c *redisUserCache) GetMany(ctx context.Context, ids []string) (map[string]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string]model.User, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			log.Warn("Dropping undecodable cached profile", "user", ids[i], "err", err)
			continue
		}
		result[u.ID] = u
	}
	return result, nil
}

func (c *redisUserCache) SetMany(ctx context.Context, users []model.User, ttl time.Duration) error {
	if len(users) == 0 {
		return nil
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	_, err := c.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, u := range users {
			data, err := json.Marshal(u)
			if err != nil {
				return err
			}
			p.Set(ctx, userKey(u.ID), data, ttl)
		}
		return nil
	})
	return err
}

func (c *redisUserCache) Remove(ctx context.Context, id string) error {
	return c.client.Del(ctx, userKey(id)).Err()
}

var _ registrycache.UserCache = (*redisUserCache)(nil)
