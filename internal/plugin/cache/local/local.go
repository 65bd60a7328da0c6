// Package local provides an in-process profile cache backed by ristretto.
// Each server replica keeps its own copy, so it suits single-node deployments
// or profiles that tolerate a few minutes of staleness.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/model"
	registrycache "github.com/chirino/conversation-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultTTL      = 10 * time.Minute
	defaultMaxItems = 100_000
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "local",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UserCache, error) {
	ttl := defaultTTL
	maxItems := int64(defaultMaxItems)
	if cfg := config.FromContext(ctx); cfg != nil {
		if cfg.CacheTTL > 0 {
			ttl = cfg.CacheTTL
		}
		if cfg.CacheMaxItems > 0 {
			maxItems = cfg.CacheMaxItems
		}
	}
	return New(maxItems, ttl)
}

// New creates a cache holding at most maxItems profiles.
func New(maxItems int64, ttl time.Duration) (*UserCache, error) {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, model.User]{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &UserCache{cache: c, ttl: ttl}, nil
}

// UserCache implements registrycache.UserCache in memory.
type UserCache struct {
	cache *ristretto.Cache[string, model.User]
	ttl   time.Duration
}

func (c *UserCache) Available() bool { return true }

func (c *UserCache) GetMany(_ context.Context, ids []string) (map[string]model.User, error) {
	result := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := c.cache.Get(id); ok {
			result[id] = u
		}
	}
	return result, nil
}

func (c *UserCache) SetMany(_ context.Context, users []model.User, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	for _, u := range users {
		c.cache.SetWithTTL(u.ID, u, 1, ttl)
	}
	// Sets are buffered; make them visible to the next read.
	c.cache.Wait()
	return nil
}

func (c *UserCache) Remove(_ context.Context, id string) error {
	c.cache.Del(id)
	return nil
}

// Close releases the cache's background goroutines.
func (c *UserCache) Close() {
	c.cache.Close()
}

var _ registrycache.UserCache = (*UserCache)(nil)
