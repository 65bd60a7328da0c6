package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/model"
	registrycache "github.com/chirino/conversation-service/internal/registry/cache"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/security"
)

// UserResolver looks up profiles for populate, reading through the optional
// profile cache before falling back to the store.
type UserResolver struct {
	store registrystore.ConversationStore
	cache registrycache.UserCache
	ttl   time.Duration
}

// NewUserResolver creates a resolver. cache may be nil.
func NewUserResolver(store registrystore.ConversationStore, cache registrycache.UserCache, ttl time.Duration) *UserResolver {
	if cache != nil && !cache.Available() {
		cache = nil
	}
	return &UserResolver{store: store, cache: cache, ttl: ttl}
}

// Resolve returns the known profiles among ids. Unknown ids are absent.
func (r *UserResolver) Resolve(ctx context.Context, ids []string) (map[string]model.User, error) {
	ids = model.UniqueIDs(ids)
	result := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing := ids
	if r.cache != nil {
		cached, err := r.cache.GetMany(ctx, ids)
		if err != nil {
			log.Warn("Profile cache read failed", "err", err)
		}
		missing = missing[:0:0]
		for _, id := range ids {
			if u, ok := cached[id]; ok {
				result[id] = u
			} else {
				missing = append(missing, id)
			}
		}
		security.RecordCacheLookup(len(ids)-len(missing), len(missing))
		if len(missing) == 0 {
			return result, nil
		}
	}

	loaded, err := r.store.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	fresh := make([]model.User, 0, len(loaded))
	for id, u := range loaded {
		result[id] = u
		fresh = append(fresh, u)
	}
	if r.cache != nil && len(fresh) > 0 {
		if err := r.cache.SetMany(ctx, fresh, r.ttl); err != nil {
			log.Warn("Profile cache write failed", "err", err)
		}
	}
	return result, nil
}
