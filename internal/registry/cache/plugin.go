// Package cache holds the profile cache contract and the registry of cache
// backends selected with --cache-kind.
package cache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/chirino/conversation-service/internal/model"
)

// UserCache caches resolved user profiles used to populate conversations.
// Profiles change rarely and are owned by another system, so a short TTL is
// the only invalidation.
type UserCache interface {
	// Available is false when the backend cannot currently serve reads.
	Available() bool
	// GetMany returns the cached profiles among ids. Misses are absent.
	GetMany(ctx context.Context, ids []string) (map[string]model.User, error)
	SetMany(ctx context.Context, users []model.User, ttl time.Duration) error
	Remove(ctx context.Context, id string) error
}

// Loader creates a cache from the config in ctx. A nil cache with a nil
// error means caching is off.
type Loader func(ctx context.Context) (UserCache, error)

// Plugin is a named cache backend.
type Plugin struct {
	Name   string
	Loader Loader
}

// None disables profile caching.
const None = "none"

var plugins = map[string]Loader{
	None: func(context.Context) (UserCache, error) { return nil, nil },
}

// Register adds a cache backend. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins[p.Name] = p.Loader
}

// Names returns the registered backend names, sorted.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Select returns the loader for the named backend.
func Select(name string) (Loader, error) {
	if loader, ok := plugins[name]; ok {
		return loader, nil
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
