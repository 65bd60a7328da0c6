package migrate

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
)

// Migrator brings one datastore's schema up to date. Migrators decide for
// themselves whether the configured datastore is theirs.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin orders a migrator; lower Order runs first.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func ordered() []Plugin {
	sorted := slices.Clone(plugins)
	slices.SortStableFunc(sorted, func(a, b Plugin) int { return a.Order - b.Order })
	return sorted
}

// Names lists the registered migrators in execution order.
func Names() []string {
	var names []string
	for _, p := range ordered() {
		names = append(names, p.Migrator.Name())
	}
	return names
}

// RunAll executes all registered migrators in order and stops at the first failure.
func RunAll(ctx context.Context) error {
	for _, p := range ordered() {
		start := time.Now()
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
		log.Debug("Migrator finished", "name", p.Migrator.Name(), "duration", time.Since(start))
	}
	return nil
}
