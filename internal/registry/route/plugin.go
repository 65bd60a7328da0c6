// Package route collects the gin route plugins compiled into the binary.
package route

import (
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"
)

// Loader mounts a plugin's routes on the gin engine.
type Loader func(r *gin.Engine) error

// Type selects the listener a plugin's routes are served on.
type Type int

const (
	// TypeMain routes are served on the API listener.
	TypeMain Type = iota
	// TypeManagement routes (health, readiness, metrics) are served on the
	// management listener, or on the API listener when none is configured.
	TypeManagement
)

// Plugin is one named group of routes. Lower Order mounts first.
type Plugin struct {
	Name   string
	Order  int
	Type   Type
	Loader Loader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Mount runs the loaders of every plugin of type t in Order.
func Mount(r *gin.Engine, t Type) error {
	selected := slices.DeleteFunc(slices.Clone(plugins), func(p Plugin) bool { return p.Type != t })
	slices.SortStableFunc(selected, func(a, b Plugin) int { return a.Order - b.Order })
	for _, p := range selected {
		if err := p.Loader(r); err != nil {
			return fmt.Errorf("mount %s routes: %w", p.Name, err)
		}
	}
	return nil
}
