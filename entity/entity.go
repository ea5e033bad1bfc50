// Package entity wires the built-in entity types into a registry.
package entity

import (
	"fmt"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/entity/compose"
	"github.com/hazyhaar/domsense/entity/message"
	"github.com/hazyhaar/domsense/entity/navitem"
	"github.com/hazyhaar/domsense/entity/overlay"
)

// All returns the built-in entities in registration order.
func All() []detect.Entity {
	return []detect.Entity{message.Entity, overlay.Entity, compose.Entity, navitem.Entity}
}

// RegisterAll registers every built-in entity with r.
func RegisterAll(r *detect.Registry) error {
	for _, e := range All() {
		if err := r.Register(e); err != nil {
			return fmt.Errorf("entity: register %s: %w", e.Name(), err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in entities.
func NewRegistry() *detect.Registry {
	r := detect.NewRegistry()
	if err := RegisterAll(r); err != nil {
		panic(err)
	}
	return r
}
