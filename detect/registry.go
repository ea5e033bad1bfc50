package detect

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/dom"
)

// Registry holds the entities a program knows about. Create one with
// NewRegistry and pass it where it is needed; there is no package-level
// registry.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Entity)}
}

// Register adds an entity. Names must be unique.
func (r *Registry) Register(e Entity) error {
	if err := checkEntity(e); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.Name())
	}
	r.entities[e.Name()] = e
	return nil
}

// MustRegister is Register for program setup, where a failure is a bug.
func (r *Registry) MustRegister(e Entity) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the entity registered under name.
func (r *Registry) Lookup(name string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for n := range r.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Watch creates a Watcher for a registered entity. The watcher is not
// started.
func (r *Registry) Watch(doc *dom.Document, root *html.Node, name string, opts ...Option) (*Watcher, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return NewWatcher(doc, root, e, opts...)
}
