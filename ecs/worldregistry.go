package ecs

import (
	"sync"

	"github.com/google/uuid"
)

// WorldRegistry is the process-wide lookup of live worlds spec.md §5
// names alongside the schema registry and per-schema pools as "global
// structures...mutated only at registration time and read concurrently
// otherwise." Unlike those two, a world's existence is transient (tests
// and sharded setups create and discard many), so lookups go through a
// mutex rather than being assumed append-only for a process's lifetime.
type WorldRegistry struct {
	mu     sync.RWMutex
	worlds map[uuid.UUID]*World
}

// NewWorldRegistry creates an empty registry. Construct one explicitly
// and thread it through rather than reaching for a package-level
// singleton, per spec.md §9's design note on testability.
func NewWorldRegistry() *WorldRegistry {
	return &WorldRegistry{worlds: make(map[uuid.UUID]*World)}
}

// Register adds w to the registry under a freshly generated id.
func (r *WorldRegistry) Register(w *World) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.worlds[id] = w
	r.mu.Unlock()
	return id
}

// Lookup returns the world registered under id, if any.
func (r *WorldRegistry) Lookup(id uuid.UUID) (*World, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[id]
	return w, ok
}

// Unregister removes a world from the registry, e.g. on shutdown.
func (r *WorldRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.worlds, id)
	r.mu.Unlock()
}

// Len returns the number of currently registered worlds.
func (r *WorldRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.worlds)
}
