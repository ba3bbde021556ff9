package provider

import (
	"fmt"
	"sort"
)

// Registry holds the configured adapters keyed by provider ID.
type Registry struct {
	adapters map[ID]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ID]Adapter)}
}

// Register adds an adapter. Re-registering a provider replaces the
// previous adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ID()] = a
}

// Get returns the adapter for a provider, or ErrInvalidProvider when no
// adapter is registered under that ID.
func (r *Registry) Get(id ID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, id)
	}

	return a, nil
}

// List returns the registered provider IDs in stable order.
func (r *Registry) List() []ID {
	ids := make([]ID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
