// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Registry maps plugin names to live instances.
// It is safe for concurrent use; only the Manager writes to it.
type Registry struct {
	byName map[string]*Instance
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Instance),
	}
}

// Register adds inst under name. An existing entry is left intact and
// DUPLICATE_NAME is returned.
func (r *Registry) Register(name string, inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return ErrDuplicateName(name)
	}
	r.byName[name] = inst
	return nil
}

// FindByName returns the live instance registered under name.
// Returns false if no plugin by that name is registered.
func (r *Registry) FindByName(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.byName[name]
	return inst, ok
}

// FindByID returns the live instance with the given id.
func (r *Registry) FindByID(id ulid.ULID) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, inst := range r.byName {
		if inst.id == id {
			return inst, true
		}
	}
	return nil, false
}

// Unregister removes name. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byName, name)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
