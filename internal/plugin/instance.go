// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// State is a position in the plugin lifecycle. States only move forward.
type State int

// Lifecycle states, in order.
const (
	StateUnloaded State = iota
	StateCreated
	StateStarted
	StateEnded
	StateDestroyed
)

var stateNames = [...]string{
	StateUnloaded:  "unloaded",
	StateCreated:   "created",
	StateStarted:   "started",
	StateEnded:     "ended",
	StateDestroyed: "destroyed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Instance is one live plugin. The manager owns it; everyone else holds a
// borrowed pointer that stays valid but reports StateDestroyed after unload.
type Instance struct {
	id     ulid.ULID
	desc   *Descriptor
	plugin Plugin

	// seq serializes lifecycle transitions.
	seq sync.Mutex

	mu    sync.RWMutex
	state State
	fault error
}

func newInstance(desc *Descriptor, p Plugin) *Instance {
	return &Instance{
		id:     ulid.Make(),
		desc:   desc,
		plugin: p,
	}
}

// ID returns the instance id, unique across reloads.
func (i *Instance) ID() ulid.ULID { return i.id }

// Name returns the plugin name.
func (i *Instance) Name() string { return i.desc.Name }

// Descriptor returns the descriptor the instance was loaded from.
func (i *Instance) Descriptor() *Descriptor { return i.desc }

// Plugin returns the concrete plugin value.
func (i *Instance) Plugin() Plugin { return i.plugin }

// State returns the current lifecycle state without waiting on transitions.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Fault returns the hook failure that stopped the instance, if any.
func (i *Instance) Fault() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.fault
}

// Faulted reports whether a hook failure stopped the instance.
func (i *Instance) Faulted() bool {
	return i.Fault() != nil
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

func (i *Instance) setFault(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fault == nil {
		i.fault = err
	}
}
