// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lua runs plugins written in Lua. Every plugin instance owns one
// sandboxed interpreter state for its whole life.
package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// library is a Lua standard library that is safe to open in a sandbox.
type library struct {
	name string
	open lua.LGFunction
}

// sandboxLibraries lists the libraries plugins get: base, table, string,
// math. os, io, debug, package, and channel stay closed.
func sandboxLibraries() []library {
	return []library{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// blockedGlobals are base library functions that reach the filesystem or
// compile arbitrary chunks.
var blockedGlobals = []string{"dofile", "loadfile", "loadstring", "load", "require", "module"}

// Default interpreter limits.
const (
	DefaultCallStackSize = 256
	DefaultRegistryMax   = 1024 * 80
)

// StateFactory creates sandboxed Lua states.
type StateFactory struct {
	libraries     []library
	callStackSize int
	registryMax   int
}

// StateOption configures a StateFactory.
type StateOption func(*StateFactory)

// WithCallStackSize bounds Lua call depth.
func WithCallStackSize(n int) StateOption {
	return func(f *StateFactory) {
		f.callStackSize = n
	}
}

// WithRegistryMax bounds the Lua value stack.
func WithRegistryMax(n int) StateOption {
	return func(f *StateFactory) {
		f.registryMax = n
	}
}

// NewStateFactory creates a state factory with the default sandbox.
func NewStateFactory(opts ...StateOption) *StateFactory {
	f := &StateFactory{
		libraries:     sandboxLibraries(),
		callStackSize: DefaultCallStackSize,
		registryMax:   DefaultRegistryMax,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewState creates a fresh state with only the sandbox libraries open.
// The caller owns the state and must Close it.
func (f *StateFactory) NewState(_ context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       f.callStackSize,
		RegistryMaxSize:     f.registryMax,
		IncludeGoStackTrace: false,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}
