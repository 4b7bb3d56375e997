// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/wand/internal/plugin"
)

// Kind is the descriptor kind served by this package.
const Kind = string(plugin.TypeLua)

// DefaultEntry is the script run when a manifest names none.
const DefaultEntry = "main.lua"

// Factory builds Lua plugins. Each plugin gets a fresh sandboxed state;
// the entry script runs once at instantiation to define its globals.
type Factory struct {
	states *StateFactory
}

var _ plugin.Factory = (*Factory)(nil)

// NewFactory creates a factory whose states are built with opts.
func NewFactory(opts ...StateOption) *Factory {
	return &Factory{states: NewStateFactory(opts...)}
}

// New loads the entry script from the descriptor's directory.
func (f *Factory) New(ctx context.Context, desc *plugin.Descriptor, env plugin.Env) (plugin.Plugin, error) {
	entry := DefaultEntry
	if desc.Manifest != nil && desc.Manifest.LuaPlugin != nil && desc.Manifest.LuaPlugin.Entry != "" {
		entry = desc.Manifest.LuaPlugin.Entry
	}
	path := filepath.Join(desc.Dir, entry)
	if rel, err := filepath.Rel(desc.Dir, path); err != nil || strings.HasPrefix(rel, "..") {
		return nil, oops.In("lua").With("plugin", desc.Name).With("entry", entry).
			New("entry must stay inside the plugin directory")
	}

	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("lua").With("plugin", desc.Name).With("path", path).
			Hint("failed to read entry file").Wrap(err)
	}
	return f.build(ctx, desc, env, entry, string(code))
}

// Source returns a plugin factory running source instead of reading a file.
// Descriptors set it as their Factory.
func (f *Factory) Source(source string) plugin.Factory {
	return plugin.FactoryFunc(func(ctx context.Context, desc *plugin.Descriptor, env plugin.Env) (plugin.Plugin, error) {
		return f.build(ctx, desc, env, desc.Name, source)
	})
}

func (f *Factory) build(ctx context.Context, desc *plugin.Descriptor, env plugin.Env, chunk, source string) (plugin.Plugin, error) {
	L, err := f.states.NewState(ctx)
	if err != nil {
		return nil, oops.In("lua").With("plugin", desc.Name).Hint("failed to create state").Wrap(err)
	}

	p := newPlugin(L, desc, env)
	p.openModule(L)

	err = p.run(ctx, func(L *lua.LState) error {
		fn, err := L.Load(strings.NewReader(source), chunk)
		if err != nil {
			return oops.In("lua").With("plugin", desc.Name).With("entry", chunk).Hint("syntax error").Wrap(err)
		}
		L.Push(fn)
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			return oops.In("lua").With("plugin", desc.Name).With("entry", chunk).Wrap(err)
		}
		L.SetTop(0)
		return nil
	})
	if err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}
