// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc provides the built-in natives every plugin can reach
// through the call bridge.
//
// Natives that touch shared state require capabilities: kv.get needs
// kv.read, kv.set and kv.delete need kv.write. Key-value data is namespaced
// by the calling plugin, so plugins never see each other's keys.
package hostfunc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/plugin"
)

// Capabilities required by the kv natives.
const (
	CapabilityKVRead  = "kv.read"
	CapabilityKVWrite = "kv.write"
)

// hostNamespace holds kv data written by the host itself.
const hostNamespace = "_host"

var _ plugin.Observer = (*Functions)(nil)

// Functions provides the built-in natives.
type Functions struct {
	kv     KVStore
	lookup plugin.Lookup
	events *Events
	logger *slog.Logger
}

// Option configures Functions.
type Option func(*Functions)

// WithKVStore sets the store behind the kv natives.
func WithKVStore(kv KVStore) Option {
	return func(f *Functions) {
		f.kv = kv
	}
}

// WithLookup sets where plugin.find and plugin.state look plugins up.
func WithLookup(l plugin.Lookup) Option {
	return func(f *Functions) {
		f.lookup = l
	}
}

// WithLogger sets the logger behind the log native.
func WithLogger(l *slog.Logger) Option {
	return func(f *Functions) {
		f.logger = l
	}
}

// New creates the natives. Without WithKVStore an in-memory store is used.
func New(opts ...Option) *Functions {
	f := &Functions{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	if f.kv == nil {
		f.kv = NewMemoryKV()
	}
	f.events = NewEvents(f.logger)
	return f
}

// Events returns the event bus behind events.subscribe and events.emit.
func (f *Functions) Events() *Events { return f.events }

type native struct {
	key        string
	sig        string
	fn         bridge.NativeFunc
	capability string
}

func (f *Functions) natives() []native {
	return []native{
		{key: "log", sig: "(string, string) -> void", fn: f.log},
		{key: "request_id", sig: "() -> string", fn: requestID},
		{key: "plugin.find", sig: "(string) -> string?", fn: f.pluginFind},
		{key: "plugin.state", sig: "(string) -> string?", fn: f.pluginState},
		{key: "kv.get", sig: "(string) -> string?", fn: f.kvGet, capability: CapabilityKVRead},
		{key: "kv.set", sig: "(string, string) -> void", fn: f.kvSet, capability: CapabilityKVWrite},
		{key: "kv.delete", sig: "(string) -> void", fn: f.kvDelete, capability: CapabilityKVWrite},
		{key: "events.subscribe", sig: "(string, function) -> void", fn: f.events.subscribe},
		{key: "events.emit", sig: "(string, string) -> int32", fn: f.events.emit},
	}
}

// Register binds every native into b.
func (f *Functions) Register(b *bridge.Bridge) error {
	for _, n := range f.natives() {
		sig, err := bridge.ParseSignature(n.sig)
		if err != nil {
			return oops.In("hostfunc").With("key", n.key).Wrap(err)
		}
		var opts []bridge.BindingOption
		if n.capability != "" {
			opts = append(opts, bridge.WithCapability(n.capability))
		}
		if err := b.RegisterNative(n.key, n.fn, sig, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists the keys Register binds.
func (f *Functions) Keys() []string {
	natives := f.natives()
	keys := make([]string, len(natives))
	for i, n := range natives {
		keys[i] = n.key
	}
	return keys
}

// PluginRemoved drops the event subscriptions of an unloaded plugin.
func (f *Functions) PluginRemoved(_ context.Context, name string) {
	f.events.Drop(name)
}

func (f *Functions) log(ctx context.Context, call *bridge.Call) (any, error) {
	level := strings.ToLower(bridge.Arg[string](call, 0))
	message := bridge.Arg[string](call, 1)

	logger := f.logger
	if caller := call.Caller(); caller != "" {
		logger = logger.With("plugin", caller)
	}
	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn", "warning":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}
	return nil, nil
}

func requestID(context.Context, *bridge.Call) (any, error) {
	return ulid.Make().String(), nil
}

func (f *Functions) find(name string) (*plugin.Instance, bool) {
	if f.lookup == nil {
		return nil, false
	}
	return f.lookup.FindByName(name)
}

// pluginFind returns the instance id of a live plugin, or None.
func (f *Functions) pluginFind(_ context.Context, call *bridge.Call) (any, error) {
	inst, ok := f.find(bridge.Arg[string](call, 0))
	if !ok {
		return bridge.None, nil
	}
	return inst.ID().String(), nil
}

// pluginState returns the lifecycle state of a live plugin, or None.
func (f *Functions) pluginState(_ context.Context, call *bridge.Call) (any, error) {
	inst, ok := f.find(bridge.Arg[string](call, 0))
	if !ok {
		return bridge.None, nil
	}
	return inst.State().String(), nil
}

func namespace(call *bridge.Call) string {
	if caller := call.Caller(); caller != "" {
		return caller
	}
	return hostNamespace
}

func (f *Functions) kvGet(ctx context.Context, call *bridge.Call) (any, error) {
	value, err := f.kv.Get(ctx, namespace(call), bridge.Arg[string](call, 0))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return bridge.None, nil
	}
	return string(value), nil
}

func (f *Functions) kvSet(ctx context.Context, call *bridge.Call) (any, error) {
	return nil, f.kv.Set(ctx, namespace(call), bridge.Arg[string](call, 0), []byte(bridge.Arg[string](call, 1)))
}

func (f *Functions) kvDelete(ctx context.Context, call *bridge.Call) (any, error) {
	return nil, f.kv.Delete(ctx, namespace(call), bridge.Arg[string](call, 0))
}
