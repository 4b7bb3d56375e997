// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/plugin"
)

// journal records hook calls across plugins in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// fakePlugin records its hooks and fails or panics on request.
type fakePlugin struct {
	name     string
	log      *journal
	fail     map[plugin.Phase]error
	panicOn  plugin.Phase
	exports  map[string]bridge.NativeFunc
	onStart  func(ctx context.Context) error
	released atomic.Bool
}

func newFake(name string, log *journal) *fakePlugin {
	return &fakePlugin{
		name: name,
		log:  log,
		fail: make(map[plugin.Phase]error),
	}
}

func (f *fakePlugin) hook(phase plugin.Phase) error {
	f.log.add(f.name + ":" + string(phase))
	if f.panicOn == phase {
		panic("boom in " + string(phase))
	}
	return f.fail[phase]
}

func (f *fakePlugin) OnCreate(context.Context) error { return f.hook(plugin.PhaseCreate) }

func (f *fakePlugin) OnStart(ctx context.Context) error {
	if err := f.hook(plugin.PhaseStart); err != nil {
		return err
	}
	if f.onStart != nil {
		return f.onStart(ctx)
	}
	return nil
}

func (f *fakePlugin) OnEnd(context.Context) error     { return f.hook(plugin.PhaseEnd) }
func (f *fakePlugin) OnDestroy(context.Context) error { return f.hook(plugin.PhaseDestroy) }

func (f *fakePlugin) Export(method string) (bridge.NativeFunc, bool) {
	fn, ok := f.exports[method]
	return fn, ok
}

func (f *fakePlugin) Release() { f.released.Store(true) }

// describe builds a descriptor that always yields p.
func describe(p *fakePlugin, deps ...string) *plugin.Descriptor {
	d := &plugin.Descriptor{
		Name:    p.name,
		Version: "1.0.0",
		Factory: plugin.FactoryFunc(func(context.Context, *plugin.Descriptor, plugin.Env) (plugin.Plugin, error) {
			return p, nil
		}),
	}
	for _, dep := range deps {
		d.Dependencies = append(d.Dependencies, plugin.Dependency{Name: dep})
	}
	return d
}

// recordingObserver collects removal notifications.
type recordingObserver struct {
	mu      sync.Mutex
	removed []string
}

func (o *recordingObserver) PluginRemoved(_ context.Context, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, name)
}

func (o *recordingObserver) names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.removed)
}

// memoryGranter records grants in a map.
type memoryGranter struct {
	mu     sync.Mutex
	grants map[string][]string
}

func newMemoryGranter() *memoryGranter {
	return &memoryGranter{grants: make(map[string][]string)}
}

func (g *memoryGranter) SetGrants(name string, caps []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[name] = caps
	return nil
}

func (g *memoryGranter) RemoveGrants(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, name)
}

func (g *memoryGranter) has(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.grants[name]
	return ok
}
