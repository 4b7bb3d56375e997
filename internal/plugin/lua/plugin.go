// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/plugin"
)

// Hook globals a script may define. All are optional.
const (
	hookCreate  = "on_create"
	hookStart   = "on_start"
	hookEnd     = "on_end"
	hookDestroy = "on_destroy"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin   = (*Plugin)(nil)
	_ plugin.Exporter = (*Plugin)(nil)
	_ plugin.Releaser = (*Plugin)(nil)
)

// heldKey marks, in a context, the plugins whose state the current call
// chain already holds.
type heldKey struct{}

type held struct {
	p    *Plugin
	next *held
}

func holds(ctx context.Context, p *Plugin) bool {
	h, _ := ctx.Value(heldKey{}).(*held)
	for ; h != nil; h = h.next {
		if h.p == p {
			return true
		}
	}
	return false
}

func withHeld(ctx context.Context, p *Plugin) context.Context {
	h, _ := ctx.Value(heldKey{}).(*held)
	return context.WithValue(ctx, heldKey{}, &held{p: p, next: h})
}

// Plugin is one loaded Lua script with its own interpreter state.
//
// A gopher-lua state is single threaded, so every entry into the script
// (hooks, exported methods, callbacks) takes the plugin's slot first. A call
// that re-enters the same plugin through the bridge already holds the slot
// and runs directly.
type Plugin struct {
	name   string
	desc   *plugin.Descriptor
	env    plugin.Env
	logger *slog.Logger

	L *lua.LState
	// slot is a one-token semaphore guarding L, so waiting callers can give
	// up when their context ends.
	slot   chan struct{}
	cur    context.Context
	closed bool
}

func newPlugin(L *lua.LState, desc *plugin.Descriptor, env plugin.Env) *Plugin {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default().With("plugin", desc.Name)
	}
	return &Plugin{
		name:   desc.Name,
		desc:   desc,
		env:    env,
		logger: logger,
		L:      L,
		slot:   make(chan struct{}, 1),
	}
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.name }

// run executes fn against the state with exclusive access.
func (p *Plugin) run(ctx context.Context, fn func(L *lua.LState) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if holds(ctx, p) {
		prev := p.cur
		p.cur = ctx
		defer func() { p.cur = prev }()
		return fn(p.L)
	}

	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return oops.In("lua").With("plugin", p.name).Wrapf(ctx.Err(), "waiting for plugin state")
	}
	defer func() { <-p.slot }()

	if p.closed {
		return oops.In("lua").With("plugin", p.name).New("plugin state is closed")
	}

	ctx = withHeld(ctx, p)
	p.cur = ctx
	p.L.SetContext(ctx)
	defer func() {
		p.L.RemoveContext()
		p.cur = nil
	}()
	return fn(p.L)
}

// callContext is the context of the call currently running in the state.
// Natives invoked from Lua use it so cancellation and the held chain carry
// through the bridge.
func (p *Plugin) callContext() context.Context {
	if p.cur != nil {
		return p.cur
	}
	return context.Background()
}

// OnCreate calls on_create.
func (p *Plugin) OnCreate(ctx context.Context) error { return p.hook(ctx, hookCreate) }

// OnStart calls on_start.
func (p *Plugin) OnStart(ctx context.Context) error { return p.hook(ctx, hookStart) }

// OnEnd calls on_end.
func (p *Plugin) OnEnd(ctx context.Context) error { return p.hook(ctx, hookEnd) }

// OnDestroy calls on_destroy.
func (p *Plugin) OnDestroy(ctx context.Context) error { return p.hook(ctx, hookDestroy) }

// hook calls the named global if the script defines it. A hook fails by
// raising an error or by returning false, optionally followed by a message.
func (p *Plugin) hook(ctx context.Context, name string) error {
	return p.run(ctx, func(L *lua.LState) error {
		fn := L.GetGlobal(name)
		if fn.Type() == lua.LTNil {
			return nil
		}
		if fn.Type() != lua.LTFunction {
			return oops.In("lua").With("plugin", p.name).With("hook", name).
				Errorf("%s is a %s, not a function", name, fn.Type())
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}); err != nil {
			return oops.In("lua").With("plugin", p.name).With("hook", name).Wrap(err)
		}
		ok, msg := L.Get(-2), L.Get(-1)
		L.Pop(2)
		if ok == lua.LFalse {
			if msg.Type() == lua.LTNil {
				return oops.In("lua").With("plugin", p.name).With("hook", name).Errorf("%s returned false", name)
			}
			return oops.In("lua").With("plugin", p.name).With("hook", name).New(msg.String())
		}
		return nil
	})
}

// Export returns the native behind a declared method. The script must
// define a global function of the same name. The global is looked up again
// on every call.
//
// The Lua function receives the arguments in order and returns the result
// (unless the method is void) followed by the new value of each ref
// parameter. A nil ref leaves the argument unchanged.
func (p *Plugin) Export(method string) (bridge.NativeFunc, bool) {
	spec, ok := p.desc.Export(method)
	if !ok {
		return nil, false
	}

	defined := false
	_ = p.run(context.Background(), func(L *lua.LState) error {
		defined = L.GetGlobal(method).Type() == lua.LTFunction
		return nil
	})
	if !defined {
		return nil, false
	}

	sig := spec.Signature
	refs := 0
	for _, param := range sig.Params {
		if param.Ref {
			refs++
		}
	}
	nret := refs
	if !sig.Void() {
		nret++
	}

	return func(ctx context.Context, call *bridge.Call) (any, error) {
		var result any = bridge.None
		err := p.run(ctx, func(L *lua.LState) error {
			fn := L.GetGlobal(method)
			if fn.Type() != lua.LTFunction {
				return fmt.Errorf("%s.%s is no longer defined", p.name, method)
			}
			args := make([]lua.LValue, len(call.Args))
			for i, a := range call.Args {
				args[i] = p.toLua(L, a)
			}
			if err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
				return err
			}

			base := L.GetTop() - nret + 1
			defer L.Pop(nret)
			next := base
			if !sig.Void() {
				result = p.fromLua(L.Get(next))
				next++
			}
			for i, param := range sig.Params {
				if !param.Ref {
					continue
				}
				v := L.Get(next)
				next++
				if v.Type() == lua.LTNil {
					continue
				}
				if err := call.SetRef(i, p.fromLua(v)); err != nil {
					return err
				}
			}
			return nil
		})
		return result, err
	}, true
}

// Release closes the interpreter state. Later calls fail.
func (p *Plugin) Release() {
	p.slot <- struct{}{}
	defer func() { <-p.slot }()
	if p.closed {
		return
	}
	p.closed = true
	p.L.Close()
}
