// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/wand/internal/bridge"
)

// toLua converts a bridge value into a Lua value.
func (p *Plugin) toLua(L *lua.LState, v any) lua.LValue {
	if bridge.IsNone(v) {
		return lua.LNil
	}
	switch val := v.(type) {
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case bridge.Callback:
		return p.callbackFunction(L, val)
	case lua.LValue:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Slice, reflect.Array:
		t := L.CreateTable(rv.Len(), 0)
		for i := range rv.Len() {
			t.RawSetInt(i+1, p.toLua(L, rv.Index(i).Interface()))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// fromLua converts a Lua value into a plain Go value the bridge can marshal:
// numbers become float64, array tables []any, functions Callbacks.
func (p *Plugin) fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return bridge.None
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		n := val.Len()
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, p.fromLua(val.RawGetInt(i)))
		}
		return out
	case *lua.LFunction:
		return p.luaCallback(val)
	default:
		return v.String()
	}
}

// luaCallback wraps a Lua function so Go code can call it later. Calls go
// through the plugin's state lock like any other entry into the plugin.
func (p *Plugin) luaCallback(fn *lua.LFunction) bridge.Callback {
	return func(ctx context.Context, args ...any) (any, error) {
		var out any = bridge.None
		err := p.run(ctx, func(L *lua.LState) error {
			largs := make([]lua.LValue, len(args))
			for i, a := range args {
				largs[i] = p.toLua(L, a)
			}
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
				return err
			}
			out = p.fromLua(L.Get(-1))
			L.Pop(1)
			return nil
		})
		return out, err
	}
}

// callbackFunction exposes a Go callback to Lua. From Lua it behaves like
// wand.invoke: it returns the result, or nil and an error message.
func (p *Plugin) callbackFunction(L *lua.LState, cb bridge.Callback) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		args := make([]any, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			args = append(args, p.fromLua(L.Get(i)))
		}
		res, err := cb(bridge.WithCaller(p.callContext(), p.name), args...)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(p.toLua(L, res))
		L.Push(lua.LNil)
		return 2
	})
}
