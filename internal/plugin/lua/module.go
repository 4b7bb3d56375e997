// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/wand/internal/bridge"
)

// ModuleName is the global table scripts use to reach the host.
const ModuleName = "wand"

// openModule installs the wand table:
//
//	wand.plugin_name             -- this plugin's name
//	wand.invoke(key, ...)        -- value, err, refs...
//	wand.find_plugin(name)       -- {name, id, version, state} or nil
//	wand.log(level, message)     -- level is debug, info, warn, or error
func (p *Plugin) openModule(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "plugin_name", lua.LString(p.name))
	L.SetField(mod, "invoke", L.NewFunction(p.luaInvoke))
	L.SetField(mod, "find_plugin", L.NewFunction(p.luaFindPlugin))
	L.SetField(mod, "log", L.NewFunction(p.luaLog))
	L.SetGlobal(ModuleName, mod)
}

func (p *Plugin) luaInvoke(L *lua.LState) int {
	key := L.CheckString(1)
	args := make([]any, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, p.fromLua(L.Get(i)))
	}

	if p.env.Bridge == nil {
		L.Push(lua.LNil)
		L.Push(lua.LString("no bridge available"))
		return 2
	}
	res, err := p.env.Bridge.Invoke(bridge.WithCaller(p.callContext(), p.name), key, args...)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(p.toLua(L, res.Value))
	L.Push(lua.LNil)
	for _, ref := range res.Refs {
		L.Push(p.toLua(L, ref))
	}
	return 2 + len(res.Refs)
}

func (p *Plugin) luaFindPlugin(L *lua.LState) int {
	name := L.CheckString(1)
	if p.env.Registry == nil {
		L.Push(lua.LNil)
		return 1
	}
	inst, ok := p.env.Registry.FindByName(name)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	L.SetField(t, "name", lua.LString(inst.Name()))
	L.SetField(t, "id", lua.LString(inst.ID().String()))
	L.SetField(t, "version", lua.LString(inst.Descriptor().Version))
	L.SetField(t, "state", lua.LString(inst.State().String()))
	L.Push(t)
	return 1
}

func (p *Plugin) luaLog(L *lua.LState) int {
	level := strings.ToLower(L.CheckString(1))
	msg := L.CheckString(2)
	switch level {
	case "debug":
		p.logger.Debug(msg)
	case "info":
		p.logger.Info(msg)
	case "warn", "warning":
		p.logger.Warn(msg)
	case "error":
		p.logger.Error(msg)
	default:
		L.ArgError(1, "unknown log level "+level)
	}
	return 0
}
