// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/plugin"
)

func luaManifest(name, extra string) string {
	return "name: " + name + "\nversion: 1.0.0\ntype: lua\nlua-plugin:\n  entry: main.lua\n" + extra
}

var _ = Describe("Lua plugins", func() {
	var (
		h   *testHost
		ctx context.Context
	)

	BeforeEach(func() {
		h = newTestHost()
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	Describe("exports", func() {
		It("adds through the bridge", func() {
			h.write("math", map[string]string{
				"plugin.yaml": luaManifest("math", "exports:\n  - name: add\n    signature: \"(int32, int32) -> int32\"\n"),
				"main.lua":    "function add(a, b) return a + b end",
			})
			Expect(h.boot(ctx)).To(Succeed())

			res, err := h.bridge.Invoke(ctx, "math.add", 2, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Value).To(Equal(int32(5)))
		})

		It("rejects arguments that do not fit the signature", func() {
			h.write("math", map[string]string{
				"plugin.yaml": luaManifest("math", "exports:\n  - name: add\n    signature: \"(int32, int32) -> int32\"\n"),
				"main.lua":    "function add(a, b) return a + b end",
			})
			Expect(h.boot(ctx)).To(Succeed())

			_, err := h.bridge.Invoke(ctx, "math.add", 2)
			Expect(bridge.IsCode(err, bridge.CodeArgumentShape)).To(BeTrue())
		})
	})

	Describe("dependency ordering", func() {
		It("creates and starts dependencies first", func() {
			h.write("base", map[string]string{
				"plugin.yaml": luaManifest("base", ""),
				"main.lua":    "",
			})
			h.write("app", map[string]string{
				"plugin.yaml": luaManifest("app", "depends:\n  - name: base\n    version: \">= 1.0\"\n"),
				"main.lua": `
function on_create()
  local base = wand.find_plugin("base")
  if base == nil or base.state ~= "created" then return false, "base not created" end
end
function on_start()
  local base = wand.find_plugin("base")
  if base.state ~= "started" then return false, "base not started: " .. base.state end
end
`,
			})
			Expect(h.boot(ctx)).To(Succeed())

			names := make([]string, 0, 2)
			for _, inst := range h.manager.Instances() {
				names = append(names, inst.Name())
			}
			Expect(names).To(Equal([]string{"base", "app"}))
			Expect(h.instance("app").State()).To(Equal(plugin.StateStarted))
		})

		It("skips plugins whose dependency is missing", func() {
			h.write("orphan", map[string]string{
				"plugin.yaml": luaManifest("orphan", "depends:\n  - name: ghost\n"),
				"main.lua":    "",
			})
			err := h.boot(ctx)
			Expect(plugin.IsCode(err, plugin.CodeMissingDependency)).To(BeTrue())
			Expect(h.manager.Registry().Len()).To(BeZero())
		})
	})

	Describe("find_plugin", func() {
		It("reports live plugins and nil for unknown names", func() {
			h.write("probe", map[string]string{
				"plugin.yaml": luaManifest("probe", "exports:\n  - name: look\n    signature: \"(string) -> string\"\n"),
				"main.lua": `
function look(name)
  local p = wand.find_plugin(name)
  if p == nil then return "absent" end
  return p.name .. "@" .. p.version .. ":" .. p.state
end
`,
			})
			Expect(h.boot(ctx)).To(Succeed())

			res, err := h.bridge.Invoke(ctx, "probe.look", "probe")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Value).To(Equal("probe@1.0.0:started"))

			res, err = h.bridge.Invoke(ctx, "probe.look", "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Value).To(Equal("absent"))
		})
	})

	Describe("unload", func() {
		It("removes exports and rejects a second unload", func() {
			h.write("math", map[string]string{
				"plugin.yaml": luaManifest("math", "exports:\n  - name: add\n    signature: \"(int32, int32) -> int32\"\n"),
				"main.lua":    "function add(a, b) return a + b end",
			})
			Expect(h.boot(ctx)).To(Succeed())
			inst := h.instance("math")

			Expect(h.manager.End(ctx, inst)).To(Succeed())
			Expect(h.manager.Unload(ctx, inst)).To(Succeed())
			Expect(inst.State()).To(Equal(plugin.StateDestroyed))

			err := h.manager.Unload(ctx, inst)
			Expect(plugin.IsCode(err, plugin.CodeInvalidTransition)).To(BeTrue())

			_, err = h.bridge.Invoke(ctx, "math.add", 1, 1)
			Expect(bridge.IsCode(err, bridge.CodeUnresolvedBinding)).To(BeTrue())
		})
	})

	Describe("re-entrancy", func() {
		It("lets a call chain come back into the plugin that started it", func() {
			h.write("ping", map[string]string{
				"plugin.yaml": luaManifest("ping", `exports:
  - name: bounce
    signature: "(int32) -> int32"
  - name: leaf
    signature: "(int32) -> int32"
`),
				"main.lua": `
function bounce(n)
  local v, err = wand.invoke("pong.back", n)
  if err then error(err) end
  return v
end
function leaf(n) return n + 1 end
`,
			})
			h.write("pong", map[string]string{
				"plugin.yaml": luaManifest("pong", "exports:\n  - name: back\n    signature: \"(int32) -> int32\"\n"),
				"main.lua": `
function back(n)
  local v, err = wand.invoke("ping.leaf", n * 10)
  if err then error(err) end
  return v
end
`,
			})
			Expect(h.boot(ctx)).To(Succeed())

			res, err := h.bridge.Invoke(ctx, "ping.bounce", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Value).To(Equal(int32(41)))
		})
	})

	Describe("capabilities", func() {
		It("denies host functions the manifest did not ask for", func() {
			h.write("nosy", map[string]string{
				"plugin.yaml": luaManifest("nosy", "exports:\n  - name: peek\n    signature: \"() -> string\"\n"),
				"main.lua": `
function peek()
  local _, err = wand.invoke("kv.get", "secret")
  return err or "allowed"
end
`,
			})
			Expect(h.boot(ctx)).To(Succeed())

			res, err := h.bridge.Invoke(ctx, "nosy.peek")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Value).To(ContainSubstring("kv.read"))
		})
	})

	Describe("reload", func() {
		It("keeps key-value data across a reload", func() {
			h.write("counter", map[string]string{
				"plugin.yaml": luaManifest("counter", `capabilities:
  - kv.*
exports:
  - name: increment
    signature: "() -> int32"
`),
				"main.lua": `
function increment()
  local v = wand.invoke("kv.get", "count")
  local n = (tonumber(v) or 0) + 1
  wand.invoke("kv.set", "count", tostring(n))
  return n
end
`,
			})
			Expect(h.boot(ctx)).To(Succeed())

			_, err := h.bridge.Invoke(ctx, "counter.increment")
			Expect(err).NotTo(HaveOccurred())

			before := h.instance("counter")
			after, err := h.manager.Reload(ctx, "counter")
			Expect(err).NotTo(HaveOccurred())
			Expect(after.ID()).NotTo(Equal(before.ID()))
			Expect(before.State()).To(Equal(plugin.StateDestroyed))

			res, err := h.bridge.Invoke(ctx, "counter.increment")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Value).To(Equal(int32(2)))
		})
	})
})
