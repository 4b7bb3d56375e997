// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/wand/internal/config"
	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/internal/plugin/hostfunc"
)

// writePlugin creates dir/name with a manifest and, for Lua plugins, a
// main.lua.
func writePlugin(t *testing.T, root, name, manifest, source string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0o600))
	if source != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.lua"), []byte(source), 0o600))
	}
}

const mathManifest = `name: math
version: 1.2.0
type: lua
lua-plugin:
  entry: main.lua
exports:
  - name: add
    signature: "(int32, int32) -> int32"
`

const mathSource = `function add(a, b) return a + b end`

const calcManifest = `name: calc
version: 0.1.0
type: lua
lua-plugin:
  entry: main.lua
depends:
  - name: math
    version: ">= 1.0"
capabilities:
  - kv.*
exports:
  - name: twice
    signature: "(int32) -> int32"
`

const calcSource = `
function on_start()
  local _, err = wand.invoke("kv.set", "ready", "yes")
  if err then return false, err end
end
function twice(x)
  local v, err = wand.invoke("math.add", x, x)
  if err then error(err) end
  return v
end
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"run", "validate", "list", "schema", "migrate"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRunCommand_Flags(t *testing.T) {
	cmd := newRunCmd()
	for _, name := range []string{"config", "plugins-dir", "log-format", "metrics-addr", "call-timeout", "parallel-load", "watch", "database-url"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestMigrateCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := execute(t, "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestMigrateCommand_RejectsNonPostgresURL(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := execute(t, "migrate", "up", "--database-url", "mysql://db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestHost_UsesGivenKVStore(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "math", mathManifest, mathSource)
	writePlugin(t, root, "calc", calcManifest, calcSource)

	kv := hostfunc.NewMemoryKV()
	h, err := newHost(testConfig(t, root), slog.New(slog.DiscardHandler), withKVStore(kv))
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = h.stop(ctx) })

	require.NoError(t, h.start(ctx))
	got, err := kv.Get(ctx, "calc", "ready")
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), got)
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, out, "lua-plugin")
}

func TestSchemaCommand_Output(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas", "plugin.schema.json")
	out, err := execute(t, "schema", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid plugins", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "math", mathManifest, mathSource)
		writePlugin(t, root, "calc", calcManifest, calcSource)

		out, err := execute(t, "validate", root)
		require.NoError(t, err)
		assert.Contains(t, out, "ok   math 1.2.0")
		assert.Contains(t, out, "ok   calc 0.1.0")
	})

	t.Run("bad manifest and missing dependency", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "broken", "name: Broken\nversion: nope\n", "")
		writePlugin(t, root, "calc", calcManifest, calcSource)

		out, err := execute(t, "validate", root)
		require.Error(t, err)
		assert.Contains(t, out, "FAIL broken")
		assert.Contains(t, out, "FAIL calc")
		assert.Contains(t, err.Error(), "2 plugin(s) failed validation")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, err)
	})
}

func TestListCommand(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "calc", calcManifest, calcSource)
	writePlugin(t, root, "math", mathManifest, mathSource)

	out, err := execute(t, "list", root)
	require.NoError(t, err)

	mathAt := strings.Index(out, "math")
	calcAt := strings.Index(out, "calc")
	require.NotEqual(t, -1, mathAt)
	require.NotEqual(t, -1, calcAt)
	assert.Less(t, mathAt, calcAt, "dependency must be listed first")
	assert.Contains(t, out, ">= 1.0")
}

func TestRenderPlan_Failures(t *testing.T) {
	d := &plugin.Descriptor{Name: "lonely", Version: "1.0.0", Kind: "lua",
		Dependencies: []plugin.Dependency{{Name: "ghost"}}}
	out := renderPlan(plugin.Resolve([]*plugin.Descriptor{d}, nil))
	assert.Contains(t, out, "skipped lonely")
}

func testConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.PluginsDir = dir
	cfg.MetricsAddr = ""
	cfg.LogFormat = "text"
	return cfg
}

func TestHost_StartsDiscoveredPlugins(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "math", mathManifest, mathSource)
	writePlugin(t, root, "calc", calcManifest, calcSource)

	h, err := newHost(testConfig(t, root), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = h.stop(ctx) })

	require.NoError(t, h.start(ctx))
	assert.True(t, h.manager.Ready())

	res, err := h.bridge.Invoke(ctx, "calc.twice", 21)
	require.NoError(t, err)
	assert.Equal(t, int32(42), res.Value)

	assert.Equal(t, []string{"kv.*"}, h.enforcer.Grants("calc"))
	for _, key := range []string{"log", "kv.get", "events.emit"} {
		_, ok := h.bridge.Lookup(key)
		assert.True(t, ok, "host function %s not registered", key)
	}

	require.NoError(t, h.stop(ctx))
	assert.Equal(t, 0, h.manager.Registry().Len())
}

func TestHost_ReportsFailuresButKeepsGoodPlugins(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "math", mathManifest, mathSource)
	writePlugin(t, root, "sulky", `name: sulky
version: 1.0.0
type: lua
lua-plugin:
  entry: main.lua
`, `function on_create() return false, "not today" end`)

	h, err := newHost(testConfig(t, root), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = h.stop(ctx) })

	err = h.start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not today")

	_, ok := h.manager.Registry().FindByName("math")
	assert.True(t, ok)
}

func TestRunHost_ShutsDownWhenContextEnds(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "math", mathManifest, mathSource)

	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runHost(ctx, testConfig(t, root)) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runHost did not return after the context ended")
	}
}
