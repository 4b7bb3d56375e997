// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package integration runs plugins end to end through the bridge and the
// lifecycle manager.
package integration

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/internal/plugin/capability"
	"github.com/holomush/wand/internal/plugin/goplugin"
	"github.com/holomush/wand/internal/plugin/hostfunc"
	pluginlua "github.com/holomush/wand/internal/plugin/lua"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

// testHost is a fully wired host over a temporary plugins directory.
type testHost struct {
	root      string
	bridge    *bridge.Bridge
	enforcer  *capability.Enforcer
	functions *hostfunc.Functions
	manager   *plugin.Manager
}

func newTestHost() *testHost {
	logger := slog.New(slog.DiscardHandler)
	enforcer := capability.NewEnforcer(capability.WithLogger(logger))
	b := bridge.New(
		bridge.WithGuard(enforcer),
		bridge.WithLogger(logger),
		bridge.WithCallTimeout(10*time.Second))

	registry := plugin.NewRegistry()
	functions := hostfunc.New(hostfunc.WithLookup(registry), hostfunc.WithLogger(logger))
	Expect(functions.Register(b)).To(Succeed())

	m := plugin.NewManager(b,
		plugin.WithRegistry(registry),
		plugin.WithFactory(pluginlua.Kind, pluginlua.NewFactory()),
		plugin.WithFactory(goplugin.Kind, goplugin.NewFactory(goplugin.WithLogger(logger))),
		plugin.WithGranter(enforcer),
		plugin.WithObserver(functions),
		plugin.WithManagerLogger(logger))

	h := &testHost{
		root:      GinkgoT().TempDir(),
		bridge:    b,
		enforcer:  enforcer,
		functions: functions,
		manager:   m,
	}
	DeferCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return h
}

// write puts files (relative name to content) into the plugin directory dir.
func (h *testHost) write(dir string, files map[string]string) {
	GinkgoHelper()
	path := filepath.Join(h.root, dir)
	Expect(os.MkdirAll(path, 0o750)).To(Succeed())
	for name, content := range files {
		Expect(os.WriteFile(filepath.Join(path, name), []byte(content), 0o600)).To(Succeed())
	}
}

// boot discovers, loads, and starts everything under the root.
func (h *testHost) boot(ctx context.Context) error {
	descs, err := plugin.Discover(h.root, slog.New(slog.DiscardHandler))
	Expect(err).NotTo(HaveOccurred())
	if _, err := h.manager.LoadAll(ctx, descs); err != nil {
		return err
	}
	return h.manager.StartAll(ctx)
}

func (h *testHost) instance(name string) *plugin.Instance {
	GinkgoHelper()
	inst, ok := h.manager.Registry().FindByName(name)
	Expect(ok).To(BeTrue(), "plugin %s is not registered", name)
	return inst
}
