// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/config"
	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/internal/plugin/capability"
	"github.com/holomush/wand/internal/plugin/goplugin"
	"github.com/holomush/wand/internal/plugin/hostfunc"
	pluginlua "github.com/holomush/wand/internal/plugin/lua"
	"github.com/holomush/wand/internal/store"
)

// host wires the bridge, the built-in natives, and the lifecycle manager.
type host struct {
	cfg       config.Config
	logger    *slog.Logger
	bridge    *bridge.Bridge
	enforcer  *capability.Enforcer
	functions *hostfunc.Functions
	manager   *plugin.Manager
}

// hostOption adjusts host assembly.
type hostOption func(*hostParts)

type hostParts struct {
	factories map[string]plugin.Factory
	kv        hostfunc.KVStore
}

func withFactory(kind string, f plugin.Factory) hostOption {
	return func(p *hostParts) {
		p.factories[kind] = f
	}
}

func withKVStore(kv hostfunc.KVStore) hostOption {
	return func(p *hostParts) {
		p.kv = kv
	}
}

func newHost(cfg config.Config, logger *slog.Logger, opts ...hostOption) (*host, error) {
	parts := &hostParts{factories: map[string]plugin.Factory{
		pluginlua.Kind: pluginlua.NewFactory(),
		goplugin.Kind:  goplugin.NewFactory(goplugin.WithLogger(logger)),
	}}
	for _, opt := range opts {
		opt(parts)
	}

	enforcer := capability.NewEnforcer(capability.WithLogger(logger))
	b := bridge.New(
		bridge.WithGuard(enforcer),
		bridge.WithLogger(logger),
		bridge.WithCallTimeout(cfg.CallTimeout))

	registry := plugin.NewRegistry()
	fopts := []hostfunc.Option{hostfunc.WithLookup(registry), hostfunc.WithLogger(logger)}
	if parts.kv != nil {
		fopts = append(fopts, hostfunc.WithKVStore(parts.kv))
	}
	functions := hostfunc.New(fopts...)
	if err := functions.Register(b); err != nil {
		return nil, oops.In("wand").Hint("failed to register host functions").Wrap(err)
	}

	mopts := []plugin.ManagerOption{
		plugin.WithRegistry(registry),
		plugin.WithGranter(enforcer),
		plugin.WithObserver(functions),
		plugin.WithManagerLogger(logger),
		plugin.WithParallelLoad(cfg.ParallelLoad),
	}
	for kind, f := range parts.factories {
		mopts = append(mopts, plugin.WithFactory(kind, f))
	}

	return &host{
		cfg:       cfg,
		logger:    logger,
		bridge:    b,
		enforcer:  enforcer,
		functions: functions,
		manager:   plugin.NewManager(b, mopts...),
	}, nil
}

// start discovers, loads, and starts every plugin under the plugins
// directory. Individual plugin failures are logged and returned joined;
// the host keeps running with the plugins that made it.
func (h *host) start(ctx context.Context) error {
	descs, err := plugin.Discover(h.cfg.PluginsDir, h.logger)
	if err != nil {
		return oops.In("wand").With("dir", h.cfg.PluginsDir).Wrap(err)
	}
	h.logger.Info("plugins discovered", "dir", h.cfg.PluginsDir, "count", len(descs))

	loaded, loadErr := h.manager.LoadAll(ctx, descs)
	startErr := h.manager.StartAll(ctx)
	h.logger.Info("plugins started",
		"loaded", len(loaded),
		"bindings", len(h.bridge.Keys()))
	if loadErr != nil || startErr != nil {
		return oops.In("wand").Wrap(errors.Join(loadErr, startErr))
	}
	return nil
}

// openStore migrates the database at url to the latest schema and opens
// the key-value store on it.
func openStore(ctx context.Context, url string, logger *slog.Logger) (*store.PostgresKV, error) {
	migrator, err := store.NewMigrator(url)
	if err != nil {
		return nil, err
	}
	pending, err := migrator.Pending()
	if err == nil && len(pending) > 0 {
		logger.Info("applying migrations", "count", len(pending))
		err = migrator.Up()
	}
	if closeErr := migrator.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, url)
}

// stop ends then unloads every plugin.
func (h *host) stop(ctx context.Context) error {
	return h.manager.Shutdown(ctx)
}
