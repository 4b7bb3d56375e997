// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/wand/internal/config"
	"github.com/holomush/wand/internal/logging"
	"github.com/holomush/wand/internal/observability"
	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/pkg/errutil"
)

// shutdownTimeout bounds plugin teardown after a signal.
const shutdownTimeout = 30 * time.Second

// runConfig holds flags for the run command.
type runConfig struct {
	configFile string
}

// newRunCmd creates the run subcommand with all flags configured.
func newRunCmd() *cobra.Command {
	rc := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load plugins and run until interrupted",
		Long: `Discover plugins in the plugins directory, load and start them in
dependency order, and serve metrics and health probes. On SIGINT or
SIGTERM every plugin is ended, then unloaded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rc.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&rc.configFile, "config", "", "config file path (default "+config.DefaultPath()+")")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runHost runs the plugin host until ctx is done.
func runHost(ctx context.Context, cfg config.Config) error {
	logger := logging.SetDefault(logging.Options{
		Service: "wand",
		Version: version,
		Format:  cfg.LogFormat,
	})

	var opts []hostOption
	if cfg.DatabaseURL != "" {
		kv, err := openStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer kv.Close()
		opts = append(opts, withKVStore(kv))
		logger.Info("plugin key-value data stored in postgres")
	}

	h, err := newHost(cfg, logger, opts...)
	if err != nil {
		return err
	}

	var obs *observability.Server
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, h.manager.Ready, observability.WithLogger(logger))
		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		go func() {
			for err := range errCh {
				errutil.LogError(logger, "observability server failed", err)
			}
		}()
	}

	if err := h.start(ctx); err != nil {
		errutil.LogError(logger, "some plugins failed to start", err)
	}

	if cfg.Watch {
		w, err := plugin.NewWatcher(cfg.PluginsDir, h.manager, plugin.WithWatcherLogger(logger))
		if err != nil {
			errutil.LogError(logger, "plugin watcher unavailable", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					errutil.LogError(logger, "plugin watcher stopped", err)
				}
			}()
			logger.Info("watching plugins for changes", "dir", cfg.PluginsDir)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	stopErr := h.stop(shutdownCtx)
	if stopErr != nil {
		errutil.LogError(logger, "plugin shutdown incomplete", stopErr)
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			errutil.LogError(logger, "observability server shutdown failed", err)
		}
	}
	return stopErr
}
