// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads wand host configuration from a YAML file and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/wand/internal/xdg"
)

// Defaults.
const (
	DefaultLogFormat    = "json"
	DefaultMetricsAddr  = "127.0.0.1:9100"
	DefaultCallTimeout  = 5 * time.Second
	DefaultParallelLoad = 4
	FileName            = "config.yaml"
)

// Config is the host configuration.
type Config struct {
	// PluginsDir holds one subdirectory per plugin.
	PluginsDir string `koanf:"plugins_dir"`
	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`
	// MetricsAddr is where /metrics, /live and /ready are served. Empty
	// disables the endpoint.
	MetricsAddr string `koanf:"metrics_addr"`
	// CallTimeout bounds each bridge invocation. Zero means no bound.
	CallTimeout time.Duration `koanf:"call_timeout"`
	// ParallelLoad is the worker count for loading independent plugins.
	ParallelLoad int `koanf:"parallel_load"`
	// Watch reloads plugins whose files change.
	Watch bool `koanf:"watch"`
	// DatabaseURL selects PostgreSQL for plugin key-value data. Empty keeps
	// the data in memory.
	DatabaseURL string `koanf:"database_url"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		PluginsDir:   xdg.PluginsDir(),
		LogFormat:    DefaultLogFormat,
		MetricsAddr:  DefaultMetricsAddr,
		CallTimeout:  DefaultCallTimeout,
		ParallelLoad: DefaultParallelLoad,
	}
}

// DefaultPath returns the config file looked for when none is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), FileName)
}

// RegisterFlags adds the configuration flags to fs. Flag names use hyphens
// where config keys use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("plugins-dir", d.PluginsDir, "directory containing plugins")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty to disable)")
	fs.Duration("call-timeout", d.CallTimeout, "timeout for each bridge call (0 for none)")
	fs.Int("parallel-load", d.ParallelLoad, "plugins loaded concurrently within a dependency level")
	fs.Bool("watch", d.Watch, "reload plugins when their files change")
	fs.String("database-url", d.DatabaseURL, "PostgreSQL URL for plugin key-value data (empty for in-memory)")
}

// Load builds the configuration: defaults, then the YAML file at path,
// then flags the user set. A missing file is fine when path is the default
// path; an explicitly named file must exist. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.In("config").With("path", path).Hint("failed to parse config file").Wrap(err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return Config{}, oops.In("config").With("path", path).Hint("cannot read config file").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithValue(fs, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.In("config").Hint("failed to read flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.In("config").Hint("invalid configuration value").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.PluginsDir == "" {
		errs = append(errs, errors.New("plugins_dir is required"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("call_timeout must not be negative, got %s", c.CallTimeout))
	}
	if c.ParallelLoad < 1 {
		errs = append(errs, fmt.Errorf("parallel_load must be at least 1, got %d", c.ParallelLoad))
	}
	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, errors.New("database_url must be a postgres:// or postgresql:// URL"))
	}
	if err := errors.Join(errs...); err != nil {
		return oops.In("config").Wrap(err)
	}
	return nil
}
