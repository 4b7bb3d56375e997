// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/pkg/pluginsdk"
)

// Kind is the descriptor kind served by this package.
const Kind = string(plugin.TypeBinary)

// Connection retry defaults.
const (
	DefaultConnectAttempts = 3
	DefaultConnectBackoff  = 100 * time.Millisecond
)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath resolved from plugin manifest; manifests validated during discovery
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		AutoMTLS:         true,
	})
}

// Factory launches binary plugins.
type Factory struct {
	clients  ClientFactory
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

var _ plugin.Factory = (*Factory)(nil)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClientFactory replaces the go-plugin client constructor (for testing).
func WithClientFactory(cf ClientFactory) FactoryOption {
	return func(f *Factory) {
		f.clients = cf
	}
}

// WithConnectRetry sets how many times connecting is attempted and the
// base of the exponential backoff between attempts.
func WithConnectRetry(attempts uint64, base time.Duration) FactoryOption {
	return func(f *Factory) {
		f.attempts = attempts
		f.backoff = base
	}
}

// WithLogger sets the logger used while connecting.
func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// NewFactory creates a binary plugin factory.
// Panics if the client factory is set to nil.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		clients:  &DefaultClientFactory{},
		attempts: DefaultConnectAttempts,
		backoff:  DefaultConnectBackoff,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.clients == nil {
		panic("goplugin: client factory cannot be nil")
	}
	if f.attempts == 0 {
		f.attempts = 1
	}
	return f
}

// New starts the plugin executable and connects to it.
func (f *Factory) New(ctx context.Context, desc *plugin.Descriptor, env plugin.Env) (plugin.Plugin, error) {
	if desc.Manifest == nil || desc.Manifest.BinaryPlugin == nil || desc.Manifest.BinaryPlugin.Executable == "" {
		return nil, oops.In("goplugin").With("plugin", desc.Name).New("plugin is not a binary plugin")
	}
	executable := desc.Manifest.BinaryPlugin.Executable
	execPath := filepath.Join(desc.Dir, executable)
	if rel, err := filepath.Rel(desc.Dir, execPath); err != nil || strings.HasPrefix(rel, "..") {
		return nil, oops.In("goplugin").With("plugin", desc.Name).With("executable", executable).
			New("executable must stay inside the plugin directory")
	}
	if _, err := os.Stat(execPath); err != nil {
		if os.IsNotExist(err) {
			return nil, oops.In("goplugin").With("plugin", desc.Name).With("path", execPath).
				Hint("plugin executable not found").Wrap(err)
		}
		return nil, oops.In("goplugin").With("plugin", desc.Name).With("path", execPath).
			Hint("cannot access plugin executable").Wrap(err)
	}

	s, err := f.connect(ctx, desc.Name, execPath)
	if err != nil {
		return nil, err
	}
	return newRemote(desc, env, s.client, s.conn), nil
}

type session struct {
	client PluginClient
	conn   *Conn
}

// connect starts a fresh client per attempt. Process start and handshake
// failures are retried; a plugin serving the wrong protocol is not.
func (f *Factory) connect(ctx context.Context, name, execPath string) (*session, error) {
	backoff := retry.WithMaxRetries(f.attempts-1, retry.NewExponential(f.backoff))
	attempt := 0
	return retry.DoValue(ctx, backoff, func(_ context.Context) (*session, error) {
		attempt++
		client := f.clients.NewClient(execPath)

		rpcClient, err := client.Client()
		if err != nil {
			client.Kill()
			f.logger.Warn("plugin connect failed",
				"plugin", name,
				"attempt", attempt,
				"error", err)
			return nil, retry.RetryableError(oops.In("goplugin").With("plugin", name).
				Hint("failed to connect to plugin").Wrap(err))
		}

		raw, err := rpcClient.Dispense(pluginsdk.PluginKey)
		if err != nil {
			client.Kill()
			return nil, retry.RetryableError(oops.In("goplugin").With("plugin", name).
				Hint("failed to dispense plugin").Wrap(err))
		}

		conn, ok := raw.(*Conn)
		if !ok || conn == nil {
			client.Kill()
			return nil, oops.In("goplugin").With("plugin", name).
				Wrap(errors.New("plugin does not serve the wand plugin protocol"))
		}
		return &session{client: client, conn: conn}, nil
	})
}
