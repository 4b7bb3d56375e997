// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package goplugin runs binary plugins as child processes using HashiCorp's
// go-plugin system over gRPC.
package goplugin

import (
	"context"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/holomush/wand/internal/wire"
	"github.com/holomush/wand/pkg/pluginsdk"
)

// HandshakeConfig is imported from pluginsdk to ensure host and plugins
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = pluginsdk.HandshakeConfig

// PluginMap is the map of plugins the host can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	pluginsdk.PluginKey: &GRPCPlugin{},
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is used by the plugin side (not used by host).
	Impl wire.PluginServer
}

// brokerUser is implemented by plugin servers that call back into the host.
type brokerUser interface {
	UseBroker(b *hashiplug.GRPCBroker)
}

// GRPCServer registers the plugin server (called by plugin process).
func (p *GRPCPlugin) GRPCServer(broker *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("goplugin: plugin implementation is nil")
	}
	if u, ok := p.Impl.(brokerUser); ok {
		u.UseBroker(broker)
	}
	wire.RegisterPluginServer(s, p.Impl)
	return nil
}

// GRPCClient returns the host's end of the connection (called by host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, broker *hashiplug.GRPCBroker, c *grpc.ClientConn) (any, error) {
	return &Conn{client: wire.NewPluginClient(c), broker: broker}, nil
}

// Conn is a dispensed connection to a plugin process.
type Conn struct {
	client *wire.PluginClient
	broker *hashiplug.GRPCBroker
}
