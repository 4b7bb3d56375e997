// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginsdk provides the SDK for building wand binary plugins.
//
// Binary plugins run as separate processes and talk to the host over gRPC
// using the HashiCorp go-plugin framework. A plugin declares its lifecycle
// hooks and the methods it exports, then hands control to Serve:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/holomush/wand/pkg/pluginsdk"
//	)
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{
//			Name: "greeter",
//			Methods: map[string]pluginsdk.Method{
//				"greet": func(ctx context.Context, call *pluginsdk.Call) (any, error) {
//					name, err := pluginsdk.Arg[string](call, 0)
//					if err != nil {
//						return nil, err
//					}
//					return "hello, " + name, nil
//				},
//			},
//		})
//	}
//
// Methods must also be declared under exports in plugin.yaml; the host
// checks arguments against the declared signature before the call arrives.
// Numbers always arrive as float64.
package pluginsdk

import (
	"context"
	"errors"
	"fmt"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/holomush/wand/internal/wire"
)

// PluginKey is the name the plugin is dispensed under.
const PluginKey = "plugin"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "WAND_PLUGIN",
	MagicCookieValue: "wand-v1",
}

// Hooks are the lifecycle hooks of a plugin. Each runs at most once, in
// order create, start, end, destroy. The Host is reachable from the
// context with HostFrom.
type Hooks interface {
	OnCreate(ctx context.Context) error
	OnStart(ctx context.Context) error
	OnEnd(ctx context.Context) error
	OnDestroy(ctx context.Context) error
}

// NopHooks implements Hooks with no-ops. Embed it to override only some hooks.
type NopHooks struct{}

// OnCreate implements Hooks.
func (NopHooks) OnCreate(context.Context) error { return nil }

// OnStart implements Hooks.
func (NopHooks) OnStart(context.Context) error { return nil }

// OnEnd implements Hooks.
func (NopHooks) OnEnd(context.Context) error { return nil }

// OnDestroy implements Hooks.
func (NopHooks) OnDestroy(context.Context) error { return nil }

// Method implements one exported method.
type Method func(ctx context.Context, call *Call) (any, error)

// Call is one in-flight method call.
type Call struct {
	Method string
	// Args are the decoded arguments: nil, bool, float64, string, or []any.
	Args []any
	refs map[int]any
}

// SetRef sets the new value of by-reference parameter i. The host checks
// that parameter i is declared as a reference.
func (c *Call) SetRef(i int, v any) {
	if c.refs == nil {
		c.refs = make(map[int]any)
	}
	c.refs[i] = v
}

// Arg returns argument i as T.
func Arg[T any](c *Call, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(c.Args) {
		return zero, fmt.Errorf("%s: argument %d out of range", c.Method, i)
	}
	v, ok := c.Args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%s: argument %d is %T, not %T", c.Method, i, c.Args[i], zero)
	}
	return v, nil
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Name is reported to the host in Describe replies.
	Name string
	// Hooks is optional; nil means every hook succeeds.
	Hooks Hooks
	// Methods maps exported method names to their implementations.
	Methods map[string]Method
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginSet(NewServer(config)),
		GRPCServer:      hashiplug.DefaultGRPCServer,
	})
}

// PluginSet returns the go-plugin plugin map serving srv.
func PluginSet(srv *Server) hashiplug.PluginSet {
	return hashiplug.PluginSet{PluginKey: &grpcPlugin{server: srv}}
}

// grpcPlugin implements go-plugin's Plugin interface for gRPC.
type grpcPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	server *Server
}

// GRPCServer registers the plugin server (called by plugin process).
func (p *grpcPlugin) GRPCServer(broker *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.server == nil {
		return errors.New("pluginsdk: server is nil")
	}
	p.server.UseBroker(broker)
	wire.RegisterPluginServer(s, p.server)
	return nil
}

// GRPCClient returns a plugin client (called by host process).
func (p *grpcPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (any, error) {
	return wire.NewPluginClient(c), nil
}
