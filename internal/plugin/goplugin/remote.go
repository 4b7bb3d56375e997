// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/internal/wire"
)

// describeTimeout bounds the Describe call made when exports are published.
const describeTimeout = 5 * time.Second

// Compile-time interface checks.
var (
	_ plugin.Plugin   = (*Remote)(nil)
	_ plugin.Exporter = (*Remote)(nil)
	_ plugin.Releaser = (*Remote)(nil)
)

// Remote is a plugin running in a child process.
//
// Every host-to-plugin call carries a call id. While the call is in flight
// the id maps to the host context it was made under, so Invoke requests the
// plugin sends back during the call continue that context.
type Remote struct {
	name   string
	desc   *plugin.Descriptor
	env    plugin.Env
	logger *slog.Logger

	client PluginClient
	conn   *Conn

	serverID uint32
	server   atomic.Pointer[grpc.Server]
	calls    sync.Map

	describeOnce sync.Once
	methods      []string
	released     atomic.Bool
}

func newRemote(desc *plugin.Descriptor, env plugin.Env, client PluginClient, conn *Conn) *Remote {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default().With("plugin", desc.Name)
	}
	r := &Remote{
		name:   desc.Name,
		desc:   desc,
		env:    env,
		logger: logger,
		client: client,
		conn:   conn,
	}
	r.serveHost()
	return r
}

// serveHost starts the host service on the broker. It stops when the
// broker shuts down or Release stops it.
func (r *Remote) serveHost() {
	if r.conn.broker == nil {
		return
	}
	r.serverID = r.conn.broker.NextId()
	go r.conn.broker.AcceptAndServe(r.serverID, func(opts []grpc.ServerOption) *grpc.Server {
		s := grpc.NewServer(opts...)
		wire.RegisterHostServer(s, &hostService{remote: r})
		r.server.Store(s)
		return s
	})
}

// Name returns the plugin name.
func (r *Remote) Name() string { return r.name }

// track registers ctx under a fresh call id until done is called.
func (r *Remote) track(ctx context.Context) (id string, done func()) {
	id = ulid.Make().String()
	r.calls.Store(id, ctx)
	return id, func() { r.calls.Delete(id) }
}

// parent returns the host context of an in-flight call.
func (r *Remote) parent(callID string) (context.Context, bool) {
	if callID == "" {
		return nil, false
	}
	v, ok := r.calls.Load(callID)
	if !ok {
		return nil, false
	}
	ctx, ok := v.(context.Context)
	return ctx, ok
}

// OnCreate runs the create hook and hands the plugin the host service id.
func (r *Remote) OnCreate(ctx context.Context) error {
	return r.lifecycle(ctx, wire.PhaseCreate, r.serverID)
}

// OnStart runs the start hook.
func (r *Remote) OnStart(ctx context.Context) error { return r.lifecycle(ctx, wire.PhaseStart, 0) }

// OnEnd runs the end hook.
func (r *Remote) OnEnd(ctx context.Context) error { return r.lifecycle(ctx, wire.PhaseEnd, 0) }

// OnDestroy runs the destroy hook.
func (r *Remote) OnDestroy(ctx context.Context) error {
	return r.lifecycle(ctx, wire.PhaseDestroy, 0)
}

func (r *Remote) lifecycle(ctx context.Context, phase string, broker uint32) error {
	if r.released.Load() {
		return oops.In("goplugin").With("plugin", r.name).New("plugin process is gone")
	}
	callID, done := r.track(ctx)
	defer done()

	if _, err := r.conn.client.Lifecycle(ctx, wire.NewLifecycleRequest(phase, callID, broker)); err != nil {
		return remoteError(r.name, phase, err)
	}
	return nil
}

// serves reports whether the plugin process serves method. The method list
// is fetched once.
func (r *Remote) serves(method string) bool {
	r.describeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), describeTimeout)
		defer cancel()
		resp, err := r.conn.client.Describe(ctx, &emptypb.Empty{})
		if err != nil {
			r.logger.Warn("describe failed", "error", err)
			return
		}
		r.methods = wire.ParseDescription(resp)
	})
	return slices.Contains(r.methods, method)
}

// Export returns a native forwarding calls to the plugin process. The
// method must be declared in the descriptor and served by the process.
func (r *Remote) Export(method string) (bridge.NativeFunc, bool) {
	if _, ok := r.desc.Export(method); !ok {
		return nil, false
	}
	if !r.serves(method) {
		return nil, false
	}

	return func(ctx context.Context, call *bridge.Call) (any, error) {
		if r.released.Load() {
			return nil, oops.In("goplugin").With("plugin", r.name).New("plugin process is gone")
		}
		callID, done := r.track(ctx)
		defer done()

		req, err := wire.NewCallRequest(method, callID, call.Args, bridge.IsNone)
		if err != nil {
			return nil, oops.In("goplugin").With("plugin", r.name).With("method", method).Wrap(err)
		}
		resp, err := r.conn.client.Call(ctx, req)
		if err != nil {
			return nil, remoteError(r.name, method, err)
		}

		res := wire.ParseResult(resp)
		for i, v := range res.Refs {
			if err := call.SetRef(i, v); err != nil {
				return nil, err
			}
		}
		if res.Value == nil {
			return bridge.None, nil
		}
		return res.Value, nil
	}, true
}

// Release kills the plugin process and stops the host service.
func (r *Remote) Release() {
	if r.released.Swap(true) {
		return
	}
	if s := r.server.Load(); s != nil {
		s.Stop()
	}
	r.client.Kill()
	r.logger.Debug("plugin process released")
}

// remoteError turns a gRPC status from the plugin into a plain error
// carrying the plugin's message.
func remoteError(name, op string, err error) error {
	st := status.Convert(err)
	return oops.In("goplugin").
		With("plugin", name).
		With("op", op).
		With("status", st.Code().String()).
		New(st.Message())
}
