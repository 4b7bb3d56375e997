// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginsdk

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/holomush/wand/internal/wire"
)

// ErrNoHost is returned when a plugin calls the host before the create
// hook, or outside a hook or method.
var ErrNoHost = errors.New("pluginsdk: host is not connected")

type (
	hostKey   struct{}
	callIDKey struct{}
)

// Host calls back into the host process.
type Host struct {
	client *wire.HostClient
	conn   *grpc.ClientConn
}

func newHost(conn *grpc.ClientConn) *Host {
	return &Host{client: wire.NewHostClient(conn), conn: conn}
}

// HostFrom returns the host client available to hooks and methods.
func HostFrom(ctx context.Context) (*Host, bool) {
	h, ok := ctx.Value(hostKey{}).(*Host)
	return h, ok && h != nil
}

// Result is the outcome of a host invocation.
type Result struct {
	Value any
	// Refs are the final values of by-reference parameters in order.
	Refs []any
}

// PluginInfo describes a live plugin.
type PluginInfo = wire.PluginInfo

// Invoke calls a bridge binding, such as a host native or another plugin's
// export. Pass the context the hook or method received so the host can
// tie the call to the one it is serving.
func (h *Host) Invoke(ctx context.Context, key string, args ...any) (Result, error) {
	if h == nil {
		return Result{}, ErrNoHost
	}
	callID, _ := ctx.Value(callIDKey{}).(string)
	req, err := wire.NewInvokeRequest(key, callID, args)
	if err != nil {
		return Result{}, err
	}
	resp, err := h.client.Invoke(ctx, req)
	if err != nil {
		return Result{}, err
	}

	res := wire.ParseResult(resp)
	out := Result{Value: res.Value}
	for i := range len(res.Refs) {
		out.Refs = append(out.Refs, res.Refs[i])
	}
	return out, nil
}

// FindPlugin looks up a live plugin by name.
func (h *Host) FindPlugin(ctx context.Context, name string) (PluginInfo, bool, error) {
	if h == nil {
		return PluginInfo{}, false, ErrNoHost
	}
	resp, err := h.client.FindPlugin(ctx, wire.NewFindPluginRequest(name))
	if err != nil {
		return PluginInfo{}, false, err
	}
	info, ok := wire.ParsePluginInfo(resp)
	return info, ok, nil
}

// Log writes message to the host log at level.
func (h *Host) Log(ctx context.Context, level, message string) error {
	_, err := h.Invoke(ctx, "log", level, message)
	return err
}

// Close releases the connection to the host.
func (h *Host) Close() error {
	if h == nil || h.conn == nil {
		return nil
	}
	return h.conn.Close()
}
