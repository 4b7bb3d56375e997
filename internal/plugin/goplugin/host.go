// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/wire"
)

// hostService serves the host side of the wire protocol to one plugin.
type hostService struct {
	remote *Remote
}

var _ wire.HostServer = (*hostService)(nil)

// Invoke calls a bridge binding on behalf of the plugin. When the request
// names a call the host is waiting on, the binding runs under that call's
// context so cancellation and re-entrancy carry across the process boundary.
func (h *hostService) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := h.remote
	if r.env.Bridge == nil {
		return nil, status.Error(codes.Unavailable, "no bridge available")
	}
	in := wire.ParseInvokeRequest(req)

	callCtx := ctx
	if parent, ok := r.parent(in.CallID); ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithCancel(parent)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}

	res, err := r.env.Bridge.Invoke(bridge.WithCaller(callCtx, r.name), in.Method, in.Args...)
	if err != nil {
		return nil, status.Error(statusCode(err), err.Error())
	}

	refs := make(map[int]any, len(res.Refs))
	for i, v := range res.Refs {
		refs[i] = v
	}
	out, err := wire.NewResult(res.Value, refs, bridge.IsNone)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%s: encode result: %v", in.Method, err)
	}
	return out, nil
}

// FindPlugin looks up a live plugin by name.
func (h *hostService) FindPlugin(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	lookup := h.remote.env.Registry
	if lookup == nil {
		return wire.NewPluginInfo(nil), nil
	}
	inst, ok := lookup.FindByName(wire.NameOf(req))
	if !ok {
		return wire.NewPluginInfo(nil), nil
	}
	return wire.NewPluginInfo(&wire.PluginInfo{
		Name:    inst.Name(),
		ID:      inst.ID().String(),
		Version: inst.Descriptor().Version,
		State:   inst.State().String(),
	}), nil
}

// statusCode maps bridge error codes onto gRPC codes.
func statusCode(err error) codes.Code {
	switch {
	case bridge.IsCode(err, bridge.CodeUnresolvedBinding):
		return codes.NotFound
	case bridge.IsCode(err, bridge.CodeCapabilityDenied):
		return codes.PermissionDenied
	case bridge.IsCode(err, bridge.CodeArgumentShape):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}
