// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package wire defines the gRPC services spoken between the host and binary
// plugins. Messages are protobuf well-known types so neither side needs
// generated code: requests and replies are structpb.Struct values with the
// fields documented on each constructor.
package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified service names.
const (
	PluginServiceName = "wand.plugin.v1.Plugin"
	HostServiceName   = "wand.host.v1.Host"
)

// Full method names.
const (
	PluginLifecycleMethod = "/" + PluginServiceName + "/Lifecycle"
	PluginDescribeMethod  = "/" + PluginServiceName + "/Describe"
	PluginCallMethod      = "/" + PluginServiceName + "/Call"
	HostInvokeMethod      = "/" + HostServiceName + "/Invoke"
	HostFindPluginMethod  = "/" + HostServiceName + "/FindPlugin"
)

// PluginServer is served by the plugin process.
type PluginServer interface {
	// Lifecycle runs one hook. See NewLifecycleRequest.
	Lifecycle(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	// Describe lists the methods the plugin can serve. See NewDescription.
	Describe(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Call runs one exported method. See NewCallRequest and NewResult.
	Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// HostServer is served by the host to each plugin over the go-plugin broker.
type HostServer interface {
	// Invoke calls a bridge binding. See NewInvokeRequest and NewResult.
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// FindPlugin looks up a live plugin. See NewPluginInfo.
	FindPlugin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// PluginServiceDesc describes wand.plugin.v1.Plugin.
var PluginServiceDesc = grpc.ServiceDesc{
	ServiceName: PluginServiceName,
	HandlerType: (*PluginServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lifecycle", Handler: pluginLifecycleHandler},
		{MethodName: "Describe", Handler: pluginDescribeHandler},
		{MethodName: "Call", Handler: pluginCallHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wand/plugin/v1/plugin.proto",
}

// HostServiceDesc describes wand.host.v1.Host.
var HostServiceDesc = grpc.ServiceDesc{
	ServiceName: HostServiceName,
	HandlerType: (*HostServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: hostInvokeHandler},
		{MethodName: "FindPlugin", Handler: hostFindPluginHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wand/host/v1/host.proto",
}

// RegisterPluginServer registers srv on s.
func RegisterPluginServer(s grpc.ServiceRegistrar, srv PluginServer) {
	s.RegisterService(&PluginServiceDesc, srv)
}

// RegisterHostServer registers srv on s.
func RegisterHostServer(s grpc.ServiceRegistrar, srv HostServer) {
	s.RegisterService(&HostServiceDesc, srv)
}

// unary builds a method handler from a typed call.
func unary[Req any, Resp any](
	method string,
	newReq func() *Req,
	call func(srv any, ctx context.Context, req *Req) (Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		})
	}
}

var (
	pluginLifecycleHandler = unary(PluginLifecycleMethod, newStruct,
		func(srv any, ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
			return srv.(PluginServer).Lifecycle(ctx, req)
		})
	pluginDescribeHandler = unary(PluginDescribeMethod, newEmpty,
		func(srv any, ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
			return srv.(PluginServer).Describe(ctx, req)
		})
	pluginCallHandler = unary(PluginCallMethod, newStruct,
		func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(PluginServer).Call(ctx, req)
		})
	hostInvokeHandler = unary(HostInvokeMethod, newStruct,
		func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(HostServer).Invoke(ctx, req)
		})
	hostFindPluginHandler = unary(HostFindPluginMethod, newStruct,
		func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(HostServer).FindPlugin(ctx, req)
		})
)

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty    { return &emptypb.Empty{} }

// PluginClient calls wand.plugin.v1.Plugin.
type PluginClient struct {
	cc grpc.ClientConnInterface
}

// NewPluginClient creates a client over cc.
func NewPluginClient(cc grpc.ClientConnInterface) *PluginClient {
	return &PluginClient{cc: cc}
}

// Lifecycle implements the plugin service's Lifecycle method.
func (c *PluginClient) Lifecycle(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, PluginLifecycleMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Describe implements the plugin service's Describe method.
func (c *PluginClient) Describe(ctx context.Context, req *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PluginDescribeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Call implements the plugin service's Call method.
func (c *PluginClient) Call(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PluginCallMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HostClient calls wand.host.v1.Host.
type HostClient struct {
	cc grpc.ClientConnInterface
}

// NewHostClient creates a client over cc.
func NewHostClient(cc grpc.ClientConnInterface) *HostClient {
	return &HostClient{cc: cc}
}

// Invoke implements the host service's Invoke method.
func (c *HostClient) Invoke(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, HostInvokeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FindPlugin implements the host service's FindPlugin method.
func (c *HostClient) FindPlugin(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, HostFindPluginMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
