// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginsdk

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/holomush/wand/internal/wire"
)

// Server serves the plugin side of the wire protocol.
//
// Server is safe for concurrent use; the host may call methods concurrently.
type Server struct {
	config *ServeConfig
	hooks  Hooks
	broker *hashiplug.GRPCBroker
	host   *Host
	mu     sync.RWMutex
}

var _ wire.PluginServer = (*Server)(nil)

// NewServer creates a server for config. Panics if config is nil.
func NewServer(config *ServeConfig) *Server {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	hooks := config.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Server{config: config, hooks: hooks}
}

// UseBroker sets the broker used to reach the host service.
func (s *Server) UseBroker(b *hashiplug.GRPCBroker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker = b
}

// Host returns the host client, or nil before the create hook ran.
func (s *Server) Host() *Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

func (s *Server) connectHost(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host != nil || id == 0 || s.broker == nil {
		return nil
	}
	conn, err := s.broker.Dial(id)
	if err != nil {
		return fmt.Errorf("dial host service: %w", err)
	}
	s.host = newHost(conn)
	return nil
}

// Lifecycle implements wire.PluginServer.
func (s *Server) Lifecycle(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	r := wire.ParseLifecycleRequest(req)
	if r.Phase == wire.PhaseCreate {
		if err := s.connectHost(r.Broker); err != nil {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
	}

	var hook func(context.Context) error
	switch r.Phase {
	case wire.PhaseCreate:
		hook = s.hooks.OnCreate
	case wire.PhaseStart:
		hook = s.hooks.OnStart
	case wire.PhaseEnd:
		hook = s.hooks.OnEnd
	case wire.PhaseDestroy:
		hook = s.hooks.OnDestroy
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown phase %q", r.Phase)
	}

	if err := safely(func() error { return hook(s.callContext(ctx, r.CallID)) }); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Describe implements wire.PluginServer.
func (s *Server) Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	methods := slices.Sorted(maps.Keys(s.config.Methods))
	return wire.NewDescription(s.config.Name, methods), nil
}

// Call implements wire.PluginServer.
func (s *Server) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := wire.ParseCallRequest(req)
	method, ok := s.config.Methods[r.Method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %q is not served", r.Method)
	}

	call := &Call{Method: r.Method, Args: r.Args}
	var value any
	err := safely(func() error {
		var err error
		value, err = method(s.callContext(ctx, r.CallID), call)
		return err
	})
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	res, err := wire.NewResult(value, call.refs, nil)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%s: encode result: %v", r.Method, err)
	}
	return res, nil
}

func (s *Server) callContext(ctx context.Context, callID string) context.Context {
	ctx = context.WithValue(ctx, callIDKey{}, callID)
	if h := s.Host(); h != nil {
		ctx = context.WithValue(ctx, hostKey{}, h)
	}
	return ctx
}

// safely runs fn, turning a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
