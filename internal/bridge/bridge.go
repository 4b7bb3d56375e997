// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package bridge resolves and invokes functions across the host/plugin
// boundary by stable key.
//
// Every value crossing the boundary is marshaled against the binding's
// Signature before the native function runs, so shape mismatches surface as
// ARGUMENT_SHAPE errors instead of reaching native code. Native failures,
// including panics, are caught at the boundary and returned as
// NATIVE_INVOCATION errors.
//
// Host natives are registered once at startup with RegisterNative. Plugins
// publish their own callable methods with Export; those bindings belong to
// the plugin and are dropped with Revoke when it is unloaded.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"
)

// NativeFunc is the Go implementation behind a binding. Arguments in call
// are already marshaled to their canonical Go types.
type NativeFunc func(ctx context.Context, call *Call) (any, error)

// Guard decides whether a plugin holds a capability.
type Guard interface {
	Check(plugin, capability string) bool
}

// Binding is a registered key -> native function association. Bindings are
// immutable once registered.
type Binding struct {
	key        string
	sig        Signature
	fn         NativeFunc
	owner      string
	capability string
}

// Key returns the binding key.
func (b *Binding) Key() string { return b.key }

// Signature returns the argument and return shape.
func (b *Binding) Signature() Signature { return b.sig }

// Owner returns the plugin that exported the binding, or "" for host natives.
func (b *Binding) Owner() string { return b.owner }

// Capability returns the capability callers must hold, or "".
func (b *Binding) Capability() string { return b.capability }

// BindingOption configures a binding at registration.
type BindingOption func(*Binding)

// WithCapability requires callers to hold capability.
func WithCapability(capability string) BindingOption {
	return func(b *Binding) {
		b.capability = capability
	}
}

// Call is a single in-flight invocation.
type Call struct {
	binding *Binding
	caller  string
	// Args holds the marshaled arguments, one per signature parameter.
	Args []any
	refs []any
}

// Key returns the invoked key.
func (c *Call) Key() string { return c.binding.key }

// Caller returns the calling plugin, or "" when the host is calling.
func (c *Call) Caller() string { return c.caller }

// SetRef overwrites the by-reference parameter at index i. The value is
// marshaled against the parameter type and returned to the caller in
// Result.Refs.
func (c *Call) SetRef(i int, v any) error {
	if i < 0 || i >= len(c.binding.sig.Params) || !c.binding.sig.Params[i].Ref {
		return fmt.Errorf("parameter %d of %s is not a reference", i, c.binding.key)
	}
	val, err := Marshal(c.binding.sig.Params[i].Type, v)
	if err != nil {
		return fmt.Errorf("parameter %d of %s: %w", i, c.binding.key, err)
	}
	c.refs[i] = val
	return nil
}

// Arg returns argument i converted to T. It panics if the argument has a
// different type, which the bridge turns into a NATIVE_INVOCATION error.
func Arg[T any](c *Call, i int) T {
	v, ok := c.Args[i].(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("argument %d of %s is %T, not %T", i, c.binding.key, c.Args[i], zero))
	}
	return v
}

// Result is the marshaled outcome of a successful invocation.
type Result struct {
	// Value is the return value, or None for void bindings and absent results.
	Value any
	// Refs holds the final values of by-reference parameters in parameter order.
	Refs []any
}

// Bridge resolves and invokes bindings.
//
// Bridge is safe for concurrent use.
type Bridge struct {
	bindings    map[string]*Binding
	guard       Guard
	logger      *slog.Logger
	callTimeout time.Duration
	mu          sync.RWMutex
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithGuard sets the capability guard consulted for bindings registered
// WithCapability. Without a guard such bindings are callable by anyone.
func WithGuard(g Guard) Option {
	return func(b *Bridge) {
		b.guard = g
	}
}

// WithLogger sets the logger used for invocation failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithCallTimeout bounds the context passed to natives. Natives that honor
// their context stop early; the bridge itself never abandons a call.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.callTimeout = d
	}
}

// New creates an empty bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		bindings: make(map[string]*Binding),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterNative binds key to a host native function.
func (b *Bridge) RegisterNative(key string, fn NativeFunc, sig Signature, opts ...BindingOption) error {
	return b.add("", key, fn, sig, opts)
}

// Export binds key to a function provided by plugin owner.
func (b *Bridge) Export(owner, key string, fn NativeFunc, sig Signature) error {
	if owner == "" {
		return oops.In("bridge").With("key", key).New("export requires an owner")
	}
	return b.add(owner, key, fn, sig, nil)
}

func (b *Bridge) add(owner, key string, fn NativeFunc, sig Signature, opts []BindingOption) error {
	if key == "" {
		return oops.In("bridge").New("binding key cannot be empty")
	}
	if fn == nil {
		return oops.In("bridge").With("key", key).New("binding function cannot be nil")
	}
	if err := sig.Validate(); err != nil {
		return err
	}

	binding := &Binding{
		key:   key,
		sig:   cloneSignature(sig),
		fn:    fn,
		owner: owner,
	}
	for _, opt := range opts {
		opt(binding)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.bindings[key]; ok {
		return ErrDuplicateBinding(key)
	}
	b.bindings[key] = binding
	return nil
}

// Revoke removes every binding exported by owner and returns their keys.
func (b *Bridge) Revoke(owner string) []string {
	if owner == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []string
	for key, binding := range b.bindings {
		if binding.owner == owner {
			delete(b.bindings, key)
			removed = append(removed, key)
		}
	}
	slices.Sort(removed)
	return removed
}

// Lookup returns the binding for key.
func (b *Bridge) Lookup(key string) (*Binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	binding, ok := b.bindings[key]
	return binding, ok
}

// Keys returns all registered keys in sorted order.
func (b *Bridge) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.bindings))
	for key := range b.bindings {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Callback returns a Callback that invokes key. Resolution happens on each
// call, so the callback fails cleanly once the binding is revoked.
func (b *Bridge) Callback(key string) Callback {
	return func(ctx context.Context, args ...any) (any, error) {
		res, err := b.Invoke(ctx, key, args...)
		if err != nil {
			return nil, err
		}
		return res.Value, nil
	}
}

// Invoke resolves key, marshals args against its signature, calls the
// native function, and marshals the result back.
func (b *Bridge) Invoke(ctx context.Context, key string, args ...any) (Result, error) {
	binding, ok := b.Lookup(key)
	if !ok {
		recordInvocation(UnresolvedKey, StatusUnresolved)
		return Result{}, ErrUnresolvedBinding(key)
	}

	caller := CallerFrom(ctx)
	if binding.capability != "" && b.guard != nil && !b.guard.Check(caller, binding.capability) {
		recordInvocation(key, StatusDenied)
		return Result{}, ErrCapabilityDenied(key, caller, binding.capability)
	}

	call, err := b.prepare(binding, caller, args)
	if err != nil {
		recordInvocation(key, StatusShape)
		return Result{}, err
	}

	if b.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := invokeNative(ctx, binding.fn, call)
	recordDuration(key, time.Since(start))
	if err != nil {
		recordInvocation(key, StatusFault)
		b.logger.Debug("native call failed",
			"key", key,
			"caller", caller,
			"error", err)
		return Result{}, ErrNativeInvocation(key, err)
	}

	result := Result{Value: None}
	if !binding.sig.Void() {
		result.Value, err = marshalValue(binding.sig.Return, value, b.resolveCallback)
		if err != nil {
			recordInvocation(key, StatusFault)
			return Result{}, ErrNativeInvocation(key, fmt.Errorf("return value: %w", err))
		}
	}
	for i, p := range binding.sig.Params {
		if p.Ref {
			result.Refs = append(result.Refs, call.refs[i])
		}
	}

	recordInvocation(key, StatusSuccess)
	return result, nil
}

// prepare builds the Call for binding, marshaling args. The native is never
// reached when this fails.
func (b *Bridge) prepare(binding *Binding, caller string, args []any) (*Call, error) {
	sig := binding.sig
	if len(args) != len(sig.Params) {
		return nil, ErrArgumentShape(binding.key, sig, -1,
			fmt.Sprintf("expected %d arguments, got %d", len(sig.Params), len(args)))
	}

	call := &Call{
		binding: binding,
		caller:  caller,
		Args:    make([]any, len(args)),
		refs:    make([]any, len(args)),
	}
	for i, p := range sig.Params {
		v, err := marshalValue(p.Type, args[i], b.resolveCallback)
		if err != nil {
			return nil, ErrArgumentShape(binding.key, sig, i, err.Error())
		}
		call.Args[i] = v
		if p.Ref {
			call.refs[i] = v
		}
	}
	return call, nil
}

func (b *Bridge) resolveCallback(key string) (Callback, bool) {
	if _, ok := b.Lookup(key); !ok {
		return nil, false
	}
	return b.Callback(key), true
}

// invokeNative runs fn, converting a panic into an error so native faults
// never unwind past the bridge.
func invokeNative(ctx context.Context, fn NativeFunc, call *Call) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &panicError{value: r}
		}
	}()
	return fn(ctx, call)
}

func cloneSignature(sig Signature) Signature {
	return Signature{
		Params: slices.Clone(sig.Params),
		Return: sig.Return,
	}
}
