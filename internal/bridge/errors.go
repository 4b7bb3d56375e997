// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/holomush/wand/pkg/errutil"
)

// Error codes for call bridge failures.
const (
	CodeDuplicateBinding  = "DUPLICATE_BINDING"
	CodeUnresolvedBinding = "UNRESOLVED_BINDING"
	CodeArgumentShape     = "ARGUMENT_SHAPE"
	CodeNativeInvocation  = "NATIVE_INVOCATION"
	CodeCapabilityDenied  = "CAPABILITY_DENIED"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
)

// ErrDuplicateBinding creates an error for a key that is already bound.
func ErrDuplicateBinding(key string) error {
	return oops.In("bridge").
		Code(CodeDuplicateBinding).
		With("key", key).
		Errorf("binding already registered: %s", key)
}

// ErrUnresolvedBinding creates an error for an unknown key.
func ErrUnresolvedBinding(key string) error {
	return oops.In("bridge").
		Code(CodeUnresolvedBinding).
		With("key", key).
		Errorf("no binding registered for %s", key)
}

// ErrArgumentShape creates an error for arguments that do not fit the
// registered signature. index is -1 for arity mismatches.
func ErrArgumentShape(key string, sig Signature, index int, reason string) error {
	b := oops.In("bridge").
		Code(CodeArgumentShape).
		With("key", key).
		With("signature", sig.String())
	if index >= 0 {
		b = b.With("arg", index)
		return b.Errorf("%s: argument %d: %s", key, index, reason)
	}
	return b.Errorf("%s: %s", key, reason)
}

// ErrNativeInvocation wraps a failure raised by the native side of a call.
// The result always carries CodeNativeInvocation, even when cause is itself
// a coded error such as one relayed from a nested Invoke.
func ErrNativeInvocation(key string, cause error) error {
	b := oops.In("bridge").
		Code(CodeNativeInvocation).
		With("key", key)
	return errutil.Wrap(b, cause, "native call %s failed", key)
}

// ErrCapabilityDenied creates an error for a caller lacking the capability
// a binding requires.
func ErrCapabilityDenied(key, caller, capability string) error {
	return oops.In("bridge").
		Code(CodeCapabilityDenied).
		With("key", key).
		With("caller", caller).
		With("capability", capability).
		Errorf("capability denied: %s requires %s", caller, capability)
}

func errInvalidSignature(text string, cause error) error {
	b := oops.In("bridge").
		Code(CodeInvalidSignature).
		With("signature", text)
	if cause != nil {
		return b.Wrapf(cause, "invalid signature %q", text)
	}
	return b.Errorf("invalid signature %q", text)
}

// panicError carries a recovered panic value across the native boundary.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// IsCode reports whether err is an oops error carrying code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}
