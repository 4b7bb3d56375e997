// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import "context"

type callerKey struct{}

// WithCaller returns a context identifying the plugin issuing calls.
// Capability checks and caller-scoped natives read it back with CallerFrom.
func WithCaller(ctx context.Context, plugin string) context.Context {
	return context.WithValue(ctx, callerKey{}, plugin)
}

// CallerFrom returns the calling plugin's name, or "" for host code.
func CallerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(callerKey{}).(string)
	return name
}
