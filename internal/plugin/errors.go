// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/samber/oops"

	"github.com/holomush/wand/pkg/errutil"
)

// Error codes for lifecycle and registry failures.
const (
	CodeDuplicateName      = "DUPLICATE_NAME"
	CodeHookFailed         = "HOOK_FAILED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeUnknownKind        = "UNKNOWN_KIND"
	CodeInvalidDescriptor  = "INVALID_DESCRIPTOR"
	CodeMissingDependency  = "MISSING_DEPENDENCY"
	CodeDependencyCycle    = "DEPENDENCY_CYCLE"
	CodeDependencyVersion  = "DEPENDENCY_VERSION"
	CodeDependencyNotReady = "DEPENDENCY_NOT_READY"
	CodeExportMissing      = "EXPORT_MISSING"
	CodeUnknownPlugin      = "UNKNOWN_PLUGIN"
)

// Phase names the lifecycle step a hook belongs to.
type Phase string

// Lifecycle phases.
const (
	PhaseInstantiate Phase = "instantiate"
	PhaseCreate      Phase = "create"
	PhaseStart       Phase = "start"
	PhaseEnd         Phase = "end"
	PhaseDestroy     Phase = "destroy"
)

// ErrDuplicateName creates an error for a second plugin claiming a live name.
func ErrDuplicateName(name string) error {
	return oops.In("plugin").
		Code(CodeDuplicateName).
		With("plugin", name).
		Errorf("plugin %q is already loaded", name)
}

// ErrHookFailed wraps a lifecycle hook failure. The result carries
// CodeHookFailed whatever code the hook's own error had.
func ErrHookFailed(name string, phase Phase, cause error) error {
	b := oops.In("plugin").
		Code(CodeHookFailed).
		With("plugin", name).
		With("phase", string(phase))
	return errutil.Wrap(b, cause, "plugin %s %s hook failed", name, phase)
}

// ErrInvalidTransition creates an error for an out-of-order lifecycle request.
func ErrInvalidTransition(name string, from State, phase Phase) error {
	return oops.In("plugin").
		Code(CodeInvalidTransition).
		With("plugin", name).
		With("state", from.String()).
		With("phase", string(phase)).
		Errorf("plugin %s cannot %s from state %s", name, phase, from)
}

// ErrUnknownKind creates an error for a descriptor with no factory.
func ErrUnknownKind(name, kind string) error {
	return oops.In("plugin").
		Code(CodeUnknownKind).
		With("plugin", name).
		With("kind", kind).
		Errorf("no factory for plugin kind %q", kind)
}

// ErrInvalidDescriptor wraps a descriptor validation failure.
func ErrInvalidDescriptor(name string, cause error) error {
	b := oops.In("plugin").
		Code(CodeInvalidDescriptor).
		With("plugin", name)
	return errutil.Wrap(b, cause, "invalid descriptor for plugin %q", name)
}

// ErrMissingDependency creates an error for a dependency that is neither
// loaded nor part of the batch.
func ErrMissingDependency(name, dependency string) error {
	return oops.In("plugin").
		Code(CodeMissingDependency).
		With("plugin", name).
		With("dependency", dependency).
		Errorf("plugin %s depends on %s, which is not available", name, dependency)
}

// ErrDependencyFailed creates an error for a dependency that failed to load.
func ErrDependencyFailed(name, dependency string) error {
	return oops.In("plugin").
		Code(CodeMissingDependency).
		With("plugin", name).
		With("dependency", dependency).
		Errorf("plugin %s depends on %s, which failed to load", name, dependency)
}

// ErrDependencyCycle creates an error for plugins that depend on each other.
func ErrDependencyCycle(name string, cycle []string) error {
	return oops.In("plugin").
		Code(CodeDependencyCycle).
		With("plugin", name).
		With("cycle", cycle).
		Errorf("plugin %s is part of a dependency cycle %v", name, cycle)
}

// ErrDependencyVersion creates an error for a dependency whose version does
// not satisfy the declared constraint.
func ErrDependencyVersion(name, dependency, constraint, version string) error {
	return oops.In("plugin").
		Code(CodeDependencyVersion).
		With("plugin", name).
		With("dependency", dependency).
		With("constraint", constraint).
		With("version", version).
		Errorf("plugin %s requires %s %s, found %s", name, dependency, constraint, version)
}

// ErrDependencyNotReady creates an error for starting a plugin whose
// dependency is not registered.
func ErrDependencyNotReady(name, dependency string) error {
	return oops.In("plugin").
		Code(CodeDependencyNotReady).
		With("plugin", name).
		With("dependency", dependency).
		Errorf("plugin %s cannot start before %s", name, dependency)
}

// ErrExportMissing creates an error for a declared export the plugin does
// not provide.
func ErrExportMissing(name, method string) error {
	return oops.In("plugin").
		Code(CodeExportMissing).
		With("plugin", name).
		With("method", method).
		Errorf("plugin %s does not provide declared export %q", name, method)
}

// ErrUnknownPlugin creates an error for a name with no live instance.
func ErrUnknownPlugin(name string) error {
	return oops.In("plugin").
		Code(CodeUnknownPlugin).
		With("plugin", name).
		Errorf("plugin %q is not loaded", name)
}

// IsCode reports whether err, or any error it wraps or joins, carries code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == code {
		return true
	}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if IsCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return IsCode(e.Unwrap(), code)
	}
	return false
}

// ErrNeverStarted marks a created instance that is being torn down without
// ever starting.
func ErrNeverStarted(name string) error {
	return oops.In("plugin").
		Code(CodeInvalidTransition).
		With("plugin", name).
		Errorf("plugin %s was torn down before it started", name)
}
