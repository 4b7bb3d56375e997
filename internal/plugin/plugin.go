// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin hosts plugins: it drives each one through an ordered
// lifecycle, keeps a name-keyed registry of the live ones, and publishes the
// methods they export into the call bridge.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/holomush/wand/internal/bridge"
)

// Plugin is the capability every hosted plugin provides. The manager calls
// each hook at most once per instance, in order, and never concurrently.
type Plugin interface {
	OnCreate(ctx context.Context) error
	OnStart(ctx context.Context) error
	OnEnd(ctx context.Context) error
	OnDestroy(ctx context.Context) error
}

// Exporter is implemented by plugins that publish callable methods. Export
// returns the implementation of a method declared in the descriptor.
type Exporter interface {
	Export(method string) (bridge.NativeFunc, bool)
}

// Releaser is implemented by plugins holding resources outside the Go heap
// (interpreter states, child processes). Release runs once the instance is
// gone, including when OnCreate failed.
type Releaser interface {
	Release()
}

// Lookup finds live instances by name.
type Lookup interface {
	FindByName(name string) (*Instance, bool)
}

// Env is what a factory may hand to the plugins it builds.
type Env struct {
	Bridge   *bridge.Bridge
	Registry Lookup
	Logger   *slog.Logger
}

// Factory builds the concrete Plugin for a descriptor.
type Factory interface {
	New(ctx context.Context, desc *Descriptor, env Env) (Plugin, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, desc *Descriptor, env Env) (Plugin, error)

// New implements Factory.
func (f FactoryFunc) New(ctx context.Context, desc *Descriptor, env Env) (Plugin, error) {
	return f(ctx, desc, env)
}

// Dependency names another plugin that must be live first.
type Dependency struct {
	Name string
	// Constraint is an optional semver constraint such as ">= 1.2".
	Constraint string
}

// ExportSpec declares a method a plugin publishes into the bridge.
type ExportSpec struct {
	Name      string
	Signature bridge.Signature
}

// Descriptor describes a plugin before it is loaded.
type Descriptor struct {
	Name    string
	Version string
	// Priority orders independent plugins; lower loads first.
	Priority int
	Kind     string
	// Factory overrides the factory registered for Kind.
	Factory      Factory
	Dependencies []Dependency
	Exports      []ExportSpec
	Capabilities []string
	Dir          string
	Manifest     *Manifest
}

// ExportKey returns the bridge key for one of the plugin's methods.
func (d *Descriptor) ExportKey(method string) string {
	return d.Name + "." + method
}

// Export returns the declared export named method.
func (d *Descriptor) Export(method string) (ExportSpec, bool) {
	for _, e := range d.Exports {
		if e.Name == method {
			return e, true
		}
	}
	return ExportSpec{}, false
}

// Validate checks the descriptor is loadable.
func (d *Descriptor) Validate() error {
	if d.Name == "" || !namePattern.MatchString(d.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", d.Name)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(d.Name))
	}
	if d.Version != "" {
		if _, err := semver.NewVersion(d.Version); err != nil {
			return fmt.Errorf("version %q: %w", d.Version, err)
		}
	}
	if d.Kind == "" && d.Factory == nil {
		return errors.New("kind or factory is required")
	}

	seen := make(map[string]bool, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep.Name == "" {
			return errors.New("dependency name cannot be empty")
		}
		if dep.Name == d.Name {
			return errors.New("plugin cannot depend on itself")
		}
		if seen[dep.Name] {
			return fmt.Errorf("dependency %s listed twice", dep.Name)
		}
		seen[dep.Name] = true
		if dep.Constraint != "" {
			if _, err := semver.NewConstraint(dep.Constraint); err != nil {
				return fmt.Errorf("dependency %s constraint %q: %w", dep.Name, dep.Constraint, err)
			}
		}
	}

	var names []string
	for _, e := range d.Exports {
		if e.Name == "" {
			return errors.New("export name cannot be empty")
		}
		if slices.Contains(names, e.Name) {
			return fmt.Errorf("export %s declared twice", e.Name)
		}
		names = append(names, e.Name)
		if err := e.Signature.Validate(); err != nil {
			return fmt.Errorf("export %s: %w", e.Name, err)
		}
	}
	return nil
}
