// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/holomush/wand/internal/bridge"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Type identifies the plugin runtime.
type Type string

// Plugin types with built-in factories.
const (
	TypeLua    Type = "lua"
	TypeBinary Type = "binary"
)

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string        `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version      string        `yaml:"version" json:"version" jsonschema:"minLength=1"`
	Type         Type          `yaml:"type" json:"type" jsonschema:"enum=lua,enum=binary"`
	Priority     int           `yaml:"priority,omitempty" json:"priority,omitempty"`
	Depends      []DependsOn   `yaml:"depends,omitempty" json:"depends,omitempty"`
	Exports      []ExportDecl  `yaml:"exports,omitempty" json:"exports,omitempty"`
	Capabilities []string      `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	LuaPlugin    *LuaConfig    `yaml:"lua-plugin,omitempty" json:"lua-plugin,omitempty"`
	BinaryPlugin *BinaryConfig `yaml:"binary-plugin,omitempty" json:"binary-plugin,omitempty"`
}

// DependsOn is a manifest dependency entry.
type DependsOn struct {
	Name    string `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// ExportDecl is a manifest export entry. Signature uses the bridge syntax,
// for example "(int32, int32) -> int32".
type ExportDecl struct {
	Name      string `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Signature string `yaml:"signature" json:"signature" jsonschema:"minLength=2"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" json:"entry"`
}

// BinaryConfig holds binary plugin configuration.
type BinaryConfig struct {
	Executable string `yaml:"executable" json:"executable"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints the schema cannot express.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return errors.New("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not semver: %w", m.Version, err)
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil || m.LuaPlugin.Entry == "" {
			return errors.New("lua-plugin.entry is required when type is lua")
		}
	case TypeBinary:
		if m.BinaryPlugin == nil || m.BinaryPlugin.Executable == "" {
			return errors.New("binary-plugin.executable is required when type is binary")
		}
	default:
		return fmt.Errorf("type must be 'lua' or 'binary', got %q", m.Type)
	}

	for _, e := range m.Exports {
		if _, err := bridge.ParseSignature(e.Signature); err != nil {
			return fmt.Errorf("export %s: %w", e.Name, err)
		}
	}
	return nil
}

// Descriptor converts the manifest into a loadable descriptor for a plugin
// living in dir.
func (m *Manifest) Descriptor(dir string) (*Descriptor, error) {
	d := &Descriptor{
		Name:         m.Name,
		Version:      m.Version,
		Priority:     m.Priority,
		Kind:         string(m.Type),
		Capabilities: append([]string(nil), m.Capabilities...),
		Dir:          dir,
		Manifest:     m,
	}
	for _, dep := range m.Depends {
		d.Dependencies = append(d.Dependencies, Dependency{Name: dep.Name, Constraint: dep.Version})
	}
	for _, e := range m.Exports {
		sig, err := bridge.ParseSignature(e.Signature)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", e.Name, err)
		}
		d.Exports = append(d.Exports, ExportSpec{Name: e.Name, Signature: sig})
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
