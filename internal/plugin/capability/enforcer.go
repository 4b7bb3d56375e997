// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability decides which bridge bindings a plugin may call.
//
// Grants are gobwas/glob patterns with '.' as the segment separator:
//   - '*' matches a single segment: "kv.*" matches "kv.read" but not "kv.read.raw"
//   - '**' matches any number of segments: "kv.**" matches both
//
// The host itself (an empty caller) is always allowed.
package capability

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeInvalidGrant marks a malformed grant pattern.
const CodeInvalidGrant = "INVALID_GRANT"

type grant struct {
	pattern string
	glob    glob.Glob
}

type grantSet []grant

func (s grantSet) allows(capability string) bool {
	for _, g := range s {
		if g.glob.Match(capability) {
			return true
		}
	}
	return false
}

func (s grantSet) patterns() []string {
	out := make([]string, len(s))
	for i, g := range s {
		out[i] = g.pattern
	}
	return out
}

// Enforcer holds per-plugin grants. It satisfies the bridge guard and the
// plugin manager's granter.
//
// Enforcer is safe for concurrent use.
type Enforcer struct {
	grants map[string]grantSet
	logger *slog.Logger
	mu     sync.RWMutex
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithLogger sets the logger used to report denials.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) {
		e.logger = l
	}
}

// NewEnforcer creates an enforcer with no grants.
func NewEnforcer(opts ...Option) *Enforcer {
	e := &Enforcer{
		grants: make(map[string]grantSet),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetGrants replaces the grants of plugin. Either every pattern compiles and
// the set is replaced, or nothing changes.
func (e *Enforcer) SetGrants(plugin string, capabilities []string) error {
	if plugin == "" {
		return oops.In("capability").Code(CodeInvalidGrant).New("plugin name cannot be empty")
	}

	set := make(grantSet, 0, len(capabilities))
	for i, pattern := range capabilities {
		if pattern == "" {
			return oops.In("capability").
				Code(CodeInvalidGrant).
				With("plugin", plugin).
				With("index", i).
				New("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.In("capability").
				Code(CodeInvalidGrant).
				With("plugin", plugin).
				With("pattern", pattern).
				Wrapf(err, "invalid capability pattern %q", pattern)
		}
		set = append(set, grant{pattern: pattern, glob: g})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants[plugin] = set
	return nil
}

// RemoveGrants forgets plugin. Unknown plugins are ignored.
func (e *Enforcer) RemoveGrants(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, plugin)
}

// Grants returns the patterns granted to plugin, or nil if it has none.
func (e *Enforcer) Grants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	return set.patterns()
}

// Plugins returns the names holding grants, sorted.
func (e *Enforcer) Plugins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.grants))
	for name := range e.grants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Check reports whether plugin may use capability. Unknown plugins and
// empty capabilities are denied.
func (e *Enforcer) Check(plugin, capability string) bool {
	if plugin == "" {
		return true
	}
	if capability == "" {
		return false
	}

	e.mu.RLock()
	set, ok := e.grants[plugin]
	e.mu.RUnlock()

	if ok && set.allows(capability) {
		return true
	}
	e.logger.Debug("capability denied",
		"plugin", plugin,
		"capability", capability,
		"known", ok)
	return false
}
