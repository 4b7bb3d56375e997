// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"cmp"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// Failure records a descriptor that cannot be loaded.
type Failure struct {
	Descriptor *Descriptor
	Err        error
}

// Plan is a dependency-ordered load plan.
type Plan struct {
	// Levels groups descriptors by dependency depth. Every descriptor depends
	// only on earlier levels or on plugins that were already live.
	Levels [][]*Descriptor
	// Failures lists descriptors excluded from Levels.
	Failures []Failure
}

// Order flattens the levels into a single load order.
func (p Plan) Order() []*Descriptor {
	var order []*Descriptor
	for _, level := range p.Levels {
		order = append(order, level...)
	}
	return order
}

// Err returns the failure recorded for name, or nil.
func (p Plan) Err(name string) error {
	for _, f := range p.Failures {
		if f.Descriptor.Name == name {
			return f.Err
		}
	}
	return nil
}

// Resolve orders descs for loading. live maps the names of already loaded
// plugins to their versions; those satisfy dependencies without being
// reloaded. Peers at the same depth are ordered by priority, then name.
func Resolve(descs []*Descriptor, live map[string]string) Plan {
	var plan Plan
	failed := make(map[string]bool)
	fail := func(d *Descriptor, err error) {
		failed[d.Name] = true
		plan.Failures = append(plan.Failures, Failure{Descriptor: d, Err: err})
	}

	nodes := make(map[string]*Descriptor, len(descs))
	var sorted []*Descriptor
	for _, d := range descs {
		if d == nil {
			continue
		}
		if _, ok := live[d.Name]; ok {
			plan.Failures = append(plan.Failures, Failure{Descriptor: d, Err: ErrDuplicateName(d.Name)})
			continue
		}
		if _, ok := nodes[d.Name]; ok {
			plan.Failures = append(plan.Failures, Failure{Descriptor: d, Err: ErrDuplicateName(d.Name)})
			continue
		}
		nodes[d.Name] = d
		sorted = append(sorted, d)
	}
	slices.SortFunc(sorted, comparePeers)

	for _, d := range sorted {
		if err := checkDependencies(d, nodes, live); err != nil {
			fail(d, err)
		}
	}

	// Dependents of failed plugins fail too, transitively.
	for changed := true; changed; {
		changed = false
		for _, d := range sorted {
			if failed[d.Name] {
				continue
			}
			for _, dep := range d.Dependencies {
				if failed[dep.Name] {
					fail(d, ErrDependencyFailed(d.Name, dep.Name))
					changed = true
					break
				}
			}
		}
	}

	placed := make(map[string]bool, len(sorted))
	for {
		var level []*Descriptor
		for _, d := range sorted {
			if failed[d.Name] || placed[d.Name] {
				continue
			}
			if dependenciesPlaced(d, nodes, placed) {
				level = append(level, d)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, d := range level {
			placed[d.Name] = true
		}
		plan.Levels = append(plan.Levels, level)
	}

	// Anything left is on a cycle or depends on one.
	for _, d := range sorted {
		if failed[d.Name] || placed[d.Name] {
			continue
		}
		cycle := findCycle(d, nodes, placed, failed)
		if slices.Contains(cycle, d.Name) {
			plan.Failures = append(plan.Failures, Failure{Descriptor: d, Err: ErrDependencyCycle(d.Name, cycle)})
		} else {
			plan.Failures = append(plan.Failures, Failure{Descriptor: d, Err: ErrDependencyFailed(d.Name, cycle[0])})
		}
	}
	return plan
}

func comparePeers(a, b *Descriptor) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func checkDependencies(d *Descriptor, nodes map[string]*Descriptor, live map[string]string) error {
	for _, dep := range d.Dependencies {
		var version string
		if target, ok := nodes[dep.Name]; ok {
			version = target.Version
		} else if v, ok := live[dep.Name]; ok {
			version = v
		} else {
			return ErrMissingDependency(d.Name, dep.Name)
		}
		if err := checkConstraint(d.Name, dep, version); err != nil {
			return err
		}
	}
	return nil
}

func checkConstraint(name string, dep Dependency, version string) error {
	if dep.Constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(dep.Constraint)
	if err != nil {
		return ErrDependencyVersion(name, dep.Name, dep.Constraint, version)
	}
	v, err := semver.NewVersion(version)
	if err != nil || !c.Check(v) {
		return ErrDependencyVersion(name, dep.Name, dep.Constraint, version)
	}
	return nil
}

// dependenciesPlaced reports whether every in-batch dependency of d already
// has a level. Dependencies outside the batch are live plugins.
func dependenciesPlaced(d *Descriptor, nodes map[string]*Descriptor, placed map[string]bool) bool {
	for _, dep := range d.Dependencies {
		if _, inBatch := nodes[dep.Name]; inBatch && !placed[dep.Name] {
			return false
		}
	}
	return true
}

// findCycle follows unplaced dependencies from d until a name repeats and
// returns the repeating part of the walk.
func findCycle(d *Descriptor, nodes map[string]*Descriptor, placed, failed map[string]bool) []string {
	var path []string
	for cur := d; cur != nil; {
		if i := slices.Index(path, cur.Name); i >= 0 {
			return path[i:]
		}
		path = append(path, cur.Name)

		var next *Descriptor
		deps := slices.Clone(cur.Dependencies)
		slices.SortFunc(deps, func(a, b Dependency) int { return cmp.Compare(a.Name, b.Name) })
		for _, dep := range deps {
			if n, ok := nodes[dep.Name]; ok && !placed[dep.Name] && !failed[dep.Name] {
				next = n
				break
			}
		}
		cur = next
	}
	return path
}
