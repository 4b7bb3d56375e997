// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/pkg/errutil"
)

var tracer = otel.Tracer("wand/plugin")

// poolReleaseTimeout bounds how long LoadAll waits for pool workers to exit.
const poolReleaseTimeout = 5 * time.Second

// Observer is told about instances after they are removed, so host services
// can drop per-plugin state.
type Observer interface {
	PluginRemoved(ctx context.Context, name string)
}

// Granter records the capabilities a plugin holds.
type Granter interface {
	SetGrants(plugin string, capabilities []string) error
	RemoveGrants(plugin string)
}

// Manager drives plugins through their lifecycle:
//
//	load (OnCreate) -> start (OnStart) -> end (OnEnd) -> unload (OnDestroy)
//
// Each instance has its own sequencer, so hooks of one instance never overlap
// while different instances progress independently.
type Manager struct {
	bridge    *bridge.Bridge
	registry  *Registry
	granter   Granter
	factories map[string]Factory
	observers []Observer
	logger    *slog.Logger
	parallel  int

	mu        sync.Mutex
	instances []*Instance // live, in load order
	pending   map[string]bool
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithFactory registers the factory used for descriptors of kind.
func WithFactory(kind string, f Factory) ManagerOption {
	return func(m *Manager) {
		m.factories[kind] = f
	}
}

// WithGranter sets where plugin capabilities are recorded.
func WithGranter(g Granter) ManagerOption {
	return func(m *Manager) {
		m.granter = g
	}
}

// WithObserver adds an observer notified after each unload.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithParallelLoad lets LoadAll create up to n independent plugins at once.
func WithParallelLoad(n int) ManagerOption {
	return func(m *Manager) {
		m.parallel = n
	}
}

// NewManager creates a plugin manager publishing exports into b.
func NewManager(b *bridge.Bridge, opts ...ManagerOption) *Manager {
	m := &Manager{
		bridge:    b,
		factories: make(map[string]Factory),
		logger:    slog.Default(),
		pending:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	return m
}

// Registry returns the registry of live instances.
func (m *Manager) Registry() *Registry { return m.registry }

// Bridge returns the bridge exports are published into.
func (m *Manager) Bridge() *bridge.Bridge { return m.bridge }

// Instances returns the live instances in load order.
func (m *Manager) Instances() []*Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.instances)
}

// Ready reports whether every live instance has started.
func (m *Manager) Ready() bool {
	for _, inst := range m.Instances() {
		if inst.State() != StateStarted || inst.Faulted() {
			return false
		}
	}
	return true
}

// Load creates a plugin from desc, calls OnCreate, publishes its exports,
// and registers it. On failure nothing stays registered.
func (m *Manager) Load(ctx context.Context, desc *Descriptor) (*Instance, error) {
	if desc == nil {
		return nil, oops.In("plugin").New("descriptor cannot be nil")
	}
	if err := desc.Validate(); err != nil {
		return nil, ErrInvalidDescriptor(desc.Name, err)
	}
	factory := desc.Factory
	if factory == nil {
		factory = m.factories[desc.Kind]
	}
	if factory == nil {
		return nil, ErrUnknownKind(desc.Name, desc.Kind)
	}

	if err := m.reserve(desc.Name); err != nil {
		return nil, err
	}
	defer m.unreserve(desc.Name)

	logger := m.logger.With("plugin", desc.Name)
	ctx = bridge.WithCaller(ctx, desc.Name)

	env := Env{Bridge: m.bridge, Registry: m.registry, Logger: logger}
	var p Plugin
	if err := callSafely(func() error {
		var err error
		p, err = factory.New(ctx, desc, env)
		return err
	}); err != nil {
		return nil, ErrHookFailed(desc.Name, PhaseInstantiate, err)
	}
	if p == nil {
		return nil, ErrHookFailed(desc.Name, PhaseInstantiate, errors.New("factory returned no plugin"))
	}

	inst := newInstance(desc, p)
	inst.seq.Lock()
	defer inst.seq.Unlock()

	if m.granter != nil {
		if err := m.granter.SetGrants(desc.Name, desc.Capabilities); err != nil {
			m.discard(inst, err)
			return nil, ErrInvalidDescriptor(desc.Name, err)
		}
	}

	if err := m.runHook(ctx, inst, PhaseCreate, p.OnCreate); err != nil {
		m.discard(inst, err)
		errutil.LogError(logger, "plugin create failed", err)
		return nil, err
	}
	inst.setState(StateCreated)

	// Exports go live before the name does, so a plugin found by name
	// always resolves its own keys.
	if _, ok := m.registry.FindByName(desc.Name); ok {
		err := ErrDuplicateName(desc.Name)
		m.abort(ctx, inst, err)
		return nil, err
	}
	if err := m.publishExports(inst); err != nil {
		m.abort(ctx, inst, err)
		return nil, err
	}
	if err := m.registry.Register(desc.Name, inst); err != nil {
		m.bridge.Revoke(desc.Name)
		m.abort(ctx, inst, err)
		return nil, err
	}

	m.mu.Lock()
	m.instances = append(m.instances, inst)
	m.mu.Unlock()
	LivePlugins.Inc()

	logger.Info("plugin loaded",
		"id", inst.id.String(),
		"kind", desc.Kind,
		"version", desc.Version)
	return inst, nil
}

// Start calls OnStart. Valid only from StateCreated, and only once every
// dependency is registered.
func (m *Manager) Start(ctx context.Context, inst *Instance) error {
	inst.seq.Lock()
	defer inst.seq.Unlock()

	if err := checkTransition(inst, StateCreated, PhaseStart); err != nil {
		return err
	}
	for _, dep := range inst.desc.Dependencies {
		if _, ok := m.registry.FindByName(dep.Name); !ok {
			return ErrDependencyNotReady(inst.Name(), dep.Name)
		}
	}

	ctx = bridge.WithCaller(ctx, inst.Name())
	if err := m.runHook(ctx, inst, PhaseStart, inst.plugin.OnStart); err != nil {
		inst.setFault(err)
		errutil.LogError(m.logger, "plugin start failed", err, "plugin", inst.Name())
		return err
	}
	inst.setState(StateStarted)
	m.logger.Debug("plugin started", "plugin", inst.Name())
	return nil
}

// End calls OnEnd. Valid only from StateStarted.
func (m *Manager) End(ctx context.Context, inst *Instance) error {
	inst.seq.Lock()
	defer inst.seq.Unlock()

	if err := checkTransition(inst, StateStarted, PhaseEnd); err != nil {
		return err
	}

	ctx = bridge.WithCaller(ctx, inst.Name())
	if err := m.runHook(ctx, inst, PhaseEnd, inst.plugin.OnEnd); err != nil {
		inst.setFault(err)
		errutil.LogError(m.logger, "plugin end failed", err, "plugin", inst.Name())
		return err
	}
	inst.setState(StateEnded)
	m.logger.Debug("plugin ended", "plugin", inst.Name())
	return nil
}

// Unload calls OnDestroy and removes every trace of the instance: registry
// entry, exports, grants. Valid from StateEnded, or from any earlier state
// once the instance is faulted. Removal completes even if OnDestroy fails;
// that failure is still returned.
func (m *Manager) Unload(ctx context.Context, inst *Instance) error {
	inst.seq.Lock()
	defer inst.seq.Unlock()

	state := inst.State()
	if state == StateDestroyed || (state != StateEnded && !inst.Faulted()) {
		return ErrInvalidTransition(inst.Name(), state, PhaseDestroy)
	}
	if !m.owns(inst) {
		return ErrUnknownPlugin(inst.Name())
	}

	ctx = bridge.WithCaller(ctx, inst.Name())
	hookErr := m.runHook(ctx, inst, PhaseDestroy, inst.plugin.OnDestroy)
	if hookErr != nil {
		errutil.LogError(m.logger, "plugin destroy failed", hookErr, "plugin", inst.Name())
	}

	if current, ok := m.registry.FindByName(inst.Name()); ok && current == inst {
		m.registry.Unregister(inst.Name())
	}
	revoked := m.bridge.Revoke(inst.Name())

	m.mu.Lock()
	m.instances = slices.DeleteFunc(m.instances, func(i *Instance) bool { return i == inst })
	m.mu.Unlock()
	LivePlugins.Dec()

	m.discard(inst, nil)
	for _, o := range m.observers {
		o.PluginRemoved(ctx, inst.Name())
	}

	m.logger.Info("plugin unloaded",
		"plugin", inst.Name(),
		"id", inst.id.String(),
		"revoked", len(revoked))
	return hookErr
}

// LoadAll resolves the dependency order of descs and loads them. Plugins
// that cannot load, and everything depending on them, are skipped; the
// returned error joins every failure. The returned instances are the ones
// that loaded, in load order.
func (m *Manager) LoadAll(ctx context.Context, descs []*Descriptor) ([]*Instance, error) {
	plan := Resolve(descs, m.liveVersions())

	var errs []error
	failed := make(map[string]bool)
	for _, f := range plan.Failures {
		failed[f.Descriptor.Name] = true
		errs = append(errs, f.Err)
		errutil.LogError(m.logger, "plugin skipped", f.Err, "plugin", f.Descriptor.Name)
	}

	var loaded []*Instance
	for _, level := range plan.Levels {
		var ready []*Descriptor
		for _, d := range level {
			if dep := firstFailed(d, failed); dep != "" {
				err := ErrDependencyFailed(d.Name, dep)
				failed[d.Name] = true
				errs = append(errs, err)
				errutil.LogError(m.logger, "plugin skipped", err, "plugin", d.Name)
				continue
			}
			ready = append(ready, d)
		}

		for i, res := range m.loadLevel(ctx, ready) {
			if res.err != nil {
				failed[ready[i].Name] = true
				errs = append(errs, res.err)
				errutil.LogError(m.logger, "plugin load failed", res.err, "plugin", ready[i].Name)
				continue
			}
			loaded = append(loaded, res.inst)
		}
	}
	return loaded, errors.Join(errs...)
}

type loadResult struct {
	inst *Instance
	err  error
}

// loadLevel loads descriptors that do not depend on each other, on a worker
// pool when parallel loading is enabled.
func (m *Manager) loadLevel(ctx context.Context, level []*Descriptor) []loadResult {
	results := make([]loadResult, len(level))
	if m.parallel <= 1 || len(level) <= 1 {
		for i, d := range level {
			results[i].inst, results[i].err = m.Load(ctx, d)
		}
		return results
	}

	pool, err := ants.NewPool(min(m.parallel, len(level)))
	if err != nil {
		m.logger.Warn("worker pool unavailable, loading serially", "error", err)
		for i, d := range level {
			results[i].inst, results[i].err = m.Load(ctx, d)
		}
		return results
	}
	defer func() {
		if err := pool.ReleaseTimeout(poolReleaseTimeout); err != nil {
			m.logger.Warn("worker pool did not drain", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for i, d := range level {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i].inst, results[i].err = m.Load(ctx, d)
		}); err != nil {
			wg.Done()
			results[i].err = fmt.Errorf("submit load of %s: %w", d.Name, err)
		}
	}
	wg.Wait()
	return results
}

// StartAll starts every created instance in load order. An instance whose
// dependency did not start is faulted instead of started.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for _, inst := range m.Instances() {
		if inst.State() != StateCreated || inst.Faulted() {
			continue
		}
		if dep := m.unstartedDependency(inst); dep != "" {
			err := ErrDependencyNotReady(inst.Name(), dep)
			inst.setFault(err)
			errs = append(errs, err)
			errutil.LogError(m.logger, "plugin not started", err, "plugin", inst.Name())
			continue
		}
		if err := m.Start(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EndAll ends every started instance in reverse load order. Instances that
// were created but never started are marked so UnloadAll can destroy them.
func (m *Manager) EndAll(ctx context.Context) error {
	var errs []error
	instances := m.Instances()
	for _, inst := range slices.Backward(instances) {
		switch {
		case inst.Faulted():
		case inst.State() == StateStarted:
			if err := m.End(ctx, inst); err != nil {
				errs = append(errs, err)
			}
		case inst.State() == StateCreated:
			inst.setFault(ErrNeverStarted(inst.Name()))
		}
	}
	return errors.Join(errs...)
}

// UnloadAll unloads every live instance in reverse load order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	var errs []error
	instances := m.Instances()
	for _, inst := range slices.Backward(instances) {
		if err := m.Unload(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown ends every instance, then unloads every instance.
func (m *Manager) Shutdown(ctx context.Context) error {
	endErr := m.EndAll(ctx)
	unloadErr := m.UnloadAll(ctx)
	return errors.Join(endErr, unloadErr)
}

// Reload tears down the live instance called name and starts a fresh one
// from the same descriptor.
func (m *Manager) Reload(ctx context.Context, name string) (*Instance, error) {
	inst, ok := m.registry.FindByName(name)
	if !ok {
		return nil, ErrUnknownPlugin(name)
	}
	return m.Replace(ctx, inst.desc)
}

// Replace tears down the live instance named desc.Name, if any, then loads
// and starts desc. Live plugins that depend on it, directly or through
// each other, go down with it: everything is ended in reverse load order,
// then unloaded in reverse load order, as Shutdown does. Once desc has
// started the dependents are loaded again, and the ones that were running
// are started. If desc fails to come up its dependents stay unloaded.
func (m *Manager) Replace(ctx context.Context, desc *Descriptor) (*Instance, error) {
	var dependents []*Instance
	running := make(map[string]bool)
	if old, ok := m.registry.FindByName(desc.Name); ok {
		dependents = m.dependentsOf(desc.Name)
		for _, dep := range dependents {
			running[dep.Name()] = dep.State() == StateStarted && !dep.Faulted()
		}
		retiring := append(slices.Clone(dependents), old)
		for _, inst := range slices.Backward(retiring) {
			m.quiesce(ctx, inst)
		}
		for _, inst := range slices.Backward(retiring) {
			if err := m.Unload(ctx, inst); err != nil && IsCode(err, CodeInvalidTransition) {
				return nil, err
			}
		}
	}

	inst, err := m.Load(ctx, desc)
	if err != nil {
		return nil, errors.Join(err, m.stranded(desc.Name, dependents))
	}
	if err := m.Start(ctx, inst); err != nil {
		return inst, errors.Join(err, m.stranded(desc.Name, dependents))
	}
	m.logger.Info("plugin reloaded", "plugin", desc.Name, "id", inst.id.String())

	if err := m.restore(ctx, dependents, running); err != nil {
		return inst, err
	}
	return inst, nil
}

// quiesce brings inst to a state Unload accepts.
func (m *Manager) quiesce(ctx context.Context, inst *Instance) {
	switch {
	case inst.Faulted():
	case inst.State() == StateStarted:
		// A failing OnEnd faults the instance, which Unload accepts.
		_ = m.End(ctx, inst)
	case inst.State() == StateCreated:
		inst.setFault(ErrNeverStarted(inst.Name()))
	}
}

// dependentsOf returns the live instances that depend on name, directly or
// transitively, in load order.
func (m *Manager) dependentsOf(name string) []*Instance {
	instances := m.Instances()
	affected := map[string]bool{name: true}
	for changed := true; changed; {
		changed = false
		for _, inst := range instances {
			if affected[inst.Name()] {
				continue
			}
			for _, dep := range inst.desc.Dependencies {
				if affected[dep.Name] {
					affected[inst.Name()] = true
					changed = true
					break
				}
			}
		}
	}

	var out []*Instance
	for _, inst := range instances {
		if inst.Name() != name && affected[inst.Name()] {
			out = append(out, inst)
		}
	}
	return out
}

// restore loads retired dependents again and starts the ones that were
// running when they were retired.
func (m *Manager) restore(ctx context.Context, retired []*Instance, running map[string]bool) error {
	if len(retired) == 0 {
		return nil
	}
	descs := make([]*Descriptor, len(retired))
	for i, inst := range retired {
		descs[i] = inst.desc
	}

	loaded, err := m.LoadAll(ctx, descs)
	errs := []error{err}
	for _, inst := range loaded {
		if !running[inst.Name()] {
			continue
		}
		if dep := m.unstartedDependency(inst); dep != "" {
			notReady := ErrDependencyNotReady(inst.Name(), dep)
			inst.setFault(notReady)
			errs = append(errs, notReady)
			continue
		}
		if err := m.Start(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stranded reports the retired dependents left down because name did not
// come back.
func (m *Manager) stranded(name string, retired []*Instance) error {
	errs := make([]error, 0, len(retired))
	for _, inst := range retired {
		err := ErrDependencyFailed(inst.Name(), name)
		errutil.LogError(m.logger, "plugin not restored", err, "plugin", inst.Name())
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runHook runs one lifecycle hook inside a trace span, converting panics to
// errors.
func (m *Manager) runHook(ctx context.Context, inst *Instance, phase Phase, hook func(context.Context) error) (err error) {
	ctx, span := tracer.Start(ctx, "plugin."+string(phase),
		trace.WithAttributes(
			attribute.String("plugin.name", inst.Name()),
			attribute.String("plugin.id", inst.id.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	cause := callSafely(func() error { return hook(ctx) })

	status := StatusSuccess
	var pe *hookPanic
	switch {
	case errors.As(cause, &pe):
		status = StatusPanic
	case cause != nil:
		status = StatusError
	}
	recordTransition(phase, status, time.Since(start))

	if cause != nil {
		return ErrHookFailed(inst.Name(), phase, cause)
	}
	return nil
}

// abort pairs a successful OnCreate with OnDestroy when the load cannot
// complete, then releases the instance.
func (m *Manager) abort(ctx context.Context, inst *Instance, cause error) {
	if err := m.runHook(ctx, inst, PhaseDestroy, inst.plugin.OnDestroy); err != nil {
		errutil.LogError(m.logger, "plugin destroy failed", err, "plugin", inst.Name())
	}
	m.discard(inst, cause)
	errutil.LogError(m.logger, "plugin load aborted", cause, "plugin", inst.Name())
}

// discard drops grants and runtime resources and marks inst destroyed.
func (m *Manager) discard(inst *Instance, cause error) {
	if m.granter != nil {
		m.granter.RemoveGrants(inst.Name())
	}
	if r, ok := inst.plugin.(Releaser); ok {
		r.Release()
	}
	if cause != nil {
		inst.setFault(cause)
	}
	inst.setState(StateDestroyed)
}

func (m *Manager) publishExports(inst *Instance) error {
	desc := inst.desc
	if len(desc.Exports) == 0 {
		return nil
	}
	exporter, _ := inst.plugin.(Exporter)
	for _, spec := range desc.Exports {
		var fn bridge.NativeFunc
		if exporter != nil {
			fn, _ = exporter.Export(spec.Name)
		}
		if fn == nil {
			m.bridge.Revoke(desc.Name)
			return ErrExportMissing(desc.Name, spec.Name)
		}
		if err := m.bridge.Export(desc.Name, desc.ExportKey(spec.Name), fn, spec.Signature); err != nil {
			m.bridge.Revoke(desc.Name)
			return err
		}
	}
	return nil
}

func (m *Manager) reserve(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending[name] {
		return ErrDuplicateName(name)
	}
	for _, inst := range m.instances {
		if inst.Name() == name {
			return ErrDuplicateName(name)
		}
	}
	m.pending[name] = true
	return nil
}

func (m *Manager) unreserve(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, name)
}

func (m *Manager) owns(inst *Instance) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.instances, inst)
}

func (m *Manager) liveVersions() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make(map[string]string, len(m.instances))
	for _, inst := range m.instances {
		live[inst.Name()] = inst.desc.Version
	}
	return live
}

func (m *Manager) unstartedDependency(inst *Instance) string {
	for _, dep := range inst.desc.Dependencies {
		target, ok := m.registry.FindByName(dep.Name)
		if !ok || target.State() != StateStarted || target.Faulted() {
			return dep.Name
		}
	}
	return ""
}

func checkTransition(inst *Instance, want State, phase Phase) error {
	state := inst.State()
	if state != want || inst.Faulted() {
		return ErrInvalidTransition(inst.Name(), state, phase)
	}
	return nil
}

func firstFailed(d *Descriptor, failed map[string]bool) string {
	for _, dep := range d.Dependencies {
		if failed[dep.Name] {
			return dep.Name
		}
	}
	return ""
}

// hookPanic is a recovered panic from plugin code.
type hookPanic struct {
	value any
}

func (p *hookPanic) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &hookPanic{value: r}
		}
	}()
	return fn()
}
