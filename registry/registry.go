package registry

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/symbol"
	"go.uber.org/zap"
)

type (
	// Options are the collaborators of a Registry. Only Platform is required.
	Options struct {
		Platform platform.Tag
		Engine   *holyhook.Engine
		Loader   symbol.Loader
		Resolver *symbol.Resolver
		Surface  bridge.Surface
		Store    Store
		Sink     diag.Sink
	}
	entry struct {
		module     Module
		desc       Descriptor
		compatible bool
		state      State
		phase      diag.Phase
		hooks      []*holyhook.Hook //in install order
		debug      atomic.Int32
		err        error
		violation  error
		callbacks  map[string]*callback //per hook name, kept across reloads
	}
	// Registry owns the modules and drives their lifecycle. Phase transitions hold the registry exclusively,
	// Think runs under a shared lock.
	Registry struct {
		opts    Options
		surface bridge.Surface
		entries []*entry
		byName  map[string]*entry
		libs    map[string]symbol.Library
		libMu   sync.Mutex
		sync.RWMutex
	}
)

// New creates a registry with modules in registration order. Descriptors are read once here.
func New(opts Options, modules ...Module) (r *Registry, err error) {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Sink == nil {
		opts.Sink = diag.Nop()
	}
	if opts.Surface == nil {
		opts.Surface = bridge.NewRecorder()
	}
	r = &Registry{opts: opts, surface: opts.Surface, byName: map[string]*entry{}, libs: map[string]symbol.Library{}}
	for _, m := range modules {
		d := m.Descriptor()
		if d.Name == "" {
			return nil, fmt.Errorf("module %T has no name", m)
		}
		if _, ok := r.byName[d.Name]; ok {
			return nil, fmt.Errorf("module %s registered twice", d.Name)
		}
		e := &entry{module: m, desc: d, compatible: d.Compatibility.Has(opts.Platform)}
		e.debug.Store(int32(opts.Store.DebugLevel(d.Name)))
		r.entries = append(r.entries, e)
		r.byName[d.Name] = e
	}
	return
}

// Surface is the scripting surface modules are currently bound to.
func (r *Registry) Surface() bridge.Surface {
	r.RLock()
	defer r.RUnlock()
	return r.surface
}

// LoadAll loads every compatible and enabled module in registration order. A failing module is torn down, reported
// and left Unloaded, the others load regardless.
func (r *Registry) LoadAll() {
	r.Lock()
	defer r.Unlock()
	for _, e := range r.entries {
		r.load(e)
	}
}

// UnloadAll unloads every loaded module in reverse registration order.
func (r *Registry) UnloadAll() {
	r.Lock()
	defer r.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		r.unload(r.entries[i])
	}
}

// ReloadScriptingSurface moves the loaded modules to a new scripting runtime: script bindings and hooks are torn down
// against the old surface, then hooks and script bindings are rebuilt on next. Native bindings are kept.
func (r *Registry) ReloadScriptingSurface(next bridge.Surface) {
	r.Lock()
	defer r.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; e.state == ScriptBound {
			r.unbindScript(e)
			if !r.uninstallHooks(e) {
				e.state = Unloading
			}
		}
	}
	if next != nil {
		r.surface = next
	}
	for _, e := range r.entries {
		if e.state == NativeBound {
			r.attach(e)
		}
	}
}

// SetEnabled persists the enabled flag and applies it: the module is loaded or unloaded on its own.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.Lock()
	defer r.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return diag.New(diag.KindModuleNotFound).Module(name).Build()
	}
	if err := r.opts.Store.SetEnabled(name, enabled); err != nil {
		return fmt.Errorf("persist %s enabled: %w", name, err)
	}
	if enabled {
		r.load(e)
		return e.err
	}
	r.unload(e)
	return nil
}

// SetDebugLevel persists the debug level of a module, effective immediately.
func (r *Registry) SetDebugLevel(name string, level int) error {
	r.Lock()
	defer r.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return diag.New(diag.KindModuleNotFound).Module(name).Build()
	}
	if err := r.opts.Store.SetDebugLevel(name, level); err != nil {
		return fmt.Errorf("persist %s debug level: %w", name, err)
	}
	e.debug.Store(int32(level))
	return nil
}

// Think runs the per tick work of script bound modules. Failures are reported, never returned.
func (r *Registry) Think(simulating bool) {
	r.RLock()
	defer r.RUnlock()
	for _, e := range r.entries {
		if e.state != ScriptBound {
			continue
		}
		if t, ok := e.module.(Thinker); ok {
			if err := r.safe(e, func(env *Env) error { return t.Think(env, simulating) }); err != nil {
				r.report(diag.FromError(e.desc.Name, diag.PhaseThink, err))
			}
		}
	}
}

// Modules is a snapshot of every registered module in registration order.
func (r *Registry) Modules() []Status {
	r.RLock()
	defer r.RUnlock()
	v := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		v = append(v, r.status(e))
	}
	return v
}

// Status of one module.
func (r *Registry) Status(name string) (Status, error) {
	r.RLock()
	defer r.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return Status{}, diag.New(diag.KindModuleNotFound).Module(name).Build()
	}
	return r.status(e), nil
}

// Hooks lists the hooks a module owns, in install order.
func (r *Registry) Hooks(name string) []*holyhook.Hook {
	r.RLock()
	defer r.RUnlock()
	if e, ok := r.byName[name]; ok {
		return slices.Clone(e.hooks)
	}
	return nil
}

func (r *Registry) status(e *entry) Status {
	return Status{
		Name:       e.desc.Name,
		State:      e.state,
		Enabled:    r.opts.Store.Enabled(e.desc.Name, e.desc.DefaultEnabled),
		Compatible: e.compatible,
		Hooks:      len(e.hooks),
		DebugLevel: int(e.debug.Load()),
		Err:        e.err,
	}
}

func (r *Registry) library(name string) (lib symbol.Library, err error) {
	if r.opts.Loader == nil {
		return nil, ErrNoLoader
	}
	r.libMu.Lock()
	defer r.libMu.Unlock()
	if lib, ok := r.libs[name]; ok {
		return lib, nil
	}
	if lib, err = r.opts.Loader.Open(name); err != nil {
		return
	}
	r.libs[name] = lib
	return
}

func (r *Registry) report(rec diag.Record) {
	r.opts.Sink.Report(rec)
}

func (r *Registry) fail(e *entry, phase diag.Phase, err error) {
	e.err = diag.At(e.desc.Name, phase, err)
	r.report(diag.FromError(e.desc.Name, phase, err))
	Logger().Debug("module failed", zap.String("module", e.desc.Name), zap.String("phase", string(phase)), zap.Error(err))
}

// safe runs one module callback, turning a panic into an error and a swallowed phase order violation into a failure.
func (r *Registry) safe(e *entry, f func(env *Env) error) (err error) {
	e.violation = nil
	defer func() {
		if x := recover(); x != nil {
			err = diag.New(diag.KindModuleFailure).Module(e.desc.Name).Phase(e.phase).Detail("panic: %v", x).Build()
		}
		if err == nil && e.violation != nil {
			err = e.violation
		}
	}()
	return f(&Env{r: r, e: e})
}

func (r *Registry) run(e *entry, phase diag.Phase, f func(env *Env) error) error {
	e.phase = phase
	defer func() { e.phase = diag.PhaseNone }()
	return r.safe(e, f)
}

func (r *Registry) load(e *entry) {
	if !e.compatible || e.state != Unloaded || !r.opts.Store.Enabled(e.desc.Name, e.desc.DefaultEnabled) {
		return
	}
	e.err = nil
	if err := r.run(e, diag.PhaseBindNative, e.module.BindNative); err != nil {
		r.fail(e, diag.PhaseBindNative, err)
		return
	}
	e.state = NativeBound
	r.attach(e)
}

// attach runs InstallHooks and BindScript for a NativeBound module, tearing it down to Unloaded on failure.
func (r *Registry) attach(e *entry) {
	if err := r.run(e, diag.PhaseInstallHooks, e.module.InstallHooks); err != nil {
		r.fail(e, diag.PhaseInstallHooks, err)
		r.teardown(e)
		return
	}
	e.state = HooksInstalled
	if err := r.run(e, diag.PhaseBindScript, e.module.BindScript); err != nil {
		r.fail(e, diag.PhaseBindScript, err)
		// a partial BindScript may have published part of its surface
		if x := r.run(e, diag.PhaseUnbindScript, e.module.UnbindScript); x != nil {
			r.report(diag.FromError(e.desc.Name, diag.PhaseUnbindScript, x))
		}
		r.teardown(e)
		return
	}
	e.state = ScriptBound
	Logger().Info("module loaded", zap.String("module", e.desc.Name), zap.Int("hooks", len(e.hooks)))
}

func (r *Registry) unload(e *entry) {
	switch e.state {
	case Unloaded:
		return
	case ScriptBound:
		r.unbindScript(e)
	}
	if r.teardown(e) {
		Logger().Info("module unloaded", zap.String("module", e.desc.Name))
	}
}

// teardown uninstalls the hooks then unbinds native. A hook that refuses leaves the module Unloading.
func (r *Registry) teardown(e *entry) bool {
	if !r.uninstallHooks(e) {
		e.state = Unloading
		return false
	}
	r.unbindNative(e)
	return true
}

func (r *Registry) unbindScript(e *entry) {
	if err := r.run(e, diag.PhaseUnbindScript, e.module.UnbindScript); err != nil {
		r.fail(e, diag.PhaseUnbindScript, err)
	}
	e.state = HooksInstalled
}

// uninstallHooks removes the owned hooks latest first. Hooks that refuse stay owned and false is returned.
func (r *Registry) uninstallHooks(e *entry) bool {
	e.phase = diag.PhaseUninstallHooks
	defer func() { e.phase = diag.PhaseNone }()
	var kept []*holyhook.Hook
	for i := len(e.hooks) - 1; i >= 0; i-- {
		h := e.hooks[i]
		if err := h.Uninstall(); err != nil {
			r.fail(e, diag.PhaseUninstallHooks, err)
			kept = append(kept, h)
		}
	}
	slices.Reverse(kept)
	e.hooks = kept
	if len(kept) > 0 {
		return false
	}
	e.state = NativeBound
	return true
}

func (r *Registry) unbindNative(e *entry) {
	if err := r.run(e, diag.PhaseUnbindNative, e.module.UnbindNative); err != nil {
		r.fail(e, diag.PhaseUnbindNative, err)
	}
	e.state = Unloaded
}
