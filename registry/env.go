package registry

import (
	"errors"

	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/symbol"
	"go.uber.org/zap"
)

var (
	// ErrNoEngine is returned by Env.Hook when the registry was built without a hook engine.
	ErrNoEngine = errors.New("no hook engine")
	// ErrNoLoader is returned by Env.Library when the registry was built without a library loader.
	ErrNoLoader = errors.New("no library loader")
)

// Env is the view a module has of the registry while one of its phases runs.
type Env struct {
	r *Registry
	e *entry
}

func (v *Env) Name() string {
	return v.e.desc.Name
}

// Phase is the lifecycle phase being run.
func (v *Env) Phase() diag.Phase {
	return v.e.phase
}

func (v *Env) Platform() platform.Tag {
	return v.r.opts.Platform
}

func (v *Env) Surface() bridge.Surface {
	return v.r.surface
}

// Logger is the registry logger named after the module.
func (v *Env) Logger() *zap.Logger {
	return Logger().Named(v.e.desc.Name)
}

// Debug reports whether the persisted debug level of the module reaches level.
func (v *Env) Debug(level int) bool {
	return level > 0 && int(v.e.debug.Load()) >= level
}

// Debugger is Debug usable after the phase returned, from hook replacements running on host threads.
func (v *Env) Debugger() func(level int) bool {
	e := v.e
	return func(level int) bool {
		return level > 0 && int(e.debug.Load()) >= level
	}
}

// Library opens a host library by short name, cached for the registry lifetime.
func (v *Env) Library(name string) (lib symbol.Library, err error) {
	return v.r.library(name)
}

// Resolve locates a symbol in lib.
func (v *Env) Resolve(lib symbol.Library, s symbol.Symbol) (symbol.Resolved, error) {
	if v.r.opts.Resolver == nil {
		return symbol.Resolved{}, diag.New(diag.KindSymbolNotFound).Target(s.Name).Detail("no resolver").Build()
	}
	res, err := v.r.opts.Resolver.Resolve(lib, s)
	if err == nil && v.Debug(1) {
		v.Logger().Debug("resolved", zap.Stringer("symbol", res))
	}
	return res, err
}

// ResolveIn opens the library and resolves the symbol in one step.
func (v *Env) ResolveIn(library string, s symbol.Symbol) (symbol.Resolved, error) {
	lib, err := v.Library(library)
	if err != nil {
		return symbol.Resolved{}, diag.New(diag.KindSymbolNotFound).Target(s.Name).Detail("library %s", library).Cause(err).Build()
	}
	return v.Resolve(lib, s)
}

// Hook installs a hook owned by the module. It is only allowed during InstallHooks.
// The binders receive the trampoline before the replacement becomes reachable.
func (v *Env) Hook(name string, target, replacement uintptr, bind ...holyhook.Binder) (*holyhook.Hook, error) {
	if v.e.phase != diag.PhaseInstallHooks {
		err := diag.New(diag.KindPhaseOrderViolation).Module(v.Name()).Phase(v.e.phase).Target(name).
			Detail("hook installed outside %s", diag.PhaseInstallHooks).Build()
		v.e.violation = err
		return nil, err
	}
	if v.r.opts.Engine == nil {
		return nil, diag.New(diag.KindMemoryProtection).Target(name).Cause(ErrNoEngine).Build()
	}
	h, err := v.r.opts.Engine.Install(v.Name(), name, target, replacement, bind...)
	if err != nil {
		return nil, err
	}
	v.e.hooks = append(v.e.hooks, h)
	if v.Debug(1) {
		v.Logger().Debug("hooked", zap.Stringer("hook", h))
	}
	return h, nil
}

// HookFunc installs a Go function as the replacement. The native callback of a hook name is created once per
// module and reused by later installs, so reloads do not exhaust the callback table.
func (v *Env) HookFunc(name string, target uintptr, replacement any, bind ...holyhook.Binder) (*holyhook.Hook, error) {
	if v.e.phase != diag.PhaseInstallHooks {
		return v.Hook(name, target, 0)
	}
	addr, err := v.e.callback(name, replacement)
	if err != nil {
		return nil, diag.New(diag.KindCallableUnsupported).Target(name).Cause(err).Build()
	}
	return v.Hook(name, target, addr, bind...)
}

// HookSymbol resolves s in library and hooks it with the Go function replacement.
func (v *Env) HookSymbol(library string, s symbol.Symbol, replacement any, bind ...holyhook.Binder) (*holyhook.Hook, error) {
	if v.e.phase != diag.PhaseInstallHooks {
		return v.Hook(s.Name, 0, 0)
	}
	res, err := v.ResolveIn(library, s)
	if err != nil {
		return nil, err
	}
	return v.HookFunc(s.Name, res.Address, replacement, bind...)
}

// OptionalHook is Hook for features the module can run without: a failure becomes a diagnostic and nil is returned.
// Phase order violations are still fatal to the module.
func (v *Env) OptionalHook(name string, target, replacement uintptr) *holyhook.Hook {
	h, err := v.Hook(name, target, replacement)
	if err != nil {
		v.Report(err)
		return nil
	}
	return h
}

// OptionalHookFunc is HookFunc with the failure handling of OptionalHook.
func (v *Env) OptionalHookFunc(name string, target uintptr, replacement any) *holyhook.Hook {
	h, err := v.HookFunc(name, target, replacement)
	if err != nil {
		v.Report(err)
		return nil
	}
	return h
}

// Report hands a non fatal failure of the module to the diagnostic sink.
func (v *Env) Report(err error) {
	if err == nil {
		return
	}
	v.r.report(diag.FromError(v.Name(), v.e.phase, err))
}
