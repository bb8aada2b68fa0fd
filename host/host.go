// Package host wires the plugin together: configuration, logging, the hook engine and the registry holding the
// compiled-in modules.
package host

import (
	"errors"
	"fmt"

	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/config"
	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/modules/entitylist"
	"github.com/ZenLiuCN/holyhook/modules/httpserver"
	"github.com/ZenLiuCN/holyhook/modules/physenv"
	"github.com/ZenLiuCN/holyhook/modules/pvs"
	"github.com/ZenLiuCN/holyhook/modules/voicechat"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/ZenLiuCN/holyhook/symbol"
	"go.uber.org/zap"
)

type (
	// Options replace process collaborators. Zero fields use the running process.
	Options struct {
		Memory  holyhook.Memory
		Loader  symbol.Loader
		Surface bridge.Surface
		Sink    diag.Sink
	}
	// Host is one attach of the plugin.
	Host struct {
		cfg    config.Config
		tag    platform.Tag
		log    *zap.Logger
		store  *config.Store
		engine *holyhook.Engine
		shared bool //engine is holyhook.Default
		reg    *registry.Registry
		diag   *diag.Collector
	}
)

var ErrDetached = errors.New("host detached")

// Modules are the compiled-in modules in load order.
func Modules() []registry.Module {
	return []registry.Module{entitylist.New(), pvs.New(), physenv.New(), voicechat.New(), httpserver.New()}
}

// Attach builds the registry and loads every enabled module.
func Attach(cfg config.Config, opts Options) (h *Host, err error) {
	h = &Host{cfg: cfg, diag: new(diag.Collector)}
	if h.tag, err = cfg.Tag(); err != nil {
		return nil, err
	}
	if h.log, err = cfg.Logger(); err != nil {
		return nil, err
	}
	holyhook.SetLogger(h.log)
	registry.SetLogger(h.log)
	if h.store, err = config.OpenStore(cfg.Store); err != nil {
		return nil, err
	}
	if err = h.newEngine(opts.Memory); err != nil {
		return nil, err
	}
	if opts.Loader == nil {
		opts.Loader = symbol.NewLoader(h.tag)
	}
	if opts.Surface == nil {
		if opts.Surface, err = bridge.NewLuaSurface(); err != nil {
			return nil, fmt.Errorf("scripting surface: %w", err)
		}
	}
	sinks := []diag.Sink{diag.NewZapSink(h.log), h.diag}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}
	h.reg, err = registry.New(registry.Options{
		Platform: h.tag,
		Engine:   h.engine,
		Loader:   opts.Loader,
		Resolver: symbol.NewResolver(h.engine.Memory(), h.tag),
		Surface:  opts.Surface,
		Store:    config.NewOverlay(h.store, cfg.Disable...),
		Sink:     diag.Tee(sinks...),
	}, Modules()...)
	if err != nil {
		return nil, err
	}
	h.log.Info("attach", zap.Stringer("platform", h.tag), zap.String("store", h.store.Path()))
	h.reg.LoadAll()
	for _, s := range h.reg.Modules() {
		h.log.Debug("module", zap.String("name", s.Name), zap.Stringer("state", s.State), zap.Bool("compatible", s.Compatible))
	}
	return
}

func (h *Host) newEngine(mem holyhook.Memory) (err error) {
	if mem == nil && h.tag == platform.Detect() && !h.cfg.Debug {
		h.shared = true
		h.engine, err = holyhook.Default()
		return
	}
	if mem == nil {
		if mem, err = holyhook.NewProcessMemory(); err != nil {
			return
		}
	}
	h.engine, err = holyhook.NewEngine(mem, h.tag, h.cfg.Debug)
	return
}

func (h *Host) Registry() *registry.Registry {
	return h.reg
}

func (h *Host) Logger() *zap.Logger {
	return h.log
}

func (h *Host) Platform() platform.Tag {
	return h.tag
}

// Diagnostics recorded since attach.
func (h *Host) Diagnostics() []diag.Record {
	return h.diag.Records()
}

// Reload moves the modules to a new scripting runtime, nil rebinds them to the current one.
func (h *Host) Reload(next bridge.Surface) error {
	if h.reg == nil {
		return ErrDetached
	}
	h.reg.ReloadScriptingSurface(next)
	return nil
}

func (h *Host) Think(simulating bool) {
	if h.reg != nil {
		h.reg.Think(simulating)
	}
}

// Detach unloads every module. Hooks a module failed to remove are uninstalled by the engine before returning.
func (h *Host) Detach() (err error) {
	if h.reg == nil {
		return ErrDetached
	}
	h.reg.UnloadAll()
	h.reg = nil
	if left := h.engine.Hooks(); len(left) > 0 {
		h.log.Warn("hooks left after unload", zap.Int("count", len(left)))
		if h.shared {
			err = holyhook.CloseGlobal()
		} else {
			err = h.engine.Close()
		}
	}
	h.log.Info("detach")
	_ = h.log.Sync()
	return
}
