// Package physenv lets scripts skip parts of the physics simulation when a frame runs late.
//
// Every simulation frame starts undecided. The first mindist event seen after the lag threshold has passed asks the
// scripts, through PhysicsLagEvent, which work to skip for the remainder of the frame.
package physenv

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/ZenLiuCN/holyhook/symbol"
	"go.uber.org/zap"
)

const (
	Name = "physenv"
	// PhysicsLagEvent runs with the elapsed frame time in milliseconds and returns a SkipType.
	PhysicsLagEvent = "HolyLib:PhysicsLag"
)

// SkipType decides what the rest of a lagging frame simulates.
type SkipType int32

const (
	outsideFrame   SkipType = -2
	undecided      SkipType = -1
	NoSkip         SkipType = 0
	SkipImpact     SkipType = 1
	SkipSimulation SkipType = 2
)

const DefaultLagThreshold = 100 * time.Millisecond

var (
	SimulateTimeEvents = symbol.Symbol{
		Name:   "IVP_Event_Manager_Standard::simulate_time_events",
		Export: "_ZN26IVP_Event_Manager_Standard20simulate_time_eventsEP16IVP_Time_ManagerP15IVP_Environment8IVP_Time",
	}
	DoImpact = symbol.Symbol{
		Name:   "IVP_Mindist::do_impact",
		Export: "_ZN11IVP_Mindist9do_impactEv",
	}
	SimulateTimeEvent = symbol.Symbol{
		Name:   "IVP_Mindist::simulate_time_event",
		Export: "_ZN11IVP_Mindist19simulate_time_eventEP15IVP_Environment",
	}
	CurrentMindist = symbol.Symbol{
		Name:   "g_pCurrentMindist",
		Export: "g_pCurrentMindist",
	}
)

type Module struct {
	registry.Base
	simulateTimeEvents holyhook.Native[func(manager, timeManager, environment uintptr, time float64)]
	doImpact           holyhook.Native[func(mindist uintptr)]
	simulateTimeEvent  holyhook.Native[func(mindist, environment uintptr)]
	currentMindist     uintptr
	ptrSize            int
	skip               atomic.Int32
	threshold          atomic.Int64
	frameStart         atomic.Int64
	now                func() time.Time
	surface            bridge.Surface
	log                *zap.Logger
	debug              func(level int) bool
	mu                 sync.RWMutex
}

func New() *Module {
	m := &Module{now: time.Now, ptrSize: 4, log: zap.NewNop(), debug: func(int) bool { return false }}
	m.skip.Store(int32(outsideFrame))
	m.threshold.Store(int64(DefaultLagThreshold))
	return m
}

func (m *Module) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: Name, Compatibility: platform.Of(platform.Linux32), DefaultEnabled: true}
}

// BindNative locates the current mindist global when vphysics exports it. Without it GetCurrentMindist is not
// published.
func (m *Module) BindNative(env *registry.Env) error {
	m.log = env.Logger()
	m.debug = env.Debugger()
	m.ptrSize = env.Platform().PointerSize()
	m.currentMindist = 0
	res, err := env.ResolveIn("vphysics", CurrentMindist)
	if err != nil {
		env.Report(err)
		return nil
	}
	m.currentMindist = res.Address
	return nil
}

func (m *Module) InstallHooks(env *registry.Env) error {
	_, err := env.HookSymbol("vphysics", SimulateTimeEvents, m.frame, m.simulateTimeEvents.Binder(SimulateTimeEvents.Name))
	if err != nil {
		return err
	}
	if _, err = env.HookSymbol("vphysics", DoImpact, m.impact, m.doImpact.Binder(DoImpact.Name)); err != nil {
		return err
	}
	_, err = env.HookSymbol("vphysics", SimulateTimeEvent, m.simulate, m.simulateTimeEvent.Binder(SimulateTimeEvent.Name))
	return err
}

func (m *Module) BindScript(env *registry.Env) error {
	s := env.Surface()
	for name, f := range m.functions() {
		if err := s.PublishFunction(Name, name, f); err != nil {
			return err
		}
	}
	for name, v := range constants {
		if err := s.PublishConstant(Name, name, v); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.surface = s
	m.mu.Unlock()
	return nil
}

func (m *Module) UnbindScript(env *registry.Env) (err error) {
	m.mu.Lock()
	m.surface = nil
	m.mu.Unlock()
	s := env.Surface()
	for name := range m.functions() {
		err = errors.Join(err, s.Remove(Name, name))
	}
	for name := range constants {
		err = errors.Join(err, s.Remove(Name, name))
	}
	return
}

func (m *Module) UnbindNative(*registry.Env) error {
	m.simulateTimeEvents.Clear()
	m.doImpact.Clear()
	m.simulateTimeEvent.Clear()
	m.currentMindist = 0
	return nil
}

var constants = map[string]any{
	"IVP_NoSkip":         int64(NoSkip),
	"IVP_SkipImpact":     int64(SkipImpact),
	"IVP_SkipSimulation": int64(SkipSimulation),
}

func (m *Module) functions() map[string]bridge.Function {
	f := map[string]bridge.Function{
		"SetPhysSkipType": func(a bridge.Args) ([]any, error) {
			v, err := a.Int(0)
			if err != nil {
				return nil, err
			}
			m.skip.Store(int32(v))
			return nil, nil
		},
		"GetPhysSkipType": func(bridge.Args) ([]any, error) {
			return []any{int64(m.skip.Load())}, nil
		},
		"SetLagThreshold": func(a bridge.Args) ([]any, error) {
			ms, err := a.Number(0)
			if err != nil {
				return nil, err
			}
			m.threshold.Store(int64(ms * float64(time.Millisecond)))
			return nil, nil
		},
		"GetLagThreshold": func(bridge.Args) ([]any, error) {
			return []any{float64(m.threshold.Load()) / float64(time.Millisecond)}, nil
		},
	}
	if m.currentMindist != 0 {
		f["GetCurrentMindist"] = func(bridge.Args) ([]any, error) {
			b := holyhook.View(m.currentMindist, m.ptrSize)
			if m.ptrSize == 8 {
				return []any{int64(binary.LittleEndian.Uint64(b))}, nil
			}
			return []any{int64(binary.LittleEndian.Uint32(b))}, nil
		}
	}
	return f
}

// frame replaces IVP_Event_Manager_Standard::simulate_time_events and brackets one simulation frame.
func (m *Module) frame(manager, timeManager, environment uintptr, t float64) uintptr {
	m.frameStart.Store(m.now().UnixNano())
	m.skip.Store(int32(undecided))
	if original := m.simulateTimeEvents.Get(); original != nil {
		original(manager, timeManager, environment, t)
	}
	m.skip.Store(int32(outsideFrame))
	return 0
}

// impact replaces IVP_Mindist::do_impact.
func (m *Module) impact(mindist uintptr) uintptr {
	if m.debug(3) {
		m.log.Debug("do_impact", zap.Int32("skip", m.skip.Load()))
	}
	if SkipType(m.skip.Load()) == SkipImpact {
		return 0
	}
	if original := m.doImpact.Get(); original != nil {
		original(mindist)
	}
	return 0
}

// simulate replaces IVP_Mindist::simulate_time_event.
func (m *Module) simulate(mindist, environment uintptr) uintptr {
	m.checkLag()
	if SkipType(m.skip.Load()) == SkipSimulation {
		return 0
	}
	if original := m.simulateTimeEvent.Get(); original != nil {
		original(mindist, environment)
	}
	return 0
}

// checkLag asks the scripts once per late frame. Out of range answers mean NoSkip.
func (m *Module) checkLag() {
	if SkipType(m.skip.Load()) != undecided {
		return
	}
	elapsed := time.Duration(m.now().UnixNano() - m.frameStart.Load())
	if elapsed <= time.Duration(m.threshold.Load()) {
		return
	}
	m.mu.RLock()
	s := m.surface
	m.mu.RUnlock()
	if s == nil {
		return
	}
	v, err := s.RunHook(PhysicsLagEvent, float64(elapsed)/float64(time.Millisecond))
	if err != nil {
		m.log.Warn("physics lag hook failed", zap.Error(err))
		return
	}
	skip := NoSkip
	if n, err := (bridge.Args{v}).Int(0); err == nil && n >= int64(NoSkip) && n <= int64(SkipSimulation) {
		skip = SkipType(n)
	}
	m.skip.Store(int32(skip))
	if m.debug(3) {
		m.log.Debug("physics lag", zap.Duration("elapsed", elapsed), zap.Int32("skip", int32(skip)))
	}
}
