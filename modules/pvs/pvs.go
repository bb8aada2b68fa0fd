// Package pvs exposes the potentially visible set the server computes for each player while it builds a snapshot,
// and lets scripts veto entity transmission.
package pvs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/ZenLiuCN/holyhook/symbol"
	"go.uber.org/zap"
)

const (
	Name = "pvs"
	// PreCheckTransmitEvent runs with the transmit info handle and the edict count. A true result skips the
	// engine's transmit checks for that player.
	PreCheckTransmitEvent = "HolyLib:PreCheckTransmit"
)

// Transmit state flags of an edict.
const (
	FlEdictFullCheck = 0
	FlEdictAlways    = 1 << 3
	FlEdictDontSend  = 1 << 4
	FlEdictPVSCheck  = 1 << 5
)

const dvisPVS = 0

var (
	ErrNoActivePVS  = errors.New("no active PVS")
	ErrNoClusterVis = errors.New("CM_Vis is unavailable")
)

var (
	SetupVisibility = symbol.Symbol{
		Name:   "CGMOD_Player::SetupVisibility",
		Export: "_ZN12CGMOD_Player15SetupVisibilityEP11CBaseEntityPhi",
	}
	CheckTransmit = symbol.Symbol{
		Name:   "CServerGameEnts::CheckTransmit",
		Export: "_ZN15CServerGameEnts13CheckTransmitEP18CCheckTransmitInfoPKti",
	}
	ClusterVis = symbol.Symbol{
		Name:      "CM_Vis",
		Export:    "_Z6CM_VisPhiii",
		Signature: symbol.Signature{platform.Linux32: "55 89 E5 57 56 53 83 EC 2C 8B 45 08 8B 5D 0C 8B 75 14"},
	}
)

type Module struct {
	registry.Base
	setupVisibility holyhook.Native[func(player, view, pvs uintptr, size int32)]
	checkTransmit   holyhook.Native[func(ents, info, indices uintptr, n int32)]
	cmVis           holyhook.Native[func(dest uintptr, size, cluster, kind int32)]
	current         uintptr
	size            int32
	surface         bridge.Surface
	log             *zap.Logger
	debug           func(level int) bool
	sync.Mutex
}

func New() *Module {
	return &Module{size: -1, log: zap.NewNop(), debug: func(int) bool { return false }}
}

func (m *Module) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: Name, Compatibility: platform.Of(platform.Linux32), DefaultEnabled: true}
}

// BindNative binds CM_Vis when the engine has it. Without it GetPVSForCluster is unavailable.
func (m *Module) BindNative(env *registry.Env) error {
	m.log = env.Logger()
	m.debug = env.Debugger()
	res, err := env.ResolveIn("engine", ClusterVis)
	if err == nil {
		err = m.cmVis.Bind(res.Name, res.Address)
	}
	if err != nil {
		m.cmVis.Clear()
		env.Report(err)
	}
	return nil
}

func (m *Module) InstallHooks(env *registry.Env) error {
	if _, err := env.HookSymbol("server", SetupVisibility, m.visibility, m.setupVisibility.Binder(SetupVisibility.Name)); err != nil {
		return err
	}
	_, err := env.HookSymbol("server", CheckTransmit, m.transmit, m.checkTransmit.Binder(CheckTransmit.Name))
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
	m.Lock()
	m.surface = s
	m.Unlock()
	return nil
}

func (m *Module) UnbindScript(env *registry.Env) (err error) {
	m.Lock()
	m.surface = nil
	m.Unlock()
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
	m.setupVisibility.Clear()
	m.checkTransmit.Clear()
	m.cmVis.Clear()
	return nil
}

var constants = map[string]any{
	"FL_EDICT_FULLCHECK": int64(FlEdictFullCheck),
	"FL_EDICT_ALWAYS":    int64(FlEdictAlways),
	"FL_EDICT_DONTSEND":  int64(FlEdictDontSend),
	"FL_EDICT_PVSCHECK":  int64(FlEdictPVSCheck),
}

func (m *Module) functions() map[string]bridge.Function {
	return map[string]bridge.Function{
		"InPVSCallback": func(bridge.Args) ([]any, error) {
			m.Lock()
			defer m.Unlock()
			return []any{m.current != 0}, nil
		},
		"GetPVSSize": func(bridge.Args) ([]any, error) {
			m.Lock()
			defer m.Unlock()
			return []any{int64(m.size)}, nil
		},
		"ResetPVS": func(bridge.Args) ([]any, error) {
			buf, err := m.active("ResetPVS")
			if err != nil {
				return nil, err
			}
			clear(buf)
			return nil, nil
		},
		"GetPVSForCluster": func(a bridge.Args) ([]any, error) {
			cluster, err := a.Int(0)
			if err != nil {
				return nil, err
			}
			buf, err := m.active("GetPVSForCluster")
			if err != nil {
				return nil, err
			}
			vis := m.cmVis.Get()
			if vis == nil {
				return nil, ErrNoClusterVis
			}
			clear(buf)
			vis(m.current, int32(len(buf)), int32(cluster), dvisPVS)
			return nil, nil
		},
	}
}

// active is the PVS buffer of the player being set up.
func (m *Module) active(op string) ([]byte, error) {
	m.Lock()
	defer m.Unlock()
	if m.current == 0 {
		return nil, fmt.Errorf("pvs.%s: %w", op, ErrNoActivePVS)
	}
	return holyhook.View(m.current, int(m.size)), nil
}

// visibility replaces CGMOD_Player::SetupVisibility, the buffer is active for scripts while the original runs.
func (m *Module) visibility(player, view, pvs uintptr, size int32) uintptr {
	m.Lock()
	m.current, m.size = pvs, size
	m.Unlock()
	defer func() {
		m.Lock()
		m.current, m.size = 0, -1
		m.Unlock()
	}()
	if original := m.setupVisibility.Get(); original != nil {
		original(player, view, pvs, size)
	}
	return 0
}

// transmit replaces CServerGameEnts::CheckTransmit.
func (m *Module) transmit(ents, info, indices uintptr, n int32) uintptr {
	m.preCheck(info, n).Resolve(func() struct{} {
		if original := m.checkTransmit.Get(); original != nil {
			original(ents, info, indices, n)
		}
		return struct{}{}
	})
	return 0
}

func (m *Module) preCheck(info uintptr, n int32) holyhook.Verdict[struct{}] {
	m.Lock()
	s := m.surface
	m.Unlock()
	if s == nil {
		return holyhook.CallOriginal[struct{}]()
	}
	cancel, err := s.RunHook(PreCheckTransmitEvent, int64(info), int64(n))
	if err != nil {
		m.log.Warn("transmit hook failed", zap.Error(err))
		return holyhook.CallOriginal[struct{}]()
	}
	if bridge.Truthy(cancel) {
		if m.debug(2) {
			m.log.Debug("transmit cancelled", zap.Uintptr("info", info), zap.Int32("edicts", n))
		}
		return holyhook.Suppress(struct{}{})
	}
	return holyhook.CallOriginal[struct{}]()
}
