// Package voicechat hands every voice packet the server relays to the scripts, which may drop it.
package voicechat

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/ZenLiuCN/holyhook/symbol"
	"go.uber.org/zap"
)

const (
	Name = "voicechat"
	// PreProcessEvent runs with the client handle, the packet payload and its length. A true result drops the packet.
	PreProcessEvent = "HolyLib:PreProcessVoiceChat"
)

// BroadcastVoiceData is SV_BroadcastVoiceData(IClient*, int, char*, int64) in the engine library. Stripped builds
// locate it through its call site in CGameClient::ProcessVoiceData.
var BroadcastVoiceData = symbol.Symbol{
	Name:   "SV_BroadcastVoiceData",
	Export: "_Z21SV_BroadcastVoiceDataP7IClientiPcx",
	Signature: symbol.Signature{
		platform.Windows32: "E8 ?? ?? ?? ?? 83 C4 14 5F 5E 5B 8B E5 5D C2 04 00",
		platform.Linux64:   "E8 ?? ?? ?? ?? 48 8B 5D F8 C9 C3",
	},
	Deref: &symbol.Relative{InstrLen: 5, DispOffset: 1},
}

type Module struct {
	registry.Base
	original holyhook.Native[func(client uintptr, n int32, data uintptr, xuid int64)]
	hook     *holyhook.Hook
	surface  bridge.Surface
	log      *zap.Logger
	debug    func(level int) bool
	count    atomic.Int64
	enabled  atomic.Bool
	mu       sync.RWMutex
}

func New() *Module {
	m := &Module{log: zap.NewNop(), debug: func(int) bool { return false }}
	m.enabled.Store(true)
	return m
}

func (m *Module) Descriptor() registry.Descriptor {
	return registry.Descriptor{
		Name:           Name,
		Compatibility:  platform.Of(platform.Linux32, platform.Linux64, platform.Windows32),
		DefaultEnabled: true,
	}
}

func (m *Module) BindNative(env *registry.Env) error {
	m.log = env.Logger()
	m.debug = env.Debugger()
	return nil
}

func (m *Module) InstallHooks(env *registry.Env) (err error) {
	m.hook, err = env.HookSymbol("engine", BroadcastVoiceData, m.relay, m.original.Binder(BroadcastVoiceData.Name))
	return
}

func (m *Module) BindScript(env *registry.Env) error {
	s := env.Surface()
	for name, f := range m.functions() {
		if err := s.PublishFunction(Name, name, f); err != nil {
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
	return
}

func (m *Module) UnbindNative(*registry.Env) error {
	m.hook = nil
	m.original.Clear()
	return nil
}

func (m *Module) functions() map[string]bridge.Function {
	return map[string]bridge.Function{
		"GetVoiceCount": func(bridge.Args) ([]any, error) {
			return []any{m.count.Load()}, nil
		},
		"SetHooksEnabled": func(a bridge.Args) ([]any, error) {
			m.enabled.Store(a.Bool(0))
			return nil, nil
		},
		"IsHooked": func(bridge.Args) ([]any, error) {
			return []any{m.hook != nil && m.hook.State() == holyhook.Installed}, nil
		},
	}
}

// relay replaces SV_BroadcastVoiceData.
func (m *Module) relay(client uintptr, n int32, data uintptr, xuid int64) uintptr {
	m.count.Add(1)
	if m.debug(1) {
		m.log.Debug("voice data", zap.Uintptr("client", client), zap.Int32("bytes", n), zap.Uintptr("data", data))
	}
	m.preProcess(client, holyhook.View(data, int(n))).Resolve(func() struct{} {
		if original := m.original.Get(); original != nil {
			original(client, n, data, xuid)
		}
		return struct{}{}
	})
	return 0
}

// preProcess asks the scripts whether the packet was handled.
func (m *Module) preProcess(client uintptr, payload []byte) holyhook.Verdict[struct{}] {
	if !m.enabled.Load() {
		return holyhook.CallOriginal[struct{}]()
	}
	m.mu.RLock()
	s := m.surface
	m.mu.RUnlock()
	if s == nil {
		return holyhook.CallOriginal[struct{}]()
	}
	handled, err := s.RunHook(PreProcessEvent, int64(client), string(payload), int64(len(payload)))
	if err != nil {
		m.log.Warn("voice hook failed", zap.Error(err))
		return holyhook.CallOriginal[struct{}]()
	}
	if bridge.Truthy(handled) {
		return holyhook.Suppress(struct{}{})
	}
	return holyhook.CallOriginal[struct{}]()
}
