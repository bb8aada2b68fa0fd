package host

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/config"
	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/modules/entitylist"
	"github.com/ZenLiuCN/holyhook/modules/httpserver"
	"github.com/ZenLiuCN/holyhook/modules/physenv"
	"github.com/ZenLiuCN/holyhook/modules/pvs"
	"github.com/ZenLiuCN/holyhook/modules/voicechat"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/ZenLiuCN/holyhook/symbol"
	"github.com/davecgh/go-spew/spew"
)

var errUnmapped = errors.New("not mapped")

// noMemory is an address space no hook can be written to.
type noMemory struct{}

func (noMemory) Read(uintptr, int) ([]byte, error)   { return nil, errUnmapped }
func (noMemory) Write(uintptr, []byte) error         { return errUnmapped }
func (noMemory) Alloc(uintptr, int) (uintptr, error) { return 0, errUnmapped }
func (noMemory) Free(uintptr, int) error             { return nil }
func (noMemory) PageSize() int                       { return 4096 }

// noLibraries is a loader for a process without the game libraries.
type noLibraries struct{}

func (noLibraries) Open(name string) (symbol.Library, error) {
	return nil, errUnmapped
}

func attach(t *testing.T, platform string, surface bridge.Surface, disable ...string) *Host {
	t.Helper()
	cfg := config.Config{
		Platform:  platform,
		Store:     filepath.Join(t.TempDir(), "holyhook.toml"),
		LogLevel:  "error",
		LogFormat: "console",
		Disable:   disable,
	}
	h := fn.Panic1(Attach(cfg, Options{Memory: noMemory{}, Loader: noLibraries{}, Surface: surface}))
	t.Cleanup(func() {
		if h.reg != nil {
			_ = h.Detach()
		}
	})
	return h
}

func states(h *Host) map[string]registry.State {
	v := map[string]registry.State{}
	for _, s := range h.Registry().Modules() {
		v[s.Name] = s.State
	}
	return v
}

func TestModuleOrder(t *testing.T) {
	var names []string
	for _, m := range Modules() {
		names = append(names, m.Descriptor().Name)
	}
	want := []string{entitylist.Name, pvs.Name, physenv.Name, voicechat.Name, httpserver.Name}
	if !slices.Equal(names, want) {
		t.Fatalf("order %v", names)
	}
}

func TestAttachLinux64(t *testing.T) {
	rec := bridge.NewRecorder()
	h := attach(t, "linux64", rec)
	got := states(h)
	want := map[string]registry.State{
		entitylist.Name: registry.ScriptBound,
		pvs.Name:        registry.Unloaded,
		physenv.Name:    registry.Unloaded,
		voicechat.Name:  registry.Unloaded,
		httpserver.Name: registry.Unloaded,
	}
	for name, s := range want {
		if got[name] != s {
			t.Errorf("%s is %s, want %s", name, got[name], s)
		}
	}
	if s := fn.Panic1(h.Registry().Status(voicechat.Name)); s.Err == nil || !s.Compatible {
		t.Fatalf("voicechat %s", spew.Sdump(s))
	}
	var failed []string
	for _, r := range h.Diagnostics() {
		failed = append(failed, r.Module)
	}
	if !slices.Equal(failed, []string{voicechat.Name}) {
		t.Fatalf("diagnostics %s", spew.Sdump(h.Diagnostics()))
	}
	if !slices.Contains(rec.Tables(), entitylist.Name) {
		t.Fatalf("tables %v", rec.Tables())
	}
	id := fn.Panic1(rec.Call(entitylist.Name, "Create"))[0]
	fn.Panic1(rec.Call(entitylist.Name, "Add", id, int64(4)))
	if n := fn.Panic1(rec.Call(entitylist.Name, "Count", id))[0]; n != int64(1) {
		t.Fatalf("count %v", n)
	}

	fn.Panic(h.Detach())
	if slices.Contains(rec.Tables(), entitylist.Name) {
		t.Fatal("script bindings left after detach")
	}
	if !errors.Is(h.Detach(), ErrDetached) || !errors.Is(h.Reload(nil), ErrDetached) {
		t.Fatal("second detach accepted")
	}
	h.Think(true)
}

func TestAttachLinux32LoadsNothingNative(t *testing.T) {
	h := attach(t, "linux32", bridge.NewRecorder())
	for _, name := range []string{pvs.Name, physenv.Name, voicechat.Name} {
		s := fn.Panic1(h.Registry().Status(name))
		if s.State != registry.Unloaded || s.Err == nil {
			t.Errorf("%s: %s", name, spew.Sdump(s))
		}
	}
	for _, r := range h.Diagnostics() {
		if r.Kind == diag.KindPhaseOrderViolation {
			t.Fatalf("unexpected %s", spew.Sdump(r))
		}
	}
}

func TestDisableOverlay(t *testing.T) {
	h := attach(t, "windows64", bridge.NewRecorder(), entitylist.Name)
	if s := states(h)[entitylist.Name]; s != registry.Unloaded {
		t.Fatalf("entitylist %s", s)
	}
	if len(h.Diagnostics()) != 0 {
		t.Fatalf("diagnostics %s", spew.Sdump(h.Diagnostics()))
	}
}

func TestReloadAndLua(t *testing.T) {
	h := attach(t, "windows64", nil)
	lua, ok := h.Registry().Surface().(*bridge.LuaSurface)
	if !ok {
		t.Fatalf("surface %T", h.Registry().Surface())
	}
	v := fn.Panic1(lua.Eval(`(function() local l = entitylist.Create(); entitylist.Add(l, 7); return entitylist.Count(l) end)()`))
	if v != int64(1) {
		t.Fatalf("count %v", v)
	}
	next := bridge.NewRecorder()
	fn.Panic(h.Reload(next))
	if h.Registry().Surface() != next || !slices.Contains(next.Tables(), entitylist.Name) {
		t.Fatalf("not rebound: %v", next.Tables())
	}
	h.Think(false)
}

func TestAttachRejectsBadConfig(t *testing.T) {
	if _, err := Attach(config.Config{Platform: "amiga", LogLevel: "info"}, Options{}); err == nil {
		t.Fatal("bad platform accepted")
	}
	if _, err := Attach(config.Config{Platform: "linux32", LogLevel: "loud"}, Options{}); err == nil {
		t.Fatal("bad level accepted")
	}
}

var _ holyhook.Memory = noMemory{}
