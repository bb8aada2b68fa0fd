package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	c := fn.Panic1(Load())
	if c.Store != "holyhook.toml" || c.LogLevel != "info" || c.LogFormat != "console" {
		t.Fatalf("defaults %+v", c)
	}
	if !slices.Equal(c.LogOutput, []string{"stderr"}) || c.Debug || len(c.Disable) != 0 {
		t.Fatalf("defaults %+v", c)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HOLYHOOK_PLATFORM", "windows32")
	t.Setenv("HOLYHOOK_STORE", "/tmp/x.toml")
	t.Setenv("HOLYHOOK_DEBUG", "true")
	t.Setenv("HOLYHOOK_DISABLE", "pvs,physenv")
	c := fn.Panic1(Load())
	if c.Store != "/tmp/x.toml" || !c.Debug || !slices.Equal(c.Disable, []string{"pvs", "physenv"}) {
		t.Fatalf("parsed %+v", c)
	}
	if tag := fn.Panic1(c.Tag()); tag != platform.Windows32 {
		t.Fatalf("tag %s", tag)
	}
	t.Setenv("HOLYHOOK_DEBUG", "maybe")
	if _, err := Load(); err == nil {
		t.Fatal("bad bool accepted")
	}
}

func TestTag(t *testing.T) {
	if _, err := (Config{Platform: "amiga"}).Tag(); err == nil {
		t.Fatal("unknown platform accepted")
	}
	if d := platform.Detect(); d != platform.Unknown {
		if tag := fn.Panic1(Config{}.Tag()); tag != d {
			t.Fatalf("detected %s, got %s", d, tag)
		}
	}
}

func TestLogger(t *testing.T) {
	l := fn.Panic1(Config{LogLevel: "debug", LogFormat: "json"}.Logger())
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Fatal("debug not enabled")
	}
	l = fn.Panic1(Config{LogLevel: "warn"}.Logger())
	if l.Core().Enabled(zap.InfoLevel) || !l.Core().Enabled(zap.WarnLevel) {
		t.Fatal("warn level not applied")
	}
	if _, err := (Config{LogLevel: "loud"}).Logger(); err == nil {
		t.Fatal("bad level accepted")
	}
	if _, err := (Config{LogLevel: "info", LogFormat: "xml"}).Logger(); err == nil {
		t.Fatal("bad format accepted")
	}
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.toml")
	s := fn.Panic1(OpenStore(path))
	var _ registry.Store = s
	if !s.Enabled("pvs", true) || s.Enabled("httpserver", false) || s.DebugLevel("pvs") != 0 {
		t.Fatal("empty store does not return defaults")
	}
	fn.Panic(s.SetEnabled("pvs", false))
	fn.Panic(s.SetDebugLevel("pvs", 2))
	fn.Panic(s.SetEnabled("httpserver", true))
	if err := s.SetDebugLevel("pvs", -1); err == nil {
		t.Fatal("negative level accepted")
	}

	r := fn.Panic1(OpenStore(path))
	if r.Enabled("pvs", true) || !r.Enabled("httpserver", false) || r.DebugLevel("pvs") != 2 {
		t.Fatalf("reopened store lost toggles: %v", r.Names())
	}
	if !slices.Equal(r.Names(), []string{"httpserver", "pvs"}) {
		t.Fatalf("names %v", r.Names())
	}
}

func TestOverlay(t *testing.T) {
	s := fn.Panic1(OpenStore(filepath.Join(t.TempDir(), "toggles.toml")))
	fn.Panic(s.SetEnabled("voicechat", true))
	o := NewOverlay(s, "voicechat")
	if o.Enabled("voicechat", true) || !o.Enabled("pvs", true) {
		t.Fatal("overlay not applied")
	}
	if !s.Enabled("voicechat", false) {
		t.Fatal("overlay changed the store")
	}
	if err := o.SetEnabled("voicechat", true); !errors.Is(err, ErrOverridden) {
		t.Fatal("enabling a forced-disabled module must fail", err)
	}
	fn.Panic(o.SetEnabled("voicechat", false))
	if s.Enabled("voicechat", true) {
		t.Fatal("disable not persisted")
	}
	fn.Panic(o.SetEnabled("pvs", true))
}

func TestOpenStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	fn.Panic(writeFile(path, "modules = [[["))
	if _, err := OpenStore(path); err == nil {
		t.Fatal("broken toml accepted")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
