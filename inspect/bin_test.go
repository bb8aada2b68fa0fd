package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"inspect"}, args...))
	return out.String(), err
}

func TestToggles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.toml")
	fn.Panic1(run(t, "-c", path, "enable", "httpserver"))
	fn.Panic1(run(t, "-c", path, "disable", "pvs"))
	fn.Panic1(run(t, "-c", path, "debug", "pvs", "3"))
	if _, err := run(t, "-c", path, "enable", "nosuch"); err == nil {
		t.Fatal("unknown module accepted")
	}
	if _, err := run(t, "-c", path, "debug", "pvs", "high"); err == nil {
		t.Fatal("bad level accepted")
	}

	s := fn.Panic1(config.OpenStore(path))
	if !s.Enabled("httpserver", false) || s.Enabled("pvs", true) || s.DebugLevel("pvs") != 3 {
		t.Fatalf("store %v", s.Names())
	}
	out := fn.Panic1(run(t, "-c", path, "modules"))
	for _, line := range []string{
		"entitylist\tenabled=true\tdebug=0\tplatforms=linux32|linux64|windows32|windows64",
		"pvs\tenabled=false\tdebug=3\tplatforms=linux32",
		"httpserver\tenabled=true",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in\n%s", line, out)
		}
	}
}

func TestScanErrors(t *testing.T) {
	if _, err := run(t, "scan", "nofile"); err == nil {
		t.Fatal("missing pattern accepted")
	}
	if _, err := run(t, "scan", "-p", "GG", "nofile"); err == nil {
		t.Fatal("bad pattern accepted")
	}
	text := filepath.Join(t.TempDir(), "plain.txt")
	fn.Panic(os.WriteFile(text, []byte("not a library"), 0o644))
	if _, err := run(t, "scan", "-p", "55 8B EC", text); err == nil || !strings.Contains(err.Error(), "neither ELF nor PE") {
		t.Fatalf("text file: %v", err)
	}
	if _, err := run(t, "symbols", text); err == nil {
		t.Fatal("text file has symbols")
	}
}

func TestScanExecutable(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		t.Skip("not an ELF or PE host")
	}
	self := fn.Panic1(os.Executable())
	out, err := run(t, "scan", "-p", "DE AD BE EF 13 37 C0 DE 99 F1", self)
	if err == nil || !strings.Contains(err.Error(), "not found") || !strings.Contains(out, "0 match(es)") {
		t.Fatalf("absent pattern: %v\n%s", err, out)
	}
	out, err = run(t, "scan", "-p", "?? ??", self)
	if err == nil || !strings.Contains(err.Error(), "ambiguous") || strings.Contains(out, "\t0 match(es)") {
		t.Fatalf("wildcard pattern: %v\n%s", err, out)
	}
}

func TestScanFixture(t *testing.T) {
	lib := filepath.Join("..", "symbol", "testdata", "vis32.so")
	out := fn.Panic1(run(t, "scan", "-p", "55 89 E5 57 56 53 83 EC 2C ?? 45 08", lib))
	if !strings.Contains(out, lib+"\t.text\t0x100\n") || !strings.Contains(out, "\t1 match(es)") {
		t.Fatal(out)
	}
	out = fn.Panic1(run(t, "symbols", lib))
	if !strings.Contains(out, "0x100\tfalse\tCM_Vis\n") || !strings.Contains(out, "0x140\ttrue\tholyhook_ping\n") {
		t.Fatal(out)
	}
}
