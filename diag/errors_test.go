package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func TestIsByKind(t *testing.T) {
	err := New(KindPatternNotFound).Target("CM_Vis").Detail("no match in %s", "engine").Build()
	wrapped := fmt.Errorf("bind: %w", err)
	if !errors.Is(wrapped, ErrPatternNotFound) {
		t.Fatal("expected pattern not found")
	}
	if errors.Is(wrapped, ErrSymbolNotFound) {
		t.Fatal("kinds must not cross-match")
	}
	if KindOf(wrapped) != KindPatternNotFound || TargetOf(wrapped) != "CM_Vis" {
		t.Fatalf("kind=%s target=%s", KindOf(wrapped), TargetOf(wrapped))
	}
	if KindOf(errors.New("x")) != KindModuleFailure || KindOf(nil) != "" {
		t.Fatal("foreign kinds")
	}
}

func TestAt(t *testing.T) {
	if At("pvs", PhaseBindNative, nil) != nil {
		t.Fatal("nil must stay nil")
	}
	inner := New(KindSymbolNotFound).Target("PhysFrame").Build()
	e := At("physenv", PhaseBindNative, inner)
	if e.Kind != KindSymbolNotFound || e.Target != "PhysFrame" || !errors.Is(e, ErrSymbolNotFound) {
		t.Fatal(spew.Sdump(e))
	}
	if !strings.HasPrefix(e.Error(), "physenv [bind-native] symbol_not_found at PhysFrame") {
		t.Fatalf("message %q", e.Error())
	}
}

func TestRecordFromError(t *testing.T) {
	err := At("voicechat", PhaseInstallHooks, New(KindUnsupportedInstr).Target("SV_BroadcastVoiceData").Build())
	r := FromError("", PhaseNone, err)
	if r.Module != "voicechat" || r.Phase != PhaseInstallHooks || r.Kind != KindUnsupportedInstr || r.Target != "SV_BroadcastVoiceData" {
		t.Fatal(spew.Sdump(r))
	}
	var c Collector
	s := Tee(&c, Nop(), NewZapSink(nil))
	s.Report(r)
	s.Report(FromError("pvs", PhaseBindScript, errors.New("boom")))
	if len(c.Records()) != 2 || len(c.Of("pvs")) != 1 {
		t.Fatal(spew.Sdump(c.Records()))
	}
	c.Reset()
	if len(c.Records()) != 0 {
		t.Fatal("reset")
	}
}
