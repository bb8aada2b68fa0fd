package pvs

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/davecgh/go-spew/spew"
)

func call(t *testing.T, m *Module, name string, args ...any) []any {
	t.Helper()
	return fn.Panic1(m.functions()[name](args))
}

func TestVisibilityWindow(t *testing.T) {
	m := New()
	buf := bytes.Repeat([]byte{0xFF}, 8)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	var clusters []int32
	m.cmVis.Set(func(dest uintptr, size, cluster, kind int32) {
		clusters = append(clusters, cluster)
		holyhook.View(dest, int(size))[cluster/8] |= 1 << (cluster % 8)
	})
	ran := false
	m.setupVisibility.Set(func(player, view, pvs uintptr, size int32) {
		ran = true
		if call(t, m, "InPVSCallback")[0] != true || call(t, m, "GetPVSSize")[0] != int64(8) || pvs != addr {
			t.Error("PVS not active inside the original")
		}
		call(t, m, "ResetPVS")
		if !bytes.Equal(buf, make([]byte, 8)) {
			t.Error("ResetPVS", buf)
		}
		call(t, m, "GetPVSForCluster", int64(9))
	})
	m.visibility(1, 2, addr, 8)
	if !ran || len(clusters) != 1 || clusters[0] != 9 || buf[1] != 0x02 {
		t.Fatal(ran, clusters, buf)
	}
	if call(t, m, "InPVSCallback")[0] != false || call(t, m, "GetPVSSize")[0] != int64(-1) {
		t.Fatal("PVS still active")
	}
	if _, err := m.functions()["ResetPVS"](nil); !errors.Is(err, ErrNoActivePVS) {
		t.Fatal(err)
	}
	m.cmVis.Clear()
	m.setupVisibility.Set(func(uintptr, uintptr, uintptr, int32) {
		if _, err := m.functions()["GetPVSForCluster"](bridge.Args{int64(1)}); !errors.Is(err, ErrNoClusterVis) {
			t.Error(err)
		}
	})
	m.visibility(1, 2, addr, 8)
}

func TestTransmitVeto(t *testing.T) {
	m := New()
	rec := bridge.NewRecorder()
	m.surface = rec
	var original []int32
	m.checkTransmit.Set(func(ents, info, indices uintptr, n int32) {
		original = append(original, n)
	})
	rec.OnHook(PreCheckTransmitEvent, func(args ...any) (any, error) {
		return args[1] == int64(13), nil
	})
	m.transmit(1, 0x100, 0x200, 12)
	m.transmit(1, 0x100, 0x200, 13)
	if len(original) != 1 || original[0] != 12 || len(rec.Runs()) != 2 {
		t.Fatal(original, rec.Runs())
	}
}

func TestLoadReportsOptionalAndRequired(t *testing.T) {
	sink := new(diag.Collector)
	rec := bridge.NewRecorder()
	reg := fn.Panic1(registry.New(registry.Options{Platform: platform.Linux32, Surface: rec, Sink: sink}, New()))
	reg.LoadAll()
	recs := sink.Of(Name)
	if len(recs) != 2 {
		t.Fatal(spew.Sdump(recs))
	}
	if recs[0].Phase != diag.PhaseBindNative || recs[0].Target != ClusterVis.Name || recs[0].Kind != diag.KindSymbolNotFound {
		t.Fatal("optional CM_Vis", spew.Sdump(recs[0]))
	}
	if recs[1].Phase != diag.PhaseInstallHooks || recs[1].Target != SetupVisibility.Name {
		t.Fatal("required hook", spew.Sdump(recs[1]))
	}
	if st := fn.Panic1(reg.Status(Name)); st.State != registry.Unloaded || st.Hooks != 0 {
		t.Fatal(spew.Sdump(st))
	}

	other := fn.Panic1(registry.New(registry.Options{Platform: platform.Linux64, Sink: sink}, New()))
	other.LoadAll()
	if len(sink.Records()) != 2 {
		t.Fatal("incompatible module touched")
	}
}
