package physenv

import (
	"testing"
	"time"
	"unsafe"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/davecgh/go-spew/spew"
)

type rig struct {
	m        *Module
	rec      *bridge.Recorder
	clock    time.Time
	answer   any
	impacts  int
	simulate int
	asked    []float64
}

func newRig() *rig {
	r := &rig{m: New(), rec: bridge.NewRecorder(), clock: time.Unix(1000, 0)}
	r.m.now = func() time.Time { return r.clock }
	r.m.surface = r.rec
	r.m.doImpact.Set(func(uintptr) { r.impacts++ })
	r.m.simulateTimeEvent.Set(func(uintptr, uintptr) { r.simulate++ })
	r.rec.OnHook(PhysicsLagEvent, func(args ...any) (any, error) {
		r.asked = append(r.asked, args[0].(float64))
		return r.answer, nil
	})
	return r
}

// run simulates one frame taking d before its mindist events fire.
func (r *rig) run(d time.Duration) {
	r.m.simulateTimeEvents.Set(func(uintptr, uintptr, uintptr, float64) {
		r.clock = r.clock.Add(d)
		r.m.simulate(1, 2)
		r.m.impact(1)
		r.m.simulate(1, 2)
		r.m.impact(1)
	})
	r.m.frame(1, 2, 3, 0.015)
}

func TestSkipDecisions(t *testing.T) {
	cases := []struct {
		name     string
		lag      time.Duration
		answer   any
		asked    int
		impacts  int
		simulate int
	}{
		{"on time", 20 * time.Millisecond, int64(SkipSimulation), 0, 2, 2},
		{"skip simulation", 150 * time.Millisecond, int64(SkipSimulation), 1, 2, 0},
		{"skip impact", 150 * time.Millisecond, int64(SkipImpact), 1, 0, 2},
		{"no skip", 150 * time.Millisecond, int64(NoSkip), 1, 2, 2},
		{"out of range", 150 * time.Millisecond, int64(7), 1, 2, 2},
		{"no answer", 150 * time.Millisecond, nil, 1, 2, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newRig()
			r.answer = c.answer
			r.run(c.lag)
			if len(r.asked) != c.asked || r.impacts != c.impacts || r.simulate != c.simulate {
				t.Fatal(spew.Sdump(r.asked), r.impacts, r.simulate)
			}
			if c.asked > 0 && r.asked[0] != 150 {
				t.Fatal(r.asked)
			}
			if v := fn.Panic1(r.m.functions()["GetPhysSkipType"](nil)); v[0] != int64(outsideFrame) {
				t.Fatal("frame not closed", v)
			}
		})
	}
}

func TestScriptOverridesSkip(t *testing.T) {
	r := newRig()
	f := r.m.functions()
	fn.Panic1(f["SetLagThreshold"](bridge.Args{int64(250)}))
	if v := fn.Panic1(f["GetLagThreshold"](nil)); v[0] != float64(250) {
		t.Fatal(v)
	}
	r.run(200 * time.Millisecond)
	if len(r.asked) != 0 {
		t.Fatal("threshold ignored")
	}
	r.m.simulateTimeEvents.Set(func(uintptr, uintptr, uintptr, float64) {
		fn.Panic1(f["SetPhysSkipType"](bridge.Args{int64(SkipImpact)}))
		r.m.impact(1)
		r.m.simulate(1, 2)
	})
	r.m.frame(1, 2, 3, 0)
	if r.impacts != 2 || r.simulate != 3 {
		t.Fatal(r.impacts, r.simulate)
	}
	if _, ok := f["GetCurrentMindist"]; ok {
		t.Fatal("published without the global")
	}
}

func TestCurrentMindist(t *testing.T) {
	m := New()
	slot := []uint32{0xCAFE}
	m.currentMindist = uintptr(unsafe.Pointer(&slot[0]))
	v := fn.Panic1(m.functions()["GetCurrentMindist"](nil))
	if v[0] != int64(0xCAFE) {
		t.Fatal(v)
	}
}

func TestLoadWithoutVphysics(t *testing.T) {
	sink := new(diag.Collector)
	reg := fn.Panic1(registry.New(registry.Options{Platform: platform.Linux32, Sink: sink}, New()))
	reg.LoadAll()
	recs := sink.Of(Name)
	if len(recs) != 2 || recs[0].Target != CurrentMindist.Name || recs[1].Target != SimulateTimeEvents.Name {
		t.Fatal(spew.Sdump(recs))
	}
	if fn.Panic1(reg.Status(Name)).State != registry.Unloaded {
		t.Fatal("loaded without hooks")
	}
}
