package symbol

import (
	"slices"
	"testing"

	"github.com/ZenLiuCN/fn"
)

// testdata/vis32.so is a minimal i386 shared object: CM_Vis is a local function known only to .symtab,
// holyhook_ping is exported.
const vis32 = "testdata/vis32.so"

func TestOpenTable(t *testing.T) {
	tab := fn.Panic1(OpenTable(vis32))
	if tab.FirstVaddr != 0 {
		t.Fatalf("first vaddr %#x", tab.FirstVaddr)
	}
	if v, ok := tab.Lookup("CM_Vis"); !ok || v != 0x100 {
		t.Fatalf("CM_Vis %#x %v", v, ok)
	}
	if _, ok := tab.Exported("CM_Vis"); ok {
		t.Fatal("local symbol reported as exported")
	}
	if v, ok := tab.Exported("holyhook_ping"); !ok || v != 0x140 {
		t.Fatalf("holyhook_ping %#x %v", v, ok)
	}
	if names := tab.Names(); !slices.Equal(names, []string{"CM_Vis", "holyhook_ping"}) {
		t.Fatal(names)
	}
	if _, err := OpenTable("testdata/missing.so"); err == nil {
		t.Fatal("missing file opened")
	}
}

func TestFileSections(t *testing.T) {
	sections := fn.Panic1(FileSections(vis32))
	if len(sections) != 1 || sections[0].Name != ".text" || sections[0].Addr != 0x100 {
		t.Fatalf("%+v", sections)
	}
	p := MustPattern("55 89 E5 57 56 53 83 EC 2C 8B 45 08 8B 5D 0C 8B 75 14")
	if offsets := p.Find(sections[0].Data, 0); !slices.Equal(offsets, []int{0}) {
		t.Fatal(offsets)
	}
	if offsets := MustPattern("B8 2A 00 00 00 C3").Find(sections[0].Data, 0); !slices.Equal(offsets, []int{0x40}) {
		t.Fatal(offsets)
	}
}
