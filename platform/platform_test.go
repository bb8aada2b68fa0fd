package platform

import (
	"slices"
	"testing"
)

func TestFromGo(t *testing.T) {
	cases := []struct {
		os, arch string
		want     Tag
	}{
		{"linux", "386", Linux32},
		{"linux", "amd64", Linux64},
		{"windows", "386", Windows32},
		{"windows", "amd64", Windows64},
		{"darwin", "amd64", Unknown},
		{"linux", "arm64", Unknown},
	}
	for _, c := range cases {
		if got := FromGo(c.os, c.arch); got != c.want {
			t.Errorf("FromGo(%s,%s)=%s want %s", c.os, c.arch, got, c.want)
		}
	}
}

func TestMask(t *testing.T) {
	m := Of(Linux32, Windows64)
	if !m.Has(Linux32) || !m.Has(Windows64) || m.Has(Linux64) {
		t.Fatalf("unexpected membership %s", m)
	}
	if m.Has(Unknown) || All.Has(Unknown) {
		t.Fatal("unknown must never match")
	}
	if got := m.String(); got != "linux32|windows64" {
		t.Fatalf("String()=%q", got)
	}
	if got := Mask(0).String(); got != "none" {
		t.Fatalf("String()=%q", got)
	}
	if !slices.Equal(All.Tags(), []Tag{Linux32, Linux64, Windows32, Windows64}) {
		t.Fatalf("Tags()=%v", All.Tags())
	}
}

func TestParse(t *testing.T) {
	for _, tag := range All.Tags() {
		got, err := Parse(tag.String())
		if err != nil || got != tag {
			t.Fatalf("Parse(%s)=%s,%v", tag, got, err)
		}
	}
	if _, err := Parse("plan9"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLibraryCandidates(t *testing.T) {
	if got := LibraryCandidates("server", Linux32); !slices.Equal(got, []string{"server_srv.so", "server.so"}) {
		t.Fatalf("linux32 %v", got)
	}
	if got := LibraryCandidates("engine", Windows64); !slices.Equal(got, []string{"engine.dll"}) {
		t.Fatalf("windows64 %v", got)
	}
	if got := LibraryCandidates("bin/server.so", Linux64); !slices.Equal(got, []string{"bin/server.so"}) {
		t.Fatalf("path %v", got)
	}
	if Linux32.PointerSize() != 4 || Windows64.PointerSize() != 8 || Unknown.PointerSize() != 0 {
		t.Fatal("pointer size")
	}
}
