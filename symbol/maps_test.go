package symbol

import (
	"strings"
	"testing"
)

const sampleMaps = `08048000-08049000 r-xp 00000000 08:01 1234       /srv/bin/srcds_linux
e8a00000-e8a40000 r--p 00000000 08:01 99         /srv/garrysmod/bin/server_srv.so
e8a40000-e9400000 r-xp 00040000 08:01 99         /srv/garrysmod/bin/server_srv.so
e9400000-e9500000 rw-p 00a00000 08:01 99         /srv/garrysmod/bin/server_srv.so
f7700000-f7721000 rw-p 00000000 00:00 0
ffd00000-ffd21000 rw-p 00000000 00:00 0          [stack]
`

func TestParseMaps(t *testing.T) {
	maps, err := ParseMaps(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}
	if len(maps) != 6 {
		t.Fatalf("got %d mappings", len(maps))
	}
	if maps[4].Path != "" || maps[5].Path != "[stack]" {
		t.Fatalf("paths %q %q", maps[4].Path, maps[5].Path)
	}
	mine := MappingsOf(maps, "server_srv.so")
	if len(mine) != 3 {
		t.Fatalf("server mappings %d", len(mine))
	}
	if !mine[1].Executable() || mine[0].Executable() {
		t.Fatal("permissions")
	}
	if r := mine[1].Region(); r.Start != 0xe8a40000 || r.Size != 0x9c0000 || !r.Contains(0xe8a40010) || r.Contains(0xe9400000) {
		t.Fatalf("region %+v", r)
	}
	if b := LoadBias(mine, 0, 4096); b != 0xe8a00000 {
		t.Fatalf("bias %#x", b)
	}
	if _, err = ParseMaps(strings.NewReader("zz-10 r-xp 0 0 0 /x\n")); err == nil {
		t.Fatal("bad range must fail")
	}
}
