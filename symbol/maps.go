package symbol

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Mapping is one line of a Linux /proc/<pid>/maps file.
type Mapping struct {
	Start  uintptr
	End    uintptr
	Perms  string
	Offset uint64
	Path   string
}

// ParseMaps reads the maps format. Anonymous mappings keep an empty Path.
func ParseMaps(r io.Reader) (v []Mapping, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		parts := strings.Fields(sc.Text())
		if len(parts) < 5 {
			continue
		}
		var m Mapping
		bounds := strings.SplitN(parts[0], "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("maps line %d: bad range %q", n, parts[0])
		}
		var start, end, off uint64
		if start, err = strconv.ParseUint(bounds[0], 16, 64); err != nil {
			return nil, fmt.Errorf("maps line %d: %w", n, err)
		}
		if end, err = strconv.ParseUint(bounds[1], 16, 64); err != nil {
			return nil, fmt.Errorf("maps line %d: %w", n, err)
		}
		if off, err = strconv.ParseUint(parts[2], 16, 64); err != nil {
			return nil, fmt.Errorf("maps line %d: %w", n, err)
		}
		m.Start, m.End, m.Perms, m.Offset = uintptr(start), uintptr(end), parts[1], off
		if len(parts) >= 6 {
			m.Path = strings.Join(parts[5:], " ")
		}
		v = append(v, m)
	}
	return v, sc.Err()
}

// Executable reports an x permission.
func (m Mapping) Executable() bool {
	return len(m.Perms) >= 3 && m.Perms[2] == 'x'
}

// Region converts the mapping to a Region.
func (m Mapping) Region() Region {
	return Region{Start: m.Start, Size: m.End - m.Start}
}

// MappingsOf selects the mappings backed by file, matched by full path or base name.
func MappingsOf(maps []Mapping, file string) (v []Mapping) {
	for _, m := range maps {
		if m.Path == "" {
			continue
		}
		if m.Path == file || filepath.Base(m.Path) == file {
			v = append(v, m)
		}
	}
	return
}

// LoadBias is the difference between where the library was mapped and where its first segment wanted to be.
func LoadBias(maps []Mapping, firstVaddr uint64, pageSize uint64) uintptr {
	for _, m := range maps {
		if m.Offset == 0 {
			return m.Start - uintptr(firstVaddr&^(pageSize-1))
		}
	}
	return 0
}
