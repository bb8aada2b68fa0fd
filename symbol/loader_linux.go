//go:build linux

package symbol

import (
	"fmt"
	"os"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook/platform"
)

const mapsPath = "/proc/self/maps"

type (
	// dynamicLinker is the platform loader: dlopen/dlsym where available.
	dynamicLinker interface {
		open(path string) (uintptr, error)
		sym(handle uintptr, name string) (uintptr, error)
	}
	linuxLoader struct {
		tag platform.Tag
		dl  dynamicLinker
	}
	linuxLibrary struct {
		name     string
		path     string
		handle   uintptr
		mappings []Mapping
		dl       dynamicLinker
		table    func() (*Table, error)
	}
)

// NewLoader returns the loader of the running process.
func NewLoader(tag platform.Tag) Loader {
	return &linuxLoader{tag: tag, dl: newDynamicLinker()}
}

func readMaps() (v []Mapping, err error) {
	var f *os.File
	if f, err = os.Open(mapsPath); err != nil {
		return
	}
	defer fn.IgnoreClose(f)
	return ParseMaps(f)
}

// Open finds an already mapped file for one of the library's candidate names. It never loads a new library.
func (l *linuxLoader) Open(name string) (Library, error) {
	maps, err := readMaps()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	for _, file := range platform.LibraryCandidates(name, l.tag) {
		mine := MappingsOf(maps, file)
		if len(mine) == 0 {
			continue
		}
		lib := &linuxLibrary{name: name, path: mine[0].Path, mappings: mine, dl: l.dl}
		if lib.handle, err = l.dl.open(lib.path); err != nil {
			return nil, fmt.Errorf("open %s: %w", lib.path, err)
		}
		lib.table = sync.OnceValues(func() (*Table, error) {
			return OpenTable(lib.path)
		})
		return lib, nil
	}
	return nil, fmt.Errorf("library %s is not loaded", name)
}

func (l *linuxLibrary) Name() string {
	return l.name
}

func (l *linuxLibrary) Handle() uintptr {
	return l.handle
}

func (l *linuxLibrary) Export(name string) (uintptr, error) {
	if l.handle != 0 {
		return l.dl.sym(l.handle, name)
	}
	t, err := l.table()
	if err != nil {
		return 0, err
	}
	v, ok := t.Exported(name)
	if !ok {
		return 0, ErrNotFound
	}
	return l.bias(t) + uintptr(v), nil
}

func (l *linuxLibrary) LookupTable(name string) (uintptr, error) {
	t, err := l.table()
	if err != nil {
		return 0, err
	}
	v, ok := t.Lookup(name)
	if !ok {
		return 0, ErrNotFound
	}
	return l.bias(t) + uintptr(v), nil
}

func (l *linuxLibrary) bias(t *Table) uintptr {
	return LoadBias(l.mappings, t.FirstVaddr, uint64(os.Getpagesize()))
}

func (l *linuxLibrary) Regions() (v []Region, err error) {
	for _, m := range l.mappings {
		if m.Executable() {
			v = append(v, m.Region())
		}
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%s has no executable mapping", l.path)
	}
	return
}
