//go:build windows

package symbol

import (
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"unsafe"

	"github.com/ZenLiuCN/holyhook/platform"
	"golang.org/x/sys/windows"
)

type (
	windowsLoader struct {
		tag platform.Tag
	}
	windowsLibrary struct {
		name   string
		handle windows.Handle
	}
	// imageReader reads a mapped PE image through its base address. Only headers are read.
	imageReader struct {
		base uintptr
	}
)

// NewLoader returns the loader of the running process.
func NewLoader(tag platform.Tag) Loader {
	return &windowsLoader{tag: tag}
}

// Open returns the module handle of an already loaded library. It never loads a new library.
func (l *windowsLoader) Open(name string) (Library, error) {
	var last error
	for _, file := range platform.LibraryCandidates(name, l.tag) {
		p, err := windows.UTF16PtrFromString(file)
		if err != nil {
			return nil, err
		}
		var h windows.Handle
		if err = windows.GetModuleHandleEx(0, p, &h); err != nil {
			last = err
			continue
		}
		return &windowsLibrary{name: name, handle: h}, nil
	}
	return nil, fmt.Errorf("library %s is not loaded: %w", name, last)
}

func (l *windowsLibrary) Name() string {
	return l.name
}

func (l *windowsLibrary) Handle() uintptr {
	return uintptr(l.handle)
}

func (l *windowsLibrary) Export(name string) (uintptr, error) {
	addr, err := windows.GetProcAddress(l.handle, name)
	if err != nil {
		return 0, errors.Join(ErrNotFound, err)
	}
	return addr, nil
}

// LookupTable needs program database files, which are not read.
func (l *windowsLibrary) LookupTable(string) (uintptr, error) {
	return 0, ErrNotSupported
}

func (l *windowsLibrary) Regions() (v []Region, err error) {
	var f *pe.File
	if f, err = pe.NewFile(imageReader{base: uintptr(l.handle)}); err != nil {
		return nil, fmt.Errorf("image headers of %s: %w", l.name, err)
	}
	for _, s := range f.Sections {
		if s.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE == 0 {
			continue
		}
		v = append(v, Region{Start: uintptr(l.handle) + uintptr(s.VirtualAddress), Size: uintptr(s.VirtualSize)})
	}
	return
}

func (r imageReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.EOF
	}
	copy(p, unsafe.Slice((*byte)(unsafe.Pointer(r.base+uintptr(off))), len(p)))
	return len(p), nil
}
