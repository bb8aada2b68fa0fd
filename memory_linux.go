//go:build linux

package holyhook

import (
	"unsafe"

	"github.com/ZenLiuCN/holyhook/diag"
	"golang.org/x/sys/unix"
)

type processMemory struct {
	page uintptr
	is64 bool
}

// NewProcessMemory is the Memory of the running process.
func NewProcessMemory() (Memory, error) {
	return &processMemory{page: uintptr(unix.Getpagesize()), is64: unsafe.Sizeof(uintptr(0)) == 8}, nil
}

func (m *processMemory) PageSize() int {
	return int(m.page)
}

func (m *processMemory) Read(addr uintptr, n int) ([]byte, error) {
	return rawRead(addr, n)
}

func (m *processMemory) Write(addr uintptr, data []byte) error {
	if addr == 0 {
		return diag.New(diag.KindMemoryProtection).Detail("write to null address").Build()
	}
	start, size := pageSpan(addr, len(data), m.page)
	pages := unsafe.Slice((*byte)(unsafe.Pointer(start)), size)
	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return diag.New(diag.KindMemoryProtection).Detail("mprotect %#x+%d writable", start, size).Cause(err).Build()
	}
	rawWrite(addr, data)
	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return diag.New(diag.KindMemoryProtection).Detail("mprotect %#x+%d executable", start, size).Cause(err).Build()
	}
	return nil
}

func (m *processMemory) mmap(hint uintptr, size uintptr) uintptr {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), size,
		unix.PROT_READ|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0
	}
	return uintptr(p)
}

func (m *processMemory) Alloc(near uintptr, size int) (addr uintptr, err error) {
	n := (uintptr(size) + m.page - 1) &^ (m.page - 1)
	if !m.is64 || near == 0 {
		if addr = m.mmap(0, n); addr == 0 {
			return 0, diag.New(diag.KindMemoryProtection).Detail("mmap %d bytes", n).Build()
		}
		return
	}
	addr, err = searchNear(near, int(n), func(hint uintptr) uintptr {
		return m.mmap(hint, n)
	}, func(addr uintptr) {
		_ = unix.MunmapPtr(unsafe.Pointer(addr), n)
	})
	if err != nil {
		return 0, diag.New(diag.KindMemoryProtection).Detail("mmap %d bytes near %#x", n, near).Cause(err).Build()
	}
	return
}

func (m *processMemory) Free(addr uintptr, size int) error {
	n := (uintptr(size) + m.page - 1) &^ (m.page - 1)
	if err := unix.MunmapPtr(unsafe.Pointer(addr), n); err != nil {
		return diag.New(diag.KindMemoryProtection).Detail("munmap %#x", addr).Cause(err).Build()
	}
	return nil
}
