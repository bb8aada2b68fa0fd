//go:build windows

package holyhook

import (
	"unsafe"

	"github.com/ZenLiuCN/holyhook/diag"
	"golang.org/x/sys/windows"
)

const allocationGranularity = 1 << 16

type processMemory struct {
	is64 bool
}

// NewProcessMemory is the Memory of the running process.
func NewProcessMemory() (Memory, error) {
	return &processMemory{is64: unsafe.Sizeof(uintptr(0)) == 8}, nil
}

func (m *processMemory) PageSize() int {
	return 4096
}

func (m *processMemory) Read(addr uintptr, n int) ([]byte, error) {
	return rawRead(addr, n)
}

func (m *processMemory) Write(addr uintptr, data []byte) error {
	if addr == 0 {
		return diag.New(diag.KindMemoryProtection).Detail("write to null address").Build()
	}
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(len(data)), windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return diag.New(diag.KindMemoryProtection).Detail("VirtualProtect %#x+%d", addr, len(data)).Cause(err).Build()
	}
	rawWrite(addr, data)
	if err := windows.VirtualProtect(addr, uintptr(len(data)), old, &old); err != nil {
		return diag.New(diag.KindMemoryProtection).Detail("VirtualProtect restore %#x", addr).Cause(err).Build()
	}
	return nil
}

func (m *processMemory) virtualAlloc(hint uintptr, size uintptr) uintptr {
	addr, err := windows.VirtualAlloc(hint, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READ)
	if err != nil {
		return 0
	}
	return addr
}

func (m *processMemory) Alloc(near uintptr, size int) (addr uintptr, err error) {
	n := (uintptr(size) + allocationGranularity - 1) &^ (allocationGranularity - 1)
	if !m.is64 || near == 0 {
		if addr = m.virtualAlloc(0, n); addr == 0 {
			return 0, diag.New(diag.KindMemoryProtection).Detail("VirtualAlloc %d bytes", n).Build()
		}
		return
	}
	addr, err = searchNear(near, int(n), func(hint uintptr) uintptr {
		return m.virtualAlloc(hint&^(allocationGranularity-1), n)
	}, func(addr uintptr) {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	})
	if err != nil {
		return 0, diag.New(diag.KindMemoryProtection).Detail("VirtualAlloc %d bytes near %#x", n, near).Cause(err).Build()
	}
	return
}

func (m *processMemory) Free(addr uintptr, _ int) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return diag.New(diag.KindMemoryProtection).Detail("VirtualFree %#x", addr).Cause(err).Build()
	}
	return nil
}
