package holyhook

import (
	"errors"
	"unsafe"

	"github.com/ZenLiuCN/holyhook/diag"
)

type (
	// Memory is the writable-code-page capability of the engine. The process implementation patches live code,
	// tests substitute a simulated address space.
	Memory interface {
		Read(addr uintptr, n int) ([]byte, error)
		// Write makes the pages writable, copies data and restores their protection.
		Write(addr uintptr, data []byte) error
		// Alloc returns executable memory of at least size bytes. On 64 bit platforms the block is placed within
		// rel32 reach of near when near is not zero.
		Alloc(near uintptr, size int) (uintptr, error)
		Free(addr uintptr, size int) error
		PageSize() int
	}
)

// ErrNoNearMemory is returned when no free block exists within rel32 reach.
var ErrNoNearMemory = errors.New("no free memory within rel32 reach")

const (
	nearWindow = 1<<31 - 1<<24 //keep clear of the edge so a whole block stays in reach
	nearStep   = 1 << 20
)

// reachable reports whether a rel32 displacement written at from, for an instruction ending at from+n, reaches to.
func reachable(from uintptr, n int, to uintptr) bool {
	d := int64(to) - int64(from) - int64(n)
	return d >= -1<<31 && d < 1<<31
}

// searchNear probes hints alternating above and below near until an allocation lands within reach of it.
// try returns 0 when the hint could not be used, free releases a block that landed too far away.
func searchNear(near uintptr, size int, try func(hint uintptr) uintptr, free func(addr uintptr)) (uintptr, error) {
	base := int64(near &^ (nearStep - 1))
	for d := int64(0); d < nearWindow; d += nearStep {
		for i, h := range [2]int64{base + d, base - d} {
			if i == 1 && d == 0 {
				break
			}
			if h <= 0 {
				continue
			}
			addr := try(uintptr(h))
			if addr == 0 {
				continue
			}
			if reachable(near, 5, addr) && reachable(near, 5, addr+uintptr(size)) {
				return addr, nil
			}
			free(addr)
		}
	}
	return 0, ErrNoNearMemory
}

func rawRead(addr uintptr, n int) ([]byte, error) {
	if addr == 0 {
		return nil, diag.New(diag.KindMemoryProtection).Detail("read of null address").Build()
	}
	v := make([]byte, n)
	copy(v, unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
	return v, nil
}

// View is the n bytes of host data at addr, aliased rather than copied. The memory must stay mapped and writable
// while the slice is used, nil is returned for a null address.
func View(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func rawWrite(addr uintptr, data []byte) {
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data)
}

func pageSpan(addr uintptr, n int, page uintptr) (start uintptr, size uintptr) {
	start = addr &^ (page - 1)
	end := (addr + uintptr(n) + page - 1) &^ (page - 1)
	return start, end - start
}
