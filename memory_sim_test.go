package holyhook

import (
	"errors"
	"fmt"
)

// simMemory is a flat simulated address space: code at base, trampoline pages allocated from base+simHeap upward.
type simMemory struct {
	base   uintptr
	data   []byte
	next   uintptr
	allocs map[uintptr]int
	freed  []uintptr
	frees  int
	deny   uintptr //writes touching this address fail
}

const (
	simHeap = 0x100000
	simSize = simHeap + 0x10000
)

func newSim(base uintptr) *simMemory {
	data := make([]byte, simSize)
	for i := range data {
		data[i] = 0xCC
	}
	return &simMemory{base: base, data: data, next: base + simHeap, allocs: map[uintptr]int{}}
}

func (m *simMemory) span(addr uintptr, n int) (int, error) {
	if addr < m.base || addr+uintptr(n) > m.base+uintptr(len(m.data)) {
		return 0, fmt.Errorf("access %#x+%d outside simulated memory", addr, n)
	}
	return int(addr - m.base), nil
}

func (m *simMemory) Read(addr uintptr, n int) ([]byte, error) {
	off, err := m.span(addr, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), m.data[off:off+n]...), nil
}

func (m *simMemory) Write(addr uintptr, data []byte) error {
	off, err := m.span(addr, len(data))
	if err != nil {
		return err
	}
	if m.deny != 0 && m.deny >= addr && m.deny < addr+uintptr(len(data)) {
		return errors.New("page is read only")
	}
	copy(m.data[off:], data)
	return nil
}

func (m *simMemory) Alloc(_ uintptr, size int) (uintptr, error) {
	if n := len(m.freed); n > 0 && size <= m.PageSize() {
		addr := m.freed[n-1]
		m.freed = m.freed[:n-1]
		m.allocs[addr] = size
		return addr, nil
	}
	if _, err := m.span(m.next, size); err != nil {
		return 0, err
	}
	addr := m.next
	m.next += uintptr(size)
	m.allocs[addr] = size
	return addr, nil
}

func (m *simMemory) Free(addr uintptr, _ int) error {
	if _, ok := m.allocs[addr]; !ok {
		return fmt.Errorf("double free of %#x", addr)
	}
	delete(m.allocs, addr)
	m.freed = append(m.freed, addr)
	m.frees++
	return nil
}

func (m *simMemory) PageSize() int {
	return 4096
}

func (m *simMemory) load(addr uintptr, code ...byte) {
	copy(m.data[addr-m.base:], code)
}

func (m *simMemory) at(addr uintptr, n int) []byte {
	off := int(addr - m.base)
	return m.data[off : off+n]
}
