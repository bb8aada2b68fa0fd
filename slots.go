package holyhook

import (
	"errors"
	"sync"
)

// ErrSlotNotTaken is returned when a trampoline slot is released twice.
var ErrSlotNotTaken = errors.New("trampoline slot not taken")

type (
	// slotPage is one executable allocation cut into fixed size trampoline slots.
	slotPage struct {
		base uintptr
		size int
		used []bool
		n    int
	}
	// slotPool hands out trampoline slots near their targets.
	slotPool struct {
		mem   Memory
		isa   isa
		pages []*slotPage
		sync.Mutex
	}
)

func (p *slotPage) contains(addr uintptr) bool {
	return addr >= p.base && addr < p.base+uintptr(p.size)
}

// take returns a free slot reachable from target, allocating a page when none is.
func (s *slotPool) take(target uintptr) (uintptr, error) {
	s.Lock()
	defer s.Unlock()
	for _, p := range s.pages {
		if p.n == len(p.used) {
			continue
		}
		for i, u := range p.used {
			if u {
				continue
			}
			addr := p.base + uintptr(i*slotSize)
			if s.isa.fits(target, relJumpLen, addr) && s.isa.fits(addr, relJumpLen, target) {
				p.used[i] = true
				p.n++
				return addr, nil
			}
			break
		}
	}
	size := s.mem.PageSize()
	base, err := s.mem.Alloc(target, size)
	if err != nil {
		return 0, err
	}
	p := &slotPage{base: base, size: size, used: make([]bool, size/slotSize)}
	p.used[0] = true
	p.n = 1
	s.pages = append(s.pages, p)
	return base, nil
}

// release returns a slot, freeing its page once empty.
func (s *slotPool) release(addr uintptr) error {
	s.Lock()
	defer s.Unlock()
	for i, p := range s.pages {
		if !p.contains(addr) {
			continue
		}
		idx := int(addr-p.base) / slotSize
		if !p.used[idx] {
			return ErrSlotNotTaken
		}
		p.used[idx] = false
		p.n--
		if p.n == 0 {
			s.pages = append(s.pages[:i], s.pages[i+1:]...)
			return s.mem.Free(p.base, p.size)
		}
		return nil
	}
	return ErrSlotNotTaken
}

// inUse counts the taken slots.
func (s *slotPool) inUse() (n int) {
	s.Lock()
	defer s.Unlock()
	for _, p := range s.pages {
		n += p.n
	}
	return
}
