package holyhook

import (
	"encoding/binary"
	"errors"

	"github.com/ZenLiuCN/holyhook/platform"
)

const (
	opNop      = 0x90
	opJmpRel32 = 0xE9
	opCallRel  = 0xE8
	relJumpLen = 5
	absJumpLen = 14
	slotSize   = 128
)

// ErrUnsupportedPlatform is returned when no instruction set strategy exists for the platform tag.
var ErrUnsupportedPlatform = errors.New("no instruction set strategy for platform")

// isa is the instruction set strategy picked once from the platform tag.
type isa struct {
	tag  platform.Tag
	mode int //x86asm decoding mode: 32 or 64
}

func isaOf(tag platform.Tag) (a isa, err error) {
	switch tag {
	case platform.Linux32, platform.Windows32:
		return isa{tag: tag, mode: 32}, nil
	case platform.Linux64, platform.Windows64:
		return isa{tag: tag, mode: 64}, nil
	default:
		return a, ErrUnsupportedPlatform
	}
}

// addr wraps a computed address to the width of the platform.
func (a isa) addr(v int64) uintptr {
	if a.mode == 32 {
		return uintptr(uint32(v))
	}
	return uintptr(v)
}

// fits reports whether a rel32 field of an instruction of length n placed at from can reach to.
func (a isa) fits(from uintptr, n int, to uintptr) bool {
	return a.mode == 32 || reachable(from, n, to)
}

func (a isa) rel32(from uintptr, n int, to uintptr) uint32 {
	return uint32(int64(to) - int64(from) - int64(n))
}

// jump encodes an unconditional jump placed at from: E9 rel32 when in reach, else FF 25 with the absolute address.
func (a isa) jump(from, to uintptr) []byte {
	if a.fits(from, relJumpLen, to) {
		b := make([]byte, relJumpLen)
		b[0] = opJmpRel32
		binary.LittleEndian.PutUint32(b[1:], a.rel32(from, relJumpLen, to))
		return b
	}
	return absJump(to)
}

// patch is the entry redirection written over target, padded with NOP to size.
func (a isa) patch(target, replacement uintptr, size int) []byte {
	b := a.jump(target, replacement)
	for len(b) < size {
		b = append(b, opNop)
	}
	return b
}

// jcc encodes a conditional jump with condition cc placed at from.
func (a isa) jcc(from uintptr, cc byte, to uintptr) []byte {
	if a.fits(from, 6, to) {
		b := []byte{0x0F, 0x80 | cc, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(b[2:], a.rel32(from, 6, to))
		return b
	}
	//inverted condition skips the absolute jump
	return append([]byte{0x70 | (cc ^ 1), absJumpLen}, absJump(to)...)
}

// call encodes a near call placed at from.
func (a isa) call(from, to uintptr) []byte {
	if a.fits(from, 5, to) {
		b := []byte{opCallRel, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(b[1:], a.rel32(from, 5, to))
		return b
	}
	//call [rip+2]; jmp +8; abs64
	b := []byte{0xFF, 0x15, 0x02, 0x00, 0x00, 0x00, 0xEB, 0x08, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint64(b[8:], uint64(to))
	return b
}

func absJump(to uintptr) []byte {
	b := []byte{0xFF, 0x25, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint64(b[6:], uint64(to))
	return b
}

// isAbsJump matches the FF 25 00000000 form written by jump, which carries its target inline.
func isAbsJump(code []byte) bool {
	return len(code) >= absJumpLen && code[0] == 0xFF && code[1] == 0x25 &&
		binary.LittleEndian.Uint32(code[2:]) == 0
}
