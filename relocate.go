package holyhook

import (
	"encoding/binary"

	"github.com/ZenLiuCN/holyhook/diag"
	"golang.org/x/arch/x86/x86asm"
)

// maxInstLen is the architectural limit of one x86 instruction.
const maxInstLen = 15

type (
	piece struct {
		off  int
		n    int
		inst x86asm.Inst
		raw  bool //copied verbatim
	}
	relocation struct {
		code  []byte //relocated prologue without the jump back
		saved int    //original bytes covered
	}
	// reader fetches code outside the prologue, such as the callee of a relocated call.
	reader func(addr uintptr, n int) ([]byte, error)
)

func unsupported(name string, format string, args ...any) error {
	return diag.New(diag.KindUnsupportedInstr).Target(name).Detail(format, args...).Build()
}

// decode splits the prologue into whole instructions covering at least minLen bytes.
func (a isa) decode(name string, code []byte, minLen int) (pieces []piece, saved int, err error) {
	for saved < minLen {
		if saved >= len(code) {
			return nil, 0, unsupported(name, "prologue truncated at +%d", saved)
		}
		if a.mode == 64 && isAbsJump(code[saved:]) {
			pieces = append(pieces, piece{off: saved, n: absJumpLen, raw: true})
			saved += absJumpLen
			continue
		}
		var inst x86asm.Inst
		if inst, err = x86asm.Decode(code[saved:], a.mode); err != nil {
			return nil, 0, unsupported(name, "undecodable instruction at +%d: %v", saved, err)
		}
		terminal := inst.Op == x86asm.RET || inst.Op == x86asm.JMP || inst.Op == x86asm.INT && code[saved] == 0xCC
		if terminal && saved+inst.Len < minLen {
			return nil, 0, unsupported(name, "function ends with %s at +%d before %d bytes", inst.Op, saved, minLen)
		}
		pieces = append(pieces, piece{off: saved, n: inst.Len, inst: inst})
		saved += inst.Len
	}
	return
}

// relocate rewrites the prologue of the function at origin to run from dest.
func (a isa) relocate(name string, code []byte, origin uintptr, minLen int, dest uintptr, read reader) (r relocation, err error) {
	var pieces []piece
	if pieces, r.saved, err = a.decode(name, code, minLen); err != nil {
		return
	}
	for _, p := range pieces {
		raw := code[p.off : p.off+p.n]
		if p.raw || p.inst.PCRel == 0 {
			r.code = append(r.code, raw...)
			continue
		}
		src := origin + uintptr(p.off)
		at := dest + uintptr(len(r.code))
		var out []byte
		if out, err = a.relocateOne(name, raw, p.inst, src, at, origin, r.saved, read); err != nil {
			return relocation{}, err
		}
		r.code = append(r.code, out...)
	}
	return
}

func (a isa) relocateOne(name string, raw []byte, inst x86asm.Inst, src, at, origin uintptr, saved int, read reader) ([]byte, error) {
	var rel int64
	var branch bool
	for _, arg := range inst.Args {
		switch v := arg.(type) {
		case x86asm.Rel:
			rel, branch = int64(v), true
		case x86asm.Mem:
			if v.Base == x86asm.RIP {
				rel = v.Disp
			}
		}
	}
	target := a.addr(int64(src) + int64(inst.Len) + rel)
	if !branch {
		if !a.fits(at, inst.Len, target) {
			return nil, unsupported(name, "rip relative operand of %s at %#x out of reach", inst.Op, src)
		}
		return a.rebase(raw, inst, at, target), nil
	}
	if target >= origin && target < origin+uintptr(saved) {
		return nil, unsupported(name, "%s at %#x branches into the patched window", inst.Op, src)
	}
	op := raw[inst.PCRelOff-1]
	switch inst.PCRel {
	case 1:
		switch {
		case op == 0xEB:
			return a.jump(at, target), nil
		case op&0xF0 == 0x70:
			return a.jcc(at, op&0x0F, target), nil
		}
		return nil, unsupported(name, "%s at %#x has no long form", inst.Op, src)
	case 4:
		switch {
		case op == opCallRel:
			if reg, ok := a.pcThunk(read, target); ok {
				return movImm32(reg, src+uintptr(inst.Len)), nil
			}
			return a.call(at, target), nil
		case op == opJmpRel32:
			return a.jump(at, target), nil
		case op&0xF0 == 0x80 && inst.PCRelOff >= 2 && raw[inst.PCRelOff-2] == 0x0F:
			return a.jcc(at, op&0x0F, target), nil
		}
	}
	return nil, unsupported(name, "%d byte relative operand of %s at %#x", inst.PCRel, inst.Op, src)
}

// rebase copies raw and rewrites its rel32 field for execution at at.
func (a isa) rebase(raw []byte, inst x86asm.Inst, at, target uintptr) []byte {
	out := append([]byte(nil), raw...)
	binary.LittleEndian.PutUint32(out[inst.PCRelOff:], a.rel32(at, inst.Len, target))
	return out
}

// pcThunk reports whether the 32 bit callee at target is a get-pc thunk (mov reg,[esp]; ret) and which register it loads.
func (a isa) pcThunk(read reader, target uintptr) (reg byte, ok bool) {
	if a.mode != 32 || read == nil {
		return
	}
	b, err := read(target, 4)
	if err != nil || len(b) < 4 {
		return
	}
	if b[0] != 0x8B || b[1]&0xC7 != 0x04 || b[2] != 0x24 || b[3] != 0xC3 {
		return
	}
	if reg = b[1] >> 3 & 7; reg == 4 {
		return 0, false
	}
	return reg, true
}

// movImm32 encodes mov reg,imm32. It stands in for a thunk call: the register gets the original return address.
func movImm32(reg byte, v uintptr) []byte {
	b := []byte{0xB8 + reg, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(b[1:], uint32(v))
	return b
}

// trampoline builds the slot content: relocated prologue then the jump back behind the patch.
func (a isa) trampoline(name string, code []byte, origin uintptr, minLen int, slot uintptr, read reader) (body []byte, saved int, err error) {
	var r relocation
	if r, err = a.relocate(name, code, origin, minLen, slot, read); err != nil {
		return
	}
	body = append(r.code, a.jump(slot+uintptr(len(r.code)), origin+uintptr(r.saved))...)
	if len(body) > slotSize {
		return nil, 0, unsupported(name, "relocated prologue needs %d bytes", len(body))
	}
	return body, r.saved, nil
}
