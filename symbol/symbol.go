// Package symbol locates functions and globals inside shared libraries already loaded by the host.
//
// Three ways to find an address are supported: the loader's exported symbol table (with the on-disk ELF symbol
// table as a fallback for unexported but unstripped names), byte signature scanning of executable sections, and
// dereferencing a position-relative displacement found at a located instruction.
package symbol

import (
	"fmt"

	"github.com/ZenLiuCN/holyhook/platform"
)

type (
	// Kind tells how an address was obtained.
	Kind uint8
	// Resolved is one located native address. The zero value means not found.
	Resolved struct {
		Library string
		Name    string
		Address uintptr
		Kind    Kind
	}
	// Region is an executable address range of a library.
	Region struct {
		Start uintptr
		Size  uintptr
	}
	// Reader reads process memory. It never writes.
	Reader interface {
		Read(addr uintptr, n int) ([]byte, error)
	}
	// Library is a shared object the host loader already mapped.
	Library interface {
		Name() string
		Handle() uintptr
		Export(name string) (uintptr, error)      //loader exported symbol lookup
		LookupTable(name string) (uintptr, error) //static symbol table lookup, for unexported names
		Regions() ([]Region, error)               //executable regions
	}
	// Loader opens libraries already loaded by the host.
	Loader interface {
		Open(name string) (Library, error)
	}
	// Relative describes a position-relative operand: the instruction length and the offset of its int32 displacement.
	Relative struct {
		InstrLen   int
		DispOffset int
	}
	// Signature holds one byte pattern per platform. Patterns differ between builds of the same routine.
	Signature map[platform.Tag]string
	// Symbol describes how to find one target. Export is tried before the signature.
	Symbol struct {
		Name      string
		Export    string
		Signature Signature
		Deref     *Relative
	}
)

const (
	KindNone Kind = iota
	KindExported
	KindSymbolTable
	KindPattern
	KindRelative
)

// Valid reports a successful resolution.
func (r Resolved) Valid() bool {
	return r.Address != 0 && r.Kind != KindNone
}

func (r Resolved) String() string {
	if !r.Valid() {
		return fmt.Sprintf("%s!%s <not found>", r.Library, r.Name)
	}
	return fmt.Sprintf("%s!%s@%#x (%s)", r.Library, r.Name, r.Address, r.Kind)
}

func (k Kind) String() string {
	switch k {
	case KindExported:
		return "exported"
	case KindSymbolTable:
		return "symtab"
	case KindPattern:
		return "pattern"
	case KindRelative:
		return "relative"
	default:
		return "none"
	}
}

// Contains reports whether addr falls in the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr-r.Start < r.Size
}
