package symbol

import (
	"debug/elf"
	"errors"
	"fmt"
	"sort"

	"github.com/ZenLiuCN/fn"
)

// Table is the symbol table of one ELF file: defined function and object symbols by name.
type Table struct {
	Path       string
	FirstVaddr uint64
	exported   map[string]uint64
	static     map[string]uint64
}

// OpenTable reads .dynsym and .symtab of the ELF file at path. A stripped file yields only exported names.
func OpenTable(path string) (t *Table, err error) {
	var f *elf.File
	if f, err = elf.Open(path); err != nil {
		return
	}
	defer fn.IgnoreClose(f)
	t = &Table{Path: path, exported: map[string]uint64{}, static: map[string]uint64{}}
	first := true
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD && (first || p.Vaddr < t.FirstVaddr) {
			t.FirstVaddr, first = p.Vaddr, false
		}
	}
	var dyn, syms []elf.Symbol
	if dyn, err = f.DynamicSymbols(); err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("dynamic symbols of %s: %w", path, err)
	}
	if syms, err = f.Symbols(); err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("symbols of %s: %w", path, err)
	}
	err = nil
	add(t.exported, dyn)
	add(t.static, syms)
	return
}

func add(into map[string]uint64, syms []elf.Symbol) {
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF || s.Value == 0 || s.Name == "" {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT, STT_GNU_IFUNC:
			into[s.Name] = s.Value
		}
	}
}

// STT_GNU_IFUNC is missing from debug/elf.
const STT_GNU_IFUNC elf.SymType = 10

// Exported looks a name up in the dynamic symbol table. The value is unrelocated.
func (t *Table) Exported(name string) (v uint64, ok bool) {
	v, ok = t.exported[name]
	return
}

// Lookup looks a name up in the static table, then the dynamic one. The value is unrelocated.
func (t *Table) Lookup(name string) (v uint64, ok bool) {
	if v, ok = t.static[name]; ok {
		return
	}
	return t.Exported(name)
}

// Names lists every known name, sorted.
func (t *Table) Names() []string {
	seen := make(map[string]struct{}, len(t.static)+len(t.exported))
	for _, n := range fn.MapKeys(t.static) {
		seen[n] = struct{}{}
	}
	for _, n := range fn.MapKeys(t.exported) {
		seen[n] = struct{}{}
	}
	v := fn.MapKeys(seen)
	sort.Strings(v)
	return v
}
