package symbol

import (
	"debug/elf"
	"debug/pe"
	"fmt"
	"os"

	"github.com/ZenLiuCN/fn"
)

// Section is the content of one executable section of a library file on disk.
type Section struct {
	Name string
	Addr uint64 //preferred virtual address, relative to the image base for PE
	Data []byte
}

// FileSections reads the executable sections of an ELF or PE file.
func FileSections(path string) (v []Section, err error) {
	var f *os.File
	if f, err = os.Open(path); err != nil {
		return
	}
	defer fn.IgnoreClose(f)
	magic := make([]byte, 4)
	if _, err = f.ReadAt(magic, 0); err != nil {
		return nil, fmt.Errorf("read magic of %s: %w", path, err)
	}
	switch {
	case string(magic) == elf.ELFMAG:
		return elfSections(f)
	case magic[0] == 'M' && magic[1] == 'Z':
		return peSections(f)
	default:
		return nil, fmt.Errorf("%s: neither ELF nor PE", path)
	}
}

func elfSections(f *os.File) (v []Section, err error) {
	var e *elf.File
	if e, err = elf.NewFile(f); err != nil {
		return
	}
	for _, s := range e.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		var data []byte
		if data, err = s.Data(); err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Name, err)
		}
		v = append(v, Section{Name: s.Name, Addr: s.Addr, Data: data})
	}
	return
}

func peSections(f *os.File) (v []Section, err error) {
	var p *pe.File
	if p, err = pe.NewFile(f); err != nil {
		return
	}
	for _, s := range p.Sections {
		if s.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE == 0 {
			continue
		}
		var data []byte
		if data, err = s.Data(); err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Name, err)
		}
		v = append(v, Section{Name: s.Name, Addr: uint64(s.VirtualAddress), Data: data})
	}
	return
}
