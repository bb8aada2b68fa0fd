package symbol

import (
	"encoding/binary"
	"errors"

	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/platform"
)

var (
	// ErrNotSupported is returned by Library methods a platform cannot provide.
	ErrNotSupported = errors.New("not supported on this platform")
	// ErrNotFound is returned by Library lookups for absent names.
	ErrNotFound = errors.New("symbol not found")
)

// Resolver resolves Symbol descriptors against libraries of one platform.
type Resolver struct {
	mem Reader
	tag platform.Tag
}

// NewResolver creates a resolver reading through mem for the platform tag.
func NewResolver(mem Reader, tag platform.Tag) *Resolver {
	return &Resolver{mem: mem, tag: tag}
}

// Tag is the platform the resolver picks signature variants for.
func (r *Resolver) Tag() platform.Tag {
	return r.tag
}

// Exported finds name in the loader's export table, then in the library's static symbol table.
func (r *Resolver) Exported(lib Library, name string) (Resolved, error) {
	if addr, err := lib.Export(name); err == nil && addr != 0 {
		return Resolved{Library: lib.Name(), Name: name, Address: addr, Kind: KindExported}, nil
	}
	addr, err := lib.LookupTable(name)
	if err == nil && addr != 0 {
		return Resolved{Library: lib.Name(), Name: name, Address: addr, Kind: KindSymbolTable}, nil
	}
	b := diag.New(diag.KindSymbolNotFound).Target(name).Detail("not exported by %s", lib.Name())
	if err != nil && !errors.Is(err, ErrNotFound) {
		b.Cause(err)
	}
	return Resolved{}, b.Build()
}

// Pattern scans the executable regions of lib for the signature variant of the resolver's platform.
// Exactly one match is required.
func (r *Resolver) Pattern(lib Library, name string, sig Signature) (Resolved, error) {
	text, ok := sig[r.tag]
	if !ok {
		return Resolved{}, diag.New(diag.KindPatternNotFound).Target(name).Detail("no signature for %s", r.tag).Build()
	}
	p, err := ParsePattern(text)
	if err != nil {
		return Resolved{}, diag.New(diag.KindPatternNotFound).Target(name).Cause(err).Build()
	}
	regions, err := lib.Regions()
	if err != nil {
		return Resolved{}, diag.New(diag.KindPatternNotFound).Target(name).Detail("regions of %s", lib.Name()).Cause(err).Build()
	}
	var found []uintptr
	for _, reg := range regions {
		var data []byte
		if data, err = r.mem.Read(reg.Start, int(reg.Size)); err != nil {
			return Resolved{}, diag.New(diag.KindPatternNotFound).Target(name).Detail("read %#x", reg.Start).Cause(err).Build()
		}
		for _, off := range p.Find(data, 2-len(found)) {
			found = append(found, reg.Start+uintptr(off))
		}
		if len(found) > 1 {
			return Resolved{}, diag.New(diag.KindAmbiguousPattern).Target(name).
				Detail("matches at %#x and %#x in %s", found[0], found[1], lib.Name()).Build()
		}
	}
	if len(found) == 0 {
		return Resolved{}, diag.New(diag.KindPatternNotFound).Target(name).Detail("no match in %s", lib.Name()).Build()
	}
	return Resolved{Library: lib.Name(), Name: name, Address: found[0], Kind: KindPattern}, nil
}

// Relative computes base + instrLen + disp, where disp is the signed 32 bit displacement at base + dispOffset.
// On 32 bit platforms the sum wraps like the processor does.
func (r *Resolver) Relative(base uintptr, instrLen, dispOffset int) (uintptr, error) {
	if base == 0 {
		return 0, diag.New(diag.KindSymbolNotFound).Detail("relative from null address").Build()
	}
	b, err := r.mem.Read(base+uintptr(dispOffset), 4)
	if err != nil {
		return 0, diag.New(diag.KindSymbolNotFound).Detail("read displacement at %#x", base).Cause(err).Build()
	}
	disp := int32(binary.LittleEndian.Uint32(b))
	if r.tag.Is64() {
		return uintptr(int64(base) + int64(instrLen) + int64(disp)), nil
	}
	return uintptr(uint32(base) + uint32(instrLen) + uint32(disp)), nil
}

// Resolve locates s in lib: by export name when set, else (or when the export is missing) by signature. A signature
// match is followed by the relative dereference when requested, an export is taken as is.
func (r *Resolver) Resolve(lib Library, s Symbol) (res Resolved, err error) {
	switch {
	case s.Export != "" && len(s.Signature) > 0:
		if res, err = r.Exported(lib, s.Export); err != nil {
			exportErr := err
			if res, err = r.Pattern(lib, s.Name, s.Signature); err != nil {
				err = errors.Join(err, exportErr)
			}
		}
	case s.Export != "":
		res, err = r.Exported(lib, s.Export)
	case len(s.Signature) > 0:
		res, err = r.Pattern(lib, s.Name, s.Signature)
	default:
		err = diag.New(diag.KindSymbolNotFound).Target(s.Name).Detail("symbol has neither export name nor signature").Build()
	}
	if err != nil {
		return Resolved{}, err
	}
	res.Name = s.Name
	if s.Deref != nil && res.Kind == KindPattern {
		var addr uintptr
		if addr, err = r.Relative(res.Address, s.Deref.InstrLen, s.Deref.DispOffset); err != nil {
			return Resolved{}, diag.New(diag.KindSymbolNotFound).Target(s.Name).Detail("relative dereference").Cause(err).Build()
		}
		res.Address, res.Kind = addr, KindRelative
	}
	return
}
