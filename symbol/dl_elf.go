//go:build linux && !(amd64 || arm64)

package symbol

// elfLinker stands in where no dlopen binding exists: exports come from the file's .dynsym plus the load bias.
type elfLinker struct{}

func newDynamicLinker() dynamicLinker {
	return elfLinker{}
}

func (elfLinker) open(string) (uintptr, error) {
	return 0, nil
}

func (elfLinker) sym(uintptr, string) (uintptr, error) {
	return 0, ErrNotSupported
}
