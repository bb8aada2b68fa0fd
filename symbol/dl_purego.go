//go:build linux && (amd64 || arm64)

package symbol

import "github.com/ebitengine/purego"

type puregoLinker struct{}

func newDynamicLinker() dynamicLinker {
	return puregoLinker{}
}

// open takes another reference on a library the host already loaded.
func (puregoLinker) open(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

func (puregoLinker) sym(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}
