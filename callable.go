//go:build (linux || windows) && (amd64 || arm64)

package holyhook

import (
	"fmt"

	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ebitengine/purego"
)

// Func binds fptr, a pointer to a func variable, to the trampoline of h, so calling it runs the original.
func Func[F any](h *Hook, fptr *F) (err error) {
	tramp := h.Trampoline()
	if tramp == 0 {
		return diag.New(diag.KindCallableUnsupported).Target(h.Name()).Detail("hook is %s", h.State()).Build()
	}
	return Bind(h.Name(), tramp, fptr)
}

// Bind makes fptr call the native function at addr.
func Bind[F any](name string, addr uintptr, fptr *F) (err error) {
	if addr == 0 {
		return diag.New(diag.KindCallableUnsupported).Target(name).Detail("null function address").Build()
	}
	defer func() {
		if r := recover(); r != nil {
			err = diag.New(diag.KindCallableUnsupported).Target(name).Detail("%v", r).Build()
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return
}

// Original is Func returning the bound function.
func Original[F any](h *Hook) (f F, err error) {
	err = Func(h, &f)
	return
}

// Callback turns a Go func into a native function address usable as a hook replacement.
// The number of callbacks a process can create is limited and they are never released.
func Callback(fn any) (addr uintptr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = diag.New(diag.KindCallableUnsupported).Detail("callback %T: %s", fn, fmt.Sprint(r)).Build()
		}
	}()
	return purego.NewCallback(fn), nil
}
