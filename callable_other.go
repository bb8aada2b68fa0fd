//go:build !((linux || windows) && (amd64 || arm64)) && !(linux && 386 && cgo)

package holyhook

import "github.com/ZenLiuCN/holyhook/diag"

func Func[F any](h *Hook, _ *F) error {
	return diag.New(diag.KindCallableUnsupported).Target(h.Name()).Detail("no foreign call support on this architecture").Build()
}

func Bind[F any](name string, _ uintptr, _ *F) error {
	return diag.New(diag.KindCallableUnsupported).Target(name).Detail("no foreign call support on this architecture").Build()
}

func Original[F any](h *Hook) (f F, err error) {
	err = Func(h, &f)
	return
}

func Callback(fn any) (uintptr, error) {
	return 0, diag.New(diag.KindCallableUnsupported).Detail("callback %T: no foreign call support on this architecture", fn).Build()
}
