//go:build linux && 386 && cgo

package holyhook

/*
#include <stdint.h>

typedef uint64_t (*holyhook_fn8)(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);

extern uint64_t holyhookShim0(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim1(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim2(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim3(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim4(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim5(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim6(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim7(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim8(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim9(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim10(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim11(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim12(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim13(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim14(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
extern uint64_t holyhookShim15(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);

static uintptr_t holyhook_shim(int i) {
	static const holyhook_fn8 shims[] = {
		holyhookShim0, holyhookShim1, holyhookShim2, holyhookShim3,
		holyhookShim4, holyhookShim5, holyhookShim6, holyhookShim7,
		holyhookShim8, holyhookShim9, holyhookShim10, holyhookShim11,
		holyhookShim12, holyhookShim13, holyhookShim14, holyhookShim15,
	};
	if (i < 0 || i >= (int)(sizeof(shims) / sizeof(shims[0]))) {
		return 0;
	}
	return (uintptr_t)shims[i];
}

// extra words land in the caller frame of a cdecl callee and are ignored
static uint64_t holyhook_call8(uintptr_t f, uintptr_t a0, uintptr_t a1, uintptr_t a2, uintptr_t a3,
		uintptr_t a4, uintptr_t a5, uintptr_t a6, uintptr_t a7) {
	return ((holyhook_fn8)f)(a0, a1, a2, a3, a4, a5, a6, a7);
}
*/
import "C"

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ZenLiuCN/holyhook/diag"
)

// shimCount is the number of exported C entry points Callback can hand out.
const shimCount = 16

var shims struct {
	fns [shimCount]atomic.Pointer[reflect.Value]
	n   int
	sync.Mutex
}

// Func binds fptr, a pointer to a func variable, to the trampoline of h, so calling it runs the original.
func Func[F any](h *Hook, fptr *F) (err error) {
	tramp := h.Trampoline()
	if tramp == 0 {
		return diag.New(diag.KindCallableUnsupported).Target(h.Name()).Detail("hook is %s", h.State()).Build()
	}
	return Bind(h.Name(), tramp, fptr)
}

// Bind makes fptr call the cdecl function at addr.
func Bind[F any](name string, addr uintptr, fptr *F) error {
	if addr == 0 {
		return diag.New(diag.KindCallableUnsupported).Target(name).Detail("null function address").Build()
	}
	t := reflect.TypeOf(fptr).Elem()
	if err := cdeclSignature(t); err != nil {
		return diag.New(diag.KindCallableUnsupported).Target(name).Cause(err).Build()
	}
	f := reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		w := packArgs(args)
		r := C.holyhook_call8(C.uintptr_t(addr),
			C.uintptr_t(w[0]), C.uintptr_t(w[1]), C.uintptr_t(w[2]), C.uintptr_t(w[3]),
			C.uintptr_t(w[4]), C.uintptr_t(w[5]), C.uintptr_t(w[6]), C.uintptr_t(w[7]))
		return unpackResult(t, uint64(r))
	})
	reflect.ValueOf(fptr).Elem().Set(f)
	return nil
}

// Original is Func returning the bound function.
func Original[F any](h *Hook) (f F, err error) {
	err = Func(h, &f)
	return
}

// Callback turns a Go func into a cdecl function address usable as a hook replacement.
// At most shimCount callbacks exist per process and they are never released.
func Callback(fn any) (uintptr, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0, diag.New(diag.KindCallableUnsupported).Detail("callback %T is not a func", fn).Build()
	}
	if err := cdeclSignature(v.Type()); err != nil {
		return 0, diag.New(diag.KindCallableUnsupported).Detail("callback %T", fn).Cause(err).Build()
	}
	shims.Lock()
	defer shims.Unlock()
	if shims.n == shimCount {
		return 0, diag.New(diag.KindCallableUnsupported).Detail("callback %T: all %d shims taken", fn, shimCount).Build()
	}
	i := shims.n
	shims.fns[i].Store(&v)
	shims.n++
	return uintptr(C.holyhook_shim(C.int(i))), nil
}

// dispatch runs the callback behind shim i with the raw stack words of the native caller.
func dispatch(i int, a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	v := shims.fns[i].Load()
	if v == nil {
		return 0
	}
	w := words{uint32(a0), uint32(a1), uint32(a2), uint32(a3), uint32(a4), uint32(a5), uint32(a6), uint32(a7)}
	return C.uint64_t(packResult(v.Type(), v.Call(unpackArgs(v.Type(), w))))
}
