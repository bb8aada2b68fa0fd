//go:build linux && 386 && cgo

package holyhook

/*
#include <stdint.h>
*/
import "C"

// Exported entry points handed out by Callback. Each forwards the first eight stack words of its caller.

//export holyhookShim0
func holyhookShim0(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(0, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim1
func holyhookShim1(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(1, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim2
func holyhookShim2(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(2, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim3
func holyhookShim3(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(3, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim4
func holyhookShim4(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(4, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim5
func holyhookShim5(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(5, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim6
func holyhookShim6(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(6, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim7
func holyhookShim7(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(7, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim8
func holyhookShim8(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(8, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim9
func holyhookShim9(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(9, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim10
func holyhookShim10(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(10, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim11
func holyhookShim11(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(11, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim12
func holyhookShim12(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(12, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim13
func holyhookShim13(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(13, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim14
func holyhookShim14(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(14, a0, a1, a2, a3, a4, a5, a6, a7)
}

//export holyhookShim15
func holyhookShim15(a0, a1, a2, a3, a4, a5, a6, a7 C.uintptr_t) C.uint64_t {
	return dispatch(15, a0, a1, a2, a3, a4, a5, a6, a7)
}
