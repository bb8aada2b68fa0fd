package registry

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/ZenLiuCN/holyhook"
)

// newCallback creates native callbacks. The process table is finite and never shrinks.
var newCallback = holyhook.Callback

// callback is the native entry of one hook name. It dispatches to the replacement of the latest install.
type callback struct {
	addr uintptr
	typ  reflect.Type
	fn   atomic.Pointer[reflect.Value]
}

func (e *entry) callback(name string, replacement any) (uintptr, error) {
	fv := reflect.ValueOf(replacement)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return 0, fmt.Errorf("replacement %T is not a func", replacement)
	}
	if c, ok := e.callbacks[name]; ok && c.typ == fv.Type() {
		c.fn.Store(&fv)
		return c.addr, nil
	}
	c := &callback{typ: fv.Type()}
	c.fn.Store(&fv)
	addr, err := newCallback(reflect.MakeFunc(c.typ, func(args []reflect.Value) []reflect.Value {
		return c.fn.Load().Call(args)
	}).Interface())
	if err != nil {
		return 0, err
	}
	c.addr = addr
	if e.callbacks == nil {
		e.callbacks = make(map[string]*callback)
	}
	e.callbacks[name] = c
	return addr, nil
}
