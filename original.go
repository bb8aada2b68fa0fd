package holyhook

import "sync/atomic"

// Native holds a typed native function, usually the original behind a hook, for use from replacements running on
// host threads. The zero value holds nothing and Get returns the zero F.
type Native[F any] struct {
	p atomic.Pointer[F]
}

func (n *Native[F]) Get() (f F) {
	if p := n.p.Load(); p != nil {
		f = *p
	}
	return
}

func (n *Native[F]) Set(f F) {
	n.p.Store(&f)
}

func (n *Native[F]) Clear() {
	n.p.Store(nil)
}

// Bind makes the held function call the native function at addr.
func (n *Native[F]) Bind(name string, addr uintptr) error {
	var f F
	if err := Bind(name, addr, &f); err != nil {
		return err
	}
	n.Set(f)
	return nil
}

// Binder binds the held function to the trampoline of the hook being installed, before the patch goes live.
func (n *Native[F]) Binder(name string) Binder {
	return func(trampoline uintptr) error {
		return n.Bind(name, trampoline)
	}
}
