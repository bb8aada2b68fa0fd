package holyhook

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"
)

// State of a Hook.
type State uint8

const (
	Uninstalled State = iota
	Installed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installed:
		return "installed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Hook redirects the entry of Target to Replacement while keeping the original reachable through Trampoline.
//
// Install and Uninstall are idempotent. Neither is safe while another thread executes the target.
// The trampoline may be called from any thread once installed.
type Hook struct {
	engine      *Engine
	owner       string
	name        string
	target      uintptr
	replacement uintptr
	trampoline  uintptr
	original    []byte //bytes replaced by patch
	patch       []byte
	bind        []Binder
	state       State
	err         error
}

// Binder receives the trampoline of a hook being installed, before the patch makes the replacement reachable.
// A failing Binder aborts the install and leaves the target untouched.
type Binder func(trampoline uintptr) error

func (h *Hook) Owner() string        { return h.owner }
func (h *Hook) Name() string         { return h.name }
func (h *Hook) Target() uintptr      { return h.target }
func (h *Hook) Replacement() uintptr { return h.replacement }

// Trampoline is the callable original, zero unless installed.
func (h *Hook) Trampoline() uintptr {
	h.engine.Lock()
	defer h.engine.Unlock()
	return h.trampoline
}

func (h *Hook) State() State {
	h.engine.Lock()
	defer h.engine.Unlock()
	return h.state
}

// Err is the failure of the last Install, nil unless Failed.
func (h *Hook) Err() error {
	h.engine.Lock()
	defer h.engine.Unlock()
	return h.err
}

// Original is a copy of the bytes the patch replaced, nil unless installed.
func (h *Hook) Original() []byte {
	h.engine.Lock()
	defer h.engine.Unlock()
	return bytes.Clone(h.original)
}

func (h *Hook) String() string {
	return fmt.Sprintf("%s:%s@%#x->%#x", h.owner, h.name, h.target, h.replacement)
}

// Install patches the target. Installing an installed hook does nothing.
func (h *Hook) Install() error {
	h.engine.Lock()
	defer h.engine.Unlock()
	return h.engine.install(h)
}

// Uninstall restores the original bytes and frees the trampoline. Uninstalling a hook that is not installed does
// nothing. A hook chained on the same target after this one must be uninstalled first.
func (h *Hook) Uninstall() error {
	h.engine.Lock()
	defer h.engine.Unlock()
	return h.engine.uninstall(h)
}

func (h *Hook) fail(err error) error {
	h.state, h.err = Failed, err
	if h.engine.debug {
		Logger().Debug("install failed", zap.Stringer("hook", h), zap.Error(err))
	}
	return err
}
