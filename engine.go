package holyhook

import (
	"bytes"
	"slices"
	"sync"

	"github.com/ZenLiuCN/holyhook/diag"
	"github.com/ZenLiuCN/holyhook/platform"
	"go.uber.org/zap"
)

// Engine installs inline hooks in one address space.
//
// Use Steps:
//
//  1. NewEngine with the process Memory (or Default) and the detected platform tag.
//  2. Engine.Install a replacement over a resolved target.
//  3. Call the original through Hook.Trampoline, typed with Func.
//  4. Hook.Uninstall in reverse install order, or Engine.Close to remove everything.
type Engine struct {
	mem   Memory
	isa   isa
	slots *slotPool
	hooks map[uintptr][]*Hook //installed hooks per target, in install order
	debug bool
	sync.Mutex
}

// NewEngine creates an engine over mem for the platform tag, an optional debug parameter enables debug logging.
func NewEngine(mem Memory, tag platform.Tag, debug ...bool) (e *Engine, err error) {
	e = new(Engine)
	if e.isa, err = isaOf(tag); err != nil {
		return nil, err
	}
	e.mem = mem
	e.slots = &slotPool{mem: mem, isa: e.isa}
	e.hooks = make(map[uintptr][]*Hook)
	e.debug = len(debug) > 0 && debug[0]
	return
}

// Memory is the address space the engine patches.
func (e *Engine) Memory() Memory {
	return e.mem
}

func (e *Engine) Tag() platform.Tag {
	return e.isa.tag
}

// New creates an uninstalled hook. The binders run on every install of the hook.
func (e *Engine) New(owner, name string, target, replacement uintptr, bind ...Binder) *Hook {
	return &Hook{engine: e, owner: owner, name: name, target: target, replacement: replacement, bind: bind}
}

// Install creates and installs a hook. The hook is returned in Failed state together with the error.
func (e *Engine) Install(owner, name string, target, replacement uintptr, bind ...Binder) (h *Hook, err error) {
	h = e.New(owner, name, target, replacement, bind...)
	err = h.Install()
	return
}

// Hooks lists the installed hooks ordered by target then install order.
func (e *Engine) Hooks() (v []*Hook) {
	e.Lock()
	defer e.Unlock()
	targets := make([]uintptr, 0, len(e.hooks))
	for t := range e.hooks {
		targets = append(targets, t)
	}
	slices.Sort(targets)
	for _, t := range targets {
		v = append(v, e.hooks[t]...)
	}
	return
}

// Close uninstalls every hook, latest first per target.
func (e *Engine) Close() (err error) {
	e.Lock()
	defer e.Unlock()
	for _, chain := range e.hooks {
		for i := len(chain) - 1; i >= 0; i-- {
			if x := e.uninstall(chain[i]); x != nil && err == nil {
				err = x
			}
		}
	}
	return
}

func (e *Engine) install(h *Hook) (err error) {
	if h.state == Installed {
		return nil
	}
	if h.target == 0 || h.replacement == 0 {
		return h.fail(diag.New(diag.KindSymbolNotFound).Target(h.name).Detail("null target or replacement").Build())
	}
	patchLen := len(e.isa.jump(h.target, h.replacement))
	var code []byte
	if code, err = e.mem.Read(h.target, patchLen+maxInstLen); err != nil {
		return h.fail(diag.New(diag.KindMemoryProtection).Target(h.name).Detail("read prologue").Cause(err).Build())
	}
	var slot uintptr
	if slot, err = e.slots.take(h.target); err != nil {
		return h.fail(diag.New(diag.KindMemoryProtection).Target(h.name).Detail("allocate trampoline").Cause(err).Build())
	}
	body, saved, err := e.isa.trampoline(h.name, code, h.target, patchLen, slot, e.mem.Read)
	if err != nil {
		e.releaseSlot(h, slot)
		return h.fail(err)
	}
	if err = e.mem.Write(slot, body); err != nil {
		e.releaseSlot(h, slot)
		return h.fail(diag.New(diag.KindMemoryProtection).Target(h.name).Detail("write trampoline").Cause(err).Build())
	}
	for _, bind := range h.bind {
		if err = bind(slot); err != nil {
			e.releaseSlot(h, slot)
			return h.fail(diag.New(diag.KindCallableUnsupported).Target(h.name).Detail("bind original").Cause(err).Build())
		}
	}
	original := bytes.Clone(code[:saved])
	patch := e.isa.patch(h.target, h.replacement, saved)
	if err = e.mem.Write(h.target, patch); err != nil {
		if x := e.mem.Write(h.target, original); x != nil {
			Logger().Error("restore after failed patch", zap.Stringer("hook", h), zap.Error(x))
		}
		e.releaseSlot(h, slot)
		return h.fail(diag.New(diag.KindMemoryProtection).Target(h.name).Detail("write patch").Cause(err).Build())
	}
	h.trampoline, h.original, h.patch = slot, original, patch
	h.state, h.err = Installed, nil
	e.hooks[h.target] = append(e.hooks[h.target], h)
	if e.debug {
		Logger().Debug("installed", zap.Stringer("hook", h),
			zap.Uintptr("trampoline", slot), zap.Int("saved", saved), zap.Binary("original", original))
	}
	return nil
}

func (e *Engine) uninstall(h *Hook) (err error) {
	if h.state != Installed {
		return nil
	}
	chain := e.hooks[h.target]
	if len(chain) == 0 || chain[len(chain)-1] != h {
		return diag.New(diag.KindChainedHook).Target(h.name).Detail("a later hook is chained on %#x", h.target).Build()
	}
	var current []byte
	if current, err = e.mem.Read(h.target, len(h.patch)); err != nil {
		return diag.New(diag.KindMemoryProtection).Target(h.name).Detail("read patch").Cause(err).Build()
	}
	if !bytes.Equal(current, h.patch) {
		return diag.New(diag.KindChainedHook).Target(h.name).Detail("patch at %#x was overwritten", h.target).Build()
	}
	if err = e.mem.Write(h.target, h.original); err != nil {
		return diag.New(diag.KindMemoryProtection).Target(h.name).Detail("restore original").Cause(err).Build()
	}
	e.releaseSlot(h, h.trampoline)
	if chain = chain[:len(chain)-1]; len(chain) == 0 {
		delete(e.hooks, h.target)
	} else {
		e.hooks[h.target] = chain
	}
	h.trampoline, h.original, h.patch = 0, nil, nil
	h.state = Uninstalled
	if e.debug {
		Logger().Debug("uninstalled", zap.Stringer("hook", h))
	}
	return nil
}

func (e *Engine) releaseSlot(h *Hook, slot uintptr) {
	if err := e.slots.release(slot); err != nil {
		Logger().Warn("release trampoline", zap.Stringer("hook", h), zap.Uintptr("slot", slot), zap.Error(err))
	}
}
