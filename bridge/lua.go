package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
)

const (
	refTable = "holyhook.refs"
	maxDepth = 8
)

// hookLibrary is installed when the runtime has no hook library of its own.
// hook.Run returns the results of the first handler that returns something.
const hookLibrary = `
hook = {}
local events = {}
function hook.Add(event, id, fn) events[event] = events[event] or {}; events[event][id] = fn end
function hook.Remove(event, id) if events[event] then events[event][id] = nil end end
function hook.GetTable() return events end
function hook.Run(event, ...)
	local t = events[event]
	if not t then return end
	for _, fn in pairs(t) do
		local a, b, c = fn(...)
		if a ~= nil then return a, b, c end
	end
end
`

// ErrNotTable is returned when a table path runs into a field that is not a table.
var ErrNotTable = errors.New("not a table")

// LuaSurface is a Surface over a go-lua runtime. Every access to the runtime is serialised by its mutex.
type LuaSurface struct {
	l    *lua.State
	refs int
	sync.Mutex
}

// NewLuaSurface creates a runtime with the standard libraries and a hook library.
func NewLuaSurface() (s *LuaSurface, err error) {
	l := lua.NewState()
	lua.OpenLibraries(l)
	l.NewTable()
	l.SetField(lua.RegistryIndex, refTable)
	l.Global("hook")
	missing := l.IsNil(-1)
	l.Pop(1)
	if missing {
		if err = lua.DoString(l, hookLibrary); err != nil {
			return nil, fmt.Errorf("hook library: %w", err)
		}
	}
	return &LuaSurface{l: l}, nil
}

// DoString runs a script chunk.
func (s *LuaSurface) DoString(code string) error {
	s.Lock()
	defer s.Unlock()
	top := s.l.Top()
	defer s.l.SetTop(top)
	return lua.DoString(s.l, code)
}

// Eval evaluates one expression.
func (s *LuaSurface) Eval(expr string) (v any, err error) {
	s.Lock()
	defer s.Unlock()
	top := s.l.Top()
	defer s.l.SetTop(top)
	if err = lua.LoadString(s.l, "return "+expr); err != nil {
		return
	}
	if err = s.l.ProtectedCall(0, 1, 0); err != nil {
		return
	}
	return s.value(s.l, -1, 0), nil
}

// pushTable pushes the table at a dotted path, creating missing tables when create is set.
func (s *LuaSurface) pushTable(path string, create bool) (bool, error) {
	l := s.l
	parts := strings.Split(path, ".")
	for i, p := range parts {
		if p == "" {
			return false, fmt.Errorf("table path %q: empty name", path)
		}
		if i == 0 {
			l.Global(p)
		} else {
			l.Field(-1, p)
		}
		switch {
		case l.IsTable(-1):
		case l.IsNil(-1) && create:
			l.Pop(1)
			l.NewTable()
			l.PushValue(-1)
			if i == 0 {
				l.SetGlobal(p)
			} else {
				l.SetField(-3, p)
			}
		case l.IsNil(-1):
			l.Pop(min(i+1, 2))
			return false, nil
		default:
			l.Pop(min(i+1, 2))
			return false, fmt.Errorf("%w: %s", ErrNotTable, strings.Join(parts[:i+1], "."))
		}
		if i > 0 {
			l.Remove(-2)
		}
	}
	return true, nil
}

func (s *LuaSurface) set(table, name string, push func()) error {
	if name == "" {
		return fmt.Errorf("empty name in %q", table)
	}
	s.Lock()
	defer s.Unlock()
	if _, err := s.pushTable(table, true); err != nil {
		return err
	}
	push()
	s.l.SetField(-2, name)
	s.l.Pop(1)
	return nil
}

func (s *LuaSurface) PublishFunction(table, name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("nil function %s.%s", table, name)
	}
	return s.set(table, name, func() { s.l.PushGoFunction(s.wrap(fn)) })
}

func (s *LuaSurface) PublishConstant(table, name string, value any) error {
	return s.set(table, name, func() { s.push(s.l, value, 0) })
}

func (s *LuaSurface) Remove(table, name string) error {
	s.Lock()
	defer s.Unlock()
	return s.remove(table, name)
}

func (s *LuaSurface) remove(table, name string) error {
	l := s.l
	ok, err := s.pushTable(table, false)
	if !ok {
		return err
	}
	l.PushNil()
	l.SetField(-2, name)
	l.PushNil()
	empty := !l.Next(-2)
	if empty {
		l.Pop(1)
	} else {
		l.Pop(3)
	}
	if !empty {
		return nil
	}
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return s.remove(table[:i], table[i+1:])
	}
	l.PushNil()
	l.SetGlobal(table)
	return nil
}

func (s *LuaSurface) RunHook(event string, args ...any) (v any, err error) {
	s.Lock()
	defer s.Unlock()
	l := s.l
	top := l.Top()
	defer l.SetTop(top)
	l.Global("hook")
	if !l.IsTable(-1) {
		return nil, nil
	}
	l.Field(-1, "Run")
	if !l.IsFunction(-1) {
		return nil, nil
	}
	l.PushString(event)
	for _, a := range args {
		s.push(l, a, 0)
	}
	if err = l.ProtectedCall(1+len(args), 1, 0); err != nil {
		return nil, fmt.Errorf("hook %s: %w", event, err)
	}
	return s.value(l, -1, 0), nil
}

// wrap adapts a Function. It runs inside script execution, with the mutex already held.
func (s *LuaSurface) wrap(fn Function) lua.Function {
	return func(l *lua.State) int {
		n := l.Top()
		args := make(Args, n)
		for i := range args {
			args[i] = s.value(l, i+1, 0)
		}
		res, err := fn(args)
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
			return 0
		}
		for _, r := range res {
			s.push(l, r, 0)
		}
		return len(res)
	}
}

func (s *LuaSurface) push(l *lua.State, v any, depth int) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case int:
		l.PushInteger(x)
	case int32:
		l.PushInteger(int(x))
	case int64:
		l.PushInteger(int(x))
	case uint8:
		l.PushInteger(int(x))
	case uint32:
		l.PushInteger(int(x))
	case float32:
		l.PushNumber(float64(x))
	case float64:
		l.PushNumber(x)
	case string:
		l.PushString(x)
	case Function:
		l.PushGoFunction(s.wrap(x))
	case []any:
		l.CreateTable(len(x), 0)
		if depth < maxDepth {
			for i, e := range x {
				s.push(l, e, depth+1)
				l.RawSetInt(-2, i+1)
			}
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		if depth < maxDepth {
			for k, e := range x {
				s.push(l, e, depth+1)
				l.SetField(-2, k)
			}
		}
	default:
		l.PushString(fmt.Sprint(x))
	}
}

func (s *LuaSurface) value(l *lua.State, idx int, depth int) any {
	switch l.TypeOf(idx) {
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		f, _ := l.ToNumber(idx)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.TypeString:
		v, _ := l.ToString(idx)
		return v
	case lua.TypeTable:
		if depth >= maxDepth {
			return nil
		}
		return s.table(l, l.AbsIndex(idx), depth)
	case lua.TypeFunction:
		return s.callable(l, l.AbsIndex(idx))
	default:
		return nil
	}
}

// table converts a sequence to []any and anything else to map[string]any.
func (s *LuaSurface) table(l *lua.State, idx int, depth int) any {
	m := map[string]any{}
	var seq []any
	isSeq := true
	l.PushNil()
	for l.Next(idx) {
		v := s.value(l, -1, depth+1)
		if k, ok := l.ToInteger(-2); ok && l.TypeOf(-2) == lua.TypeNumber && isSeq && k == len(seq)+1 {
			seq = append(seq, v)
		} else {
			isSeq = false
		}
		l.PushValue(-2)
		key, _ := l.ToString(-1)
		l.Pop(2)
		m[key] = v
	}
	if isSeq && len(seq) > 0 {
		return seq
	}
	return m
}

// callable keeps the function at idx referenced and returns a Callable for it.
func (s *LuaSurface) callable(l *lua.State, idx int) Callable {
	s.refs++
	ref := s.refs
	l.Field(lua.RegistryIndex, refTable)
	l.PushValue(idx)
	l.RawSetInt(-2, ref)
	l.Pop(1)
	return func(args ...any) (res []any, err error) {
		l := s.l
		s.Lock()
		defer s.Unlock()
		top := l.Top()
		defer l.SetTop(top)
		l.Field(lua.RegistryIndex, refTable)
		l.RawGetInt(-1, ref)
		for _, a := range args {
			s.push(l, a, 0)
		}
		if err = l.ProtectedCall(len(args), lua.MultipleReturns, 0); err != nil {
			return nil, err
		}
		for i := top + 2; i <= l.Top(); i++ {
			res = append(res, s.value(l, i, 0))
		}
		return
	}
}
