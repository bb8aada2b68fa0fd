// Package entitylist keeps script owned lists of entity indices, the way scripts track groups of networked
// entities without rebuilding tables every tick.
package entitylist

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
)

const Name = "entitylist"

var ErrUnknownList = errors.New("unknown entity list")

type (
	// Module publishes the entitylist table. It installs no hooks.
	Module struct {
		registry.Base
		lists map[int64]*List
		next  int64
		sync.Mutex
	}
	// List is an ordered set of entity indices.
	List struct {
		order []int64
		index map[int64]struct{}
	}
)

func New() *Module {
	return &Module{lists: map[int64]*List{}}
}

func (m *Module) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: Name, Compatibility: platform.All, DefaultEnabled: true}
}

func (m *Module) BindScript(env *registry.Env) error {
	s := env.Surface()
	for name, f := range m.functions() {
		if err := s.PublishFunction(Name, name, f); err != nil {
			return err
		}
	}
	return nil
}

// UnbindScript removes the table and drops every list, their handles die with the script state.
func (m *Module) UnbindScript(env *registry.Env) (err error) {
	s := env.Surface()
	for name := range m.functions() {
		err = errors.Join(err, s.Remove(Name, name))
	}
	m.Lock()
	clear(m.lists)
	m.next = 0
	m.Unlock()
	return
}

func (m *Module) functions() map[string]bridge.Function {
	return map[string]bridge.Function{
		"Create": func(bridge.Args) ([]any, error) {
			m.Lock()
			defer m.Unlock()
			m.next++
			m.lists[m.next] = &List{index: map[int64]struct{}{}}
			return []any{m.next}, nil
		},
		"Destroy": m.with(func(id int64, _ *List, _ bridge.Args) ([]any, error) {
			delete(m.lists, id)
			return nil, nil
		}),
		"Add": m.with(func(_ int64, l *List, a bridge.Args) ([]any, error) {
			i, err := a.Int(1)
			if err != nil {
				return nil, err
			}
			return []any{l.Add(i)}, nil
		}),
		"Remove": m.with(func(_ int64, l *List, a bridge.Args) ([]any, error) {
			i, err := a.Int(1)
			if err != nil {
				return nil, err
			}
			return []any{l.Remove(i)}, nil
		}),
		"Count": m.with(func(_ int64, l *List, _ bridge.Args) ([]any, error) {
			return []any{int64(l.Count())}, nil
		}),
		"Clear": m.with(func(_ int64, l *List, _ bridge.Args) ([]any, error) {
			l.Clear()
			return nil, nil
		}),
		"GetTable": m.with(func(_ int64, l *List, _ bridge.Args) ([]any, error) {
			v := make([]any, 0, l.Count())
			for _, i := range l.order {
				v = append(v, i)
			}
			return []any{v}, nil
		}),
		"SetTable": m.with(func(_ int64, l *List, a bridge.Args) ([]any, error) {
			v, err := indices(a.Any(1))
			if err != nil {
				return nil, err
			}
			l.Clear()
			for _, i := range v {
				l.Add(i)
			}
			return nil, nil
		}),
		"AddTable": m.with(func(_ int64, l *List, a bridge.Args) ([]any, error) {
			v, err := indices(a.Any(1))
			if err != nil {
				return nil, err
			}
			for _, i := range v {
				l.Add(i)
			}
			return nil, nil
		}),
		"RemoveTable": m.with(func(_ int64, l *List, a bridge.Args) ([]any, error) {
			v, err := indices(a.Any(1))
			if err != nil {
				return nil, err
			}
			for _, i := range v {
				l.Remove(i)
			}
			return nil, nil
		}),
	}
}

// with resolves the list handle passed as first argument and runs f under the module lock.
func (m *Module) with(f func(id int64, l *List, a bridge.Args) ([]any, error)) bridge.Function {
	return func(a bridge.Args) ([]any, error) {
		id, err := a.Int(0)
		if err != nil {
			return nil, err
		}
		m.Lock()
		defer m.Unlock()
		l, ok := m.lists[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownList, id)
		}
		return f(id, l, a)
	}
}

func indices(v any) ([]int64, error) {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case map[string]any:
		keys := fn.MapKeys(x)
		slices.Sort(keys)
		for _, k := range keys {
			items = append(items, x[k])
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: want a table of entity indices, got %T", bridge.ErrArgument, v)
	}
	out := make([]int64, 0, len(items))
	for i := range items {
		n, err := bridge.Args(items).Int(i)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Add appends i unless present.
func (l *List) Add(i int64) bool {
	if _, ok := l.index[i]; ok {
		return false
	}
	l.index[i] = struct{}{}
	l.order = append(l.order, i)
	return true
}

func (l *List) Remove(i int64) bool {
	if _, ok := l.index[i]; !ok {
		return false
	}
	delete(l.index, i)
	l.order = slices.DeleteFunc(l.order, func(x int64) bool { return x == i })
	return true
}

func (l *List) Count() int {
	return len(l.order)
}

func (l *List) Clear() {
	l.order = l.order[:0]
	clear(l.index)
}
