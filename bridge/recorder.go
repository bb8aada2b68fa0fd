package bridge

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ZenLiuCN/fn"
)

type (
	// Recorder is a Surface kept in Go maps. It backs hosts without a script runtime and tests.
	Recorder struct {
		tables map[string]map[string]any
		hooks  map[string]HookFunc
		runs   []string
		sync.Mutex
	}
	// HookFunc answers RunHook for one event.
	HookFunc func(args ...any) (any, error)
)

func NewRecorder() *Recorder {
	return &Recorder{tables: map[string]map[string]any{}, hooks: map[string]HookFunc{}}
}

func (r *Recorder) publish(table, name string, v any) error {
	if table == "" || name == "" {
		return fmt.Errorf("empty table or name: %q.%q", table, name)
	}
	r.Lock()
	defer r.Unlock()
	t, ok := r.tables[table]
	if !ok {
		t = map[string]any{}
		r.tables[table] = t
	}
	t[name] = v
	return nil
}

func (r *Recorder) PublishFunction(table, name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("nil function %s.%s", table, name)
	}
	return r.publish(table, name, fn)
}

func (r *Recorder) PublishConstant(table, name string, value any) error {
	return r.publish(table, name, value)
}

func (r *Recorder) Remove(table, name string) error {
	r.Lock()
	defer r.Unlock()
	if t, ok := r.tables[table]; ok {
		delete(t, name)
		if len(t) == 0 {
			delete(r.tables, table)
		}
	}
	return nil
}

func (r *Recorder) RunHook(event string, args ...any) (any, error) {
	r.Lock()
	h := r.hooks[event]
	r.runs = append(r.runs, event)
	r.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(args...)
}

// OnHook sets the answer to RunHook for event, nil removes it.
func (r *Recorder) OnHook(event string, h HookFunc) {
	r.Lock()
	defer r.Unlock()
	if h == nil {
		delete(r.hooks, event)
		return
	}
	r.hooks[event] = h
}

// Function returns a published function.
func (r *Recorder) Function(table, name string) (Function, bool) {
	r.Lock()
	defer r.Unlock()
	f, ok := r.tables[table][name].(Function)
	return f, ok
}

// Call calls a published function.
func (r *Recorder) Call(table, name string, args ...any) ([]any, error) {
	f, ok := r.Function(table, name)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a function", table, name)
	}
	return f(args)
}

// Value returns a published value.
func (r *Recorder) Value(table, name string) (v any, ok bool) {
	r.Lock()
	defer r.Unlock()
	v, ok = r.tables[table][name]
	return
}

// Tables lists the tables holding at least one field, sorted.
func (r *Recorder) Tables() []string {
	r.Lock()
	defer r.Unlock()
	v := fn.MapKeys(r.tables)
	slices.Sort(v)
	return v
}

// Fields lists the fields of a table, sorted.
func (r *Recorder) Fields(table string) []string {
	r.Lock()
	defer r.Unlock()
	v := fn.MapKeys(r.tables[table])
	slices.Sort(v)
	return v
}

// Runs lists the events passed to RunHook.
func (r *Recorder) Runs() []string {
	r.Lock()
	defer r.Unlock()
	return slices.Clone(r.runs)
}

func (r *Recorder) String() string {
	var b strings.Builder
	for _, t := range r.Tables() {
		fmt.Fprintf(&b, "%s: %s\n", t, strings.Join(r.Fields(t), ", "))
	}
	return b.String()
}
