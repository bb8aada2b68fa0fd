package bridge

import (
	"errors"
	"fmt"
)

type (
	// Surface is what modules publish to the scripting runtime.
	//
	// Publishing a name twice replaces it. Removing the last field of a table removes the table.
	// Table paths are dotted: "HolyLib.pvs" is the field pvs of the global HolyLib.
	Surface interface {
		PublishFunction(table, name string, fn Function) error
		PublishConstant(table, name string, value any) error
		Remove(table, name string) error
		// RunHook runs the script event through hook.Run and returns its first result.
		RunHook(event string, args ...any) (any, error)
	}
	// Function is a native function published to scripts. Arguments and results are plain Go values:
	// nil, bool, int64, float64, string, []any, map[string]any and Callable.
	Function func(args Args) ([]any, error)
	// Callable is a script function received as an argument. It must not be called while the runtime is running
	// script code, keep it and call it later from the control thread.
	Callable func(args ...any) ([]any, error)
	// Args are the arguments of a Function call.
	Args []any
)

// ErrArgument is returned by Args accessors.
var ErrArgument = errors.New("bad argument")

func (a Args) at(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

func argError(i int, want string, got any) error {
	return fmt.Errorf("%w #%d: %s expected, got %T", ErrArgument, i+1, want, got)
}

// String reads argument i, numbers are formatted.
func (a Args) String(i int) (string, error) {
	switch v := a.at(i).(type) {
	case string:
		return v, nil
	case int64:
		return fmt.Sprint(v), nil
	case float64:
		return fmt.Sprint(v), nil
	default:
		return "", argError(i, "string", v)
	}
}

// Int reads argument i, a float must be integral.
func (a Args) Int(i int) (int64, error) {
	switch v := a.at(i).(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	}
	return 0, argError(i, "integer", a.at(i))
}

func (a Args) Number(i int) (float64, error) {
	switch v := a.at(i).(type) {
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, argError(i, "number", v)
	}
}

// Bool reads argument i with script truthiness: only nil and false are false.
func (a Args) Bool(i int) bool {
	switch v := a.at(i).(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}

func (a Args) Callable(i int) (Callable, error) {
	if v, ok := a.at(i).(Callable); ok {
		return v, nil
	}
	return nil, argError(i, "function", a.at(i))
}

// Any is argument i or nil.
func (a Args) Any(i int) any {
	return a.at(i)
}

// Truthy applies script truthiness to a hook result.
func Truthy(v any) bool {
	return Args{v}.Bool(0)
}
