package registry

import (
	"fmt"

	"github.com/ZenLiuCN/holyhook/platform"
)

type (
	// Module is an independently toggleable unit bundling native hooks and a scripting surface contribution.
	//
	// Phases run in order BindNative, InstallHooks, BindScript and tear down in reverse. Hooks are installed through
	// Env.Hook during InstallHooks only, the registry uninstalls them.
	Module interface {
		Descriptor() Descriptor
		BindNative(env *Env) error
		InstallHooks(env *Env) error
		BindScript(env *Env) error
		UnbindScript(env *Env) error
		UnbindNative(env *Env) error
	}
	// Thinker is a Module with per tick work, called for script bound modules only.
	Thinker interface {
		Think(env *Env, simulating bool) error
	}
	// Descriptor is the static declaration of a module.
	Descriptor struct {
		Name           string
		Compatibility  platform.Mask
		DefaultEnabled bool
	}
	// State is the lifecycle state of a module.
	State uint8
	// Status is a snapshot of one module.
	Status struct {
		Name       string
		State      State
		Enabled    bool
		Compatible bool
		Hooks      int
		DebugLevel int
		Err        error //last failure
	}
)

const (
	Unloaded State = iota
	NativeBound
	HooksInstalled
	ScriptBound
	// Unloading is a teardown that could not finish, UnloadAll retries it.
	Unloading
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case NativeBound:
		return "native-bound"
	case HooksInstalled:
		return "hooks-installed"
	case ScriptBound:
		return "script-bound"
	case Unloading:
		return "unloading"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Base implements every phase as a no-op, modules embed it and override what they need.
type Base struct{}

func (Base) BindNative(*Env) error   { return nil }
func (Base) InstallHooks(*Env) error { return nil }
func (Base) BindScript(*Env) error   { return nil }
func (Base) UnbindScript(*Env) error { return nil }
func (Base) UnbindNative(*Env) error { return nil }
