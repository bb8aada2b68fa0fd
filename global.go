package holyhook

import (
	"sync"

	"github.com/ZenLiuCN/holyhook/platform"
)

var (
	global     *Engine
	globalErr  error
	globalOnce sync.Once
)

// Default is the process wide engine over the running process and the detected platform.
func Default() (*Engine, error) {
	globalOnce.Do(func() {
		var mem Memory
		if mem, globalErr = NewProcessMemory(); globalErr != nil {
			return
		}
		global, globalErr = NewEngine(mem, platform.Detect())
	})
	return global, globalErr
}

// GlobalHooks lists the hooks installed through the default engine. It should not be used to uninstall them.
func GlobalHooks() []*Hook {
	if e, err := Default(); err == nil {
		return e.Hooks()
	}
	return nil
}

// CloseGlobal uninstalls every hook of the default engine. It should only be used when no module owns hooks any more.
func CloseGlobal() error {
	e, err := Default()
	if err != nil {
		return err
	}
	return e.Close()
}
