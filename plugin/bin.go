// Command plugin is built with -buildmode=c-shared and loaded by the game server host.
//
// The host calls holyhook_attach once after its libraries are mapped, holyhook_think every tick and
// holyhook_detach before unloading the plugin. holyhook_reload moves the modules to a fresh script runtime.
package main

import "C"

import (
	"sync"

	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/config"
	"github.com/ZenLiuCN/holyhook/host"
	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	current *host.Host
)

func fallback() *zap.Logger {
	if current != nil {
		return current.Logger()
	}
	return zap.Must(zap.NewProduction()).Named("holyhook")
}

func attach() int {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fallback().Error("attach", zap.Error(err))
		return -1
	}
	if current, err = host.Attach(cfg, host.Options{}); err != nil {
		fallback().Error("attach", zap.Error(err))
		return -1
	}
	return 0
}

func detach() int {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return 1
	}
	err := current.Detach()
	if err != nil {
		fallback().Error("detach", zap.Error(err))
	}
	current = nil
	if err != nil {
		return -1
	}
	return 0
}

func reload() int {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return 1
	}
	s, err := bridge.NewLuaSurface()
	if err == nil {
		err = current.Reload(s)
	}
	if err != nil {
		fallback().Error("reload", zap.Error(err))
		return -1
	}
	return 0
}

func think(simulating bool) {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		current.Think(simulating)
	}
}

//export holyhook_attach
func holyhook_attach() C.int {
	return C.int(attach())
}

//export holyhook_detach
func holyhook_detach() C.int {
	return C.int(detach())
}

//export holyhook_reload
func holyhook_reload() C.int {
	return C.int(reload())
}

//export holyhook_think
func holyhook_think(simulating C.int) {
	think(simulating != 0)
}

func main() {}
