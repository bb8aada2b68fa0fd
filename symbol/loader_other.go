//go:build !linux && !windows

package symbol

import (
	"fmt"
	"runtime"

	"github.com/ZenLiuCN/holyhook/platform"
)

type otherLoader struct{}

// NewLoader returns a loader that opens nothing: the host only ships Linux and Windows builds.
func NewLoader(platform.Tag) Loader {
	return otherLoader{}
}

func (otherLoader) Open(name string) (Library, error) {
	return nil, fmt.Errorf("open %s: %w on %s", name, ErrNotSupported, runtime.GOOS)
}
