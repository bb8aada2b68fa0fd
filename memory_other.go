//go:build !linux && !windows

package holyhook

import "github.com/ZenLiuCN/holyhook/diag"

// NewProcessMemory is unavailable outside Linux and Windows.
func NewProcessMemory() (Memory, error) {
	return nil, diag.New(diag.KindMemoryProtection).Detail("code patching is not supported on this platform").Build()
}
