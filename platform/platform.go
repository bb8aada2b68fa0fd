// Package platform identifies the operating system and architecture the plugin runs on.
//
// The host ships 32 and 64 bit builds for Linux and Windows. A [Tag] names exactly one of those combinations and a
// [Mask] is the set of combinations a module declares support for.
package platform

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

type (
	// Tag is one operating system and architecture combination, always a single bit.
	Tag uint8
	// Mask is a set of Tag.
	Mask uint8
)

const Unknown Tag = 0

const (
	Linux32 Tag = 1 << iota
	Linux64
	Windows32
	Windows64
)

// All supported combinations.
const All = Mask(Linux32 | Linux64 | Windows32 | Windows64)

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Linux   = "linux"
)

var detectOnce = sync.OnceValue(func() Tag {
	return FromGo(runtime.GOOS, runtime.GOARCH)
})

// Detect returns the Tag of the running process. The result is computed once.
func Detect() Tag {
	return detectOnce()
}

// FromGo maps GOOS and GOARCH values to a Tag, Unknown when the pair is not a host target.
func FromGo(goos, goarch string) Tag {
	var wide bool
	switch goarch {
	case "386":
	case "amd64":
		wide = true
	default:
		return Unknown
	}
	switch goos {
	case Linux:
		if wide {
			return Linux64
		}
		return Linux32
	case Windows:
		if wide {
			return Windows64
		}
		return Windows32
	}
	return Unknown
}

// Parse accepts the names produced by Tag.String, case-insensitively.
func Parse(s string) (Tag, error) {
	for _, t := range []Tag{Linux32, Linux64, Windows32, Windows64} {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown platform %q", s)
}

// Of builds a Mask from tags.
func Of(tags ...Tag) (m Mask) {
	for _, t := range tags {
		m |= Mask(t)
	}
	return
}

// Has reports whether t is in the mask. Unknown is never contained.
func (m Mask) Has(t Tag) bool {
	return t != Unknown && m&Mask(t) != 0
}

// Tags lists the members in ascending bit order.
func (m Mask) Tags() (v []Tag) {
	for _, t := range []Tag{Linux32, Linux64, Windows32, Windows64} {
		if m.Has(t) {
			v = append(v, t)
		}
	}
	return
}

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	s := make([]string, 0, 4)
	for _, t := range m.Tags() {
		s = append(s, t.String())
	}
	return strings.Join(s, "|")
}

func (t Tag) String() string {
	switch t {
	case Linux32:
		return "linux32"
	case Linux64:
		return "linux64"
	case Windows32:
		return "windows32"
	case Windows64:
		return "windows64"
	default:
		return "unknown"
	}
}

// Is64 reports a 64 bit address space.
func (t Tag) Is64() bool {
	return t == Linux64 || t == Windows64
}

// IsWindows reports a Windows target.
func (t Tag) IsWindows() bool {
	return t == Windows32 || t == Windows64
}

// PointerSize in bytes, 0 for Unknown.
func (t Tag) PointerSize() int {
	switch {
	case t == Unknown:
		return 0
	case t.Is64():
		return 8
	default:
		return 4
	}
}

// LibraryCandidates returns the file names a host library base name may be loaded under, most specific first.
//
// Dedicated server builds on 32 bit Linux suffix game libraries with _srv.
func LibraryCandidates(name string, t Tag) []string {
	if strings.ContainsAny(name, `./\`) {
		return []string{name}
	}
	switch t {
	case Linux32:
		return []string{name + "_srv.so", name + ".so"}
	case Linux64:
		return []string{name + ".so", name + "_client.so"}
	case Windows32, Windows64:
		return []string{name + ".dll"}
	default:
		return []string{name}
	}
}
