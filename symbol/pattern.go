package symbol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Pattern is a byte signature where some positions match anything.
type Pattern struct {
	bytes  []byte
	exact  []bool
	anchor int //first exact position, -1 when everything is a wildcard
}

// ParsePattern reads the text form: hex byte pairs separated by spaces, with ? or ?? as a wildcard.
//
//	55 8B EC 83 EC ?? 53 56
func ParsePattern(s string) (p Pattern, err error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return p, fmt.Errorf("empty pattern")
	}
	p.bytes = make([]byte, len(fields))
	p.exact = make([]bool, len(fields))
	for i, f := range fields {
		if f == "?" || f == "??" {
			continue
		}
		var b []byte
		if b, err = hex.DecodeString(f); err != nil || len(b) != 1 {
			return Pattern{}, fmt.Errorf("pattern byte %d %q: not a hex byte", i, f)
		}
		p.bytes[i] = b[0]
		p.exact[i] = true
	}
	p.anchor = p.firstExact()
	return
}

// MustPattern is ParsePattern that panics, for package level signatures.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// RawSig converts a Source SDK style signature, raw bytes with 0x2A as the wildcard, to the text form.
func RawSig(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		if raw[i] == 0x2A {
			b.WriteString("??")
			continue
		}
		fmt.Fprintf(&b, "%02X", raw[i])
	}
	return b.String()
}

func (p Pattern) firstExact() int {
	for i, e := range p.exact {
		if e {
			return i
		}
	}
	return -1
}

// Len is the pattern length in bytes.
func (p Pattern) Len() int {
	return len(p.bytes)
}

func (p Pattern) String() string {
	var b strings.Builder
	for i := range p.bytes {
		if i > 0 {
			b.WriteByte(' ')
		}
		if !p.exact[i] {
			b.WriteString("??")
			continue
		}
		fmt.Fprintf(&b, "%02X", p.bytes[i])
	}
	return b.String()
}

// Match reports whether data starts with the pattern.
func (p Pattern) Match(data []byte) bool {
	if len(data) < len(p.bytes) {
		return false
	}
	for i, e := range p.exact {
		if e && data[i] != p.bytes[i] {
			return false
		}
	}
	return true
}

// Find returns the offsets of up to limit matches in data, all of them when limit <= 0.
func (p Pattern) Find(data []byte, limit int) (offsets []int) {
	n := len(p.bytes)
	if n == 0 || len(data) < n {
		return
	}
	last := len(data) - n
	if p.anchor < 0 {
		for i := 0; i <= last && (limit <= 0 || len(offsets) < limit); i++ {
			offsets = append(offsets, i)
		}
		return
	}
	a := p.bytes[p.anchor]
	for i := 0; i <= last; {
		j := bytes.IndexByte(data[i+p.anchor:last+p.anchor+1], a)
		if j < 0 {
			break
		}
		i += j
		if p.Match(data[i:]) {
			offsets = append(offsets, i)
			if limit > 0 && len(offsets) >= limit {
				break
			}
		}
		i++
	}
	return
}
