package configtree

import (
	"fmt"
	"strconv"
	"strings"
)

// Escape encodes every byte outside [A-Za-z0-9_-] as "!HH" (uppercase hex),
// and every literal "!" as "!21" so the encoding is self-delimiting
// (SPEC_FULL.md §4.1 "Safe wrappers").
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "!%02X", c)
	}
	return b.String()
}

// Unescape is the inverse of Escape. It rejects a "!" not followed by two
// valid hex digits (SPEC_FULL.md §8 round-trip law).
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '!' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("configtree: truncated escape sequence at offset %d", i)
		}
		hex := s[i+1 : i+3]
		v, err := strconv.ParseUint(hex, 16, 8)
		if err != nil {
			return "", fmt.Errorf("configtree: invalid escape sequence %q at offset %d: %w", "!"+hex, i, err)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	default:
		return false
	}
}
