// Package capture turns raw key events into per-session keystroke timings.
package capture

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Space is the canonical identifier for the space bar.
const Space = "space"

// Kind distinguishes key presses from key releases.
type Kind uint8

const (
	// KeyDown is a key press.
	KeyDown Kind = iota + 1
	// KeyUp is a key release.
	KeyUp
)

func (k Kind) String() string {
	switch k {
	case KeyDown:
		return "keydown"
	case KeyUp:
		return "keyup"
	default:
		return "unknown"
	}
}

// RawEvent is a key event as delivered by a capture source.
type RawEvent struct {
	Key  string
	Kind Kind
	// Time is a monotonic timestamp in seconds.
	Time float64
}

var folder = cases.Fold()

// Normalize maps a platform key symbol to its canonical identifier.
// Single letters are lowercased and any whitespace or space-bar symbol
// becomes "space". Every other key is passed through unmodified.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.TrimSpace(raw) == "" {
		return Space
	}
	folded := folder.String(raw)
	switch folded {
	case "space", "spacebar", "key_space":
		return Space
	}
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(folded)
		if unicode.IsLetter(r) {
			return string(unicode.ToLower(r))
		}
	}
	return raw
}

// IsStop reports whether an identifier is the key that ends a capture.
// The comparison ignores case.
func IsStop(id string) bool {
	switch folder.String(id) {
	case "esc", "escape":
		return true
	}
	return false
}
