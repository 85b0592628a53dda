package capture

import (
	"strings"
	"unicode/utf8"
)

// Transcript passes events through to a Handler and keeps the text spelled
// by the key presses. Backspace removes the last character.
type Transcript struct {
	next Handler
	text []rune
}

// NewTranscript wraps next.
func NewTranscript(next Handler) *Transcript {
	return &Transcript{next: next}
}

// OnKeyDown implements Handler.
func (t *Transcript) OnKeyDown(id string, ts float64) {
	switch {
	case id == Space:
		t.text = append(t.text, ' ')
	case strings.EqualFold(id, "backspace"):
		if len(t.text) > 0 {
			t.text = t.text[:len(t.text)-1]
		}
	case utf8.RuneCountInString(id) == 1:
		r, _ := utf8.DecodeRuneInString(id)
		t.text = append(t.text, r)
	}
	t.next.OnKeyDown(id, ts)
}

// OnKeyUp implements Handler.
func (t *Transcript) OnKeyUp(id string, ts float64) {
	t.next.OnKeyUp(id, ts)
}

// Text returns the text typed so far.
func (t *Transcript) Text() string {
	return string(t.text)
}
