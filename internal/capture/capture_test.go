package capture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"A":      "a",
		"e":      "e",
		" ":      Space,
		"\t":     Space,
		"Space":  Space,
		"space":  Space,
		"Shift":  "Shift",
		"Escape": "Escape",
		",":      ",",
		"F1":     "F1",
		"É":      "é",
		"":       "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, Normalize(raw), "raw %q", raw)
	}
	assert.True(t, IsStop(Normalize("Esc")))
	assert.True(t, IsStop(Normalize("Escape")))
	assert.True(t, IsStop("esc"))
	assert.False(t, IsStop("e"))
}

func TestSessionDebouncesRepeatedPress(t *testing.T) {
	s := NewSession()
	s.OnKeyDown("a", 1.0)
	s.OnKeyDown("a", 1.2)
	s.OnKeyUp("a", 1.5)

	events := s.Completed()
	require.Len(t, events, 1)
	assert.InDelta(t, 0.5, events[0].Dwell(), 1e-9)
	repeats, strays := s.Anomalies()
	assert.Equal(t, 1, repeats)
	assert.Equal(t, 0, strays)
}

func TestSessionDropsStrayRelease(t *testing.T) {
	s := NewSession()
	s.OnKeyUp("x", 0.5)
	s.OnKeyDown("a", 1.0)
	s.OnKeyUp("a", 1.1)

	require.Equal(t, 1, s.Len())
	_, strays := s.Anomalies()
	assert.Equal(t, 1, strays)
}

func TestSessionKeepsReleaseOrder(t *testing.T) {
	s := NewSession()
	s.OnKeyDown("t", 0.00)
	s.OnKeyDown("h", 0.05)
	s.OnKeyUp("h", 0.10)
	s.OnKeyUp("t", 0.15)

	events := s.Completed()
	require.Len(t, events, 2)
	assert.Equal(t, "h", events[0].ID)
	assert.Equal(t, "t", events[1].ID)
	assert.Equal(t, 0, s.Pending())
}

func TestSessionTypingRate(t *testing.T) {
	s := NewSession()
	_, ok := s.TypingRate()
	assert.False(t, ok)

	s.OnKeyDown("a", 10.0)
	s.OnKeyUp("a", 10.1)
	s.OnKeyDown("b", 10.2)
	s.OnKeyUp("b", 11.0)

	rate, ok := s.TypingRate()
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestSessionClampsBackwardsTimestamps(t *testing.T) {
	s := NewSession()
	s.OnKeyDown("a", 2.0)
	s.OnKeyUp("a", 1.0)

	events := s.Completed()
	require.Len(t, events, 1)
	assert.GreaterOrEqual(t, events[0].Dwell(), 0.0)
}

func TestSessionClearAllowsReuse(t *testing.T) {
	s := NewSession()
	s.OnKeyDown("a", 5.0)
	s.OnKeyDown("b", 5.1)
	s.OnKeyUp("a", 5.2)
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Pending())
	_, ok := s.Duration()
	assert.False(t, ok)

	s.OnKeyDown("c", 1.0)
	s.OnKeyUp("c", 1.1)
	assert.Equal(t, 1, s.Len())
}

func TestRunStopsOnEscape(t *testing.T) {
	ch := make(chan RawEvent, 8)
	ch <- RawEvent{Key: "A", Kind: KeyDown, Time: 1}
	ch <- RawEvent{Key: "A", Kind: KeyUp, Time: 1.1}
	ch <- RawEvent{Key: "Escape", Kind: KeyDown, Time: 1.2}
	ch <- RawEvent{Key: "b", Kind: KeyDown, Time: 1.3}
	ch <- RawEvent{Key: "b", Kind: KeyUp, Time: 1.4}

	s := NewSession()
	require.NoError(t, Run(context.Background(), ch, s))
	events := s.Completed()
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].ID)
}

func TestRunIgnoresStopKeyRelease(t *testing.T) {
	ch := make(chan RawEvent, 8)
	ch <- RawEvent{Key: "esc", Kind: KeyUp, Time: 0.9}
	ch <- RawEvent{Key: "t", Kind: KeyDown, Time: 1}
	ch <- RawEvent{Key: "t", Kind: KeyUp, Time: 1.1}
	ch <- RawEvent{Key: "Escape", Kind: KeyDown, Time: 1.2}
	ch <- RawEvent{Key: "h", Kind: KeyDown, Time: 1.3}

	s := NewSession()
	require.NoError(t, Run(context.Background(), ch, s))
	events := s.Completed()
	require.Len(t, events, 1)
	assert.Equal(t, "t", events[0].ID)
	assert.Equal(t, 0, s.Pending())
}

func TestRunReturnsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Run(ctx, make(chan RawEvent), NewSession())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseEventLog(t *testing.T) {
	input := `[
		{"key": "H", "type": "keydown", "time": 1000},
		{"key": "H", "type": "keyup", "time": 1080},
		{"key": " ", "type": "keydown", "time": 1100},
		{"key": " ", "type": "keypress", "time": 1110},
		{"key": " ", "type": "keyup", "time": 1150}
	]`
	events, err := ParseEventLog(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, KeyDown, events[0].Kind)
	assert.InDelta(t, 1.0, events[0].Time, 1e-9)
	assert.InDelta(t, 1.08, events[1].Time, 1e-9)

	s := NewSession()
	Replay(events, s)
	completed := s.Completed()
	require.Len(t, completed, 2)
	assert.Equal(t, "h", completed[0].ID)
	assert.Equal(t, Space, completed[1].ID)
}

func TestParseEventLogRejectsMalformed(t *testing.T) {
	_, err := ParseEventLog(strings.NewReader(`[{"key": "a", "time": 10}]`))
	assert.Error(t, err)

	_, err = ParseEventLog(strings.NewReader(`{"key": "a"}`))
	assert.Error(t, err)

	_, err = ParseEventLog(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestTranscriptSpellsPresses(t *testing.T) {
	s := NewSession()
	tr := NewTranscript(s)
	ch := make(chan RawEvent, 16)
	for _, ev := range []RawEvent{
		{Key: "T", Kind: KeyDown, Time: 1}, {Key: "T", Kind: KeyUp, Time: 1.1},
		{Key: "x", Kind: KeyDown, Time: 1.2}, {Key: "x", Kind: KeyUp, Time: 1.3},
		{Key: "backspace", Kind: KeyDown, Time: 1.4}, {Key: "backspace", Kind: KeyUp, Time: 1.5},
		{Key: "h", Kind: KeyDown, Time: 1.6}, {Key: "h", Kind: KeyUp, Time: 1.7},
		{Key: "shift", Kind: KeyDown, Time: 1.8}, {Key: "shift", Kind: KeyUp, Time: 1.9},
		{Key: " ", Kind: KeyDown, Time: 2.0}, {Key: " ", Kind: KeyUp, Time: 2.1},
		{Key: "esc", Kind: KeyDown, Time: 2.2},
	} {
		ch <- ev
	}
	require.NoError(t, Run(context.Background(), ch, tr))
	assert.Equal(t, "th ", tr.Text())
	assert.Equal(t, 6, s.Len())
}
