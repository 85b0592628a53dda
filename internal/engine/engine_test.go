package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/capture"
	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/match"
	"github.com/verte-zerg/keyprint/internal/profile"
)

func typeInto(e *Engine, text string, start, hold, step float64) {
	t := start
	for _, r := range text {
		e.OnKeyDown(string(r), t)
		e.OnKeyUp(string(r), t+hold)
		t += step
	}
}

func TestEngineSessionLifecycle(t *testing.T) {
	e := New(nil)
	_, err := e.EndSession()
	require.ErrorIs(t, err, ErrNoActiveSession)

	// Ignored: no session yet.
	typeInto(e, "the rain", 0, 0.05, 0.1)

	e.StartSession()
	assert.True(t, e.Active())
	typeInto(e, "The rain in", 1, 0.08, 0.15)
	fv, err := e.EndSession()
	require.NoError(t, err)
	assert.False(t, e.Active())
	assert.InDelta(t, 0.08, fv.Dwell[features.KeyT], 1e-9)

	e.StartSession()
	typeInto(e, "short", 5, 0.05, 0.1)
	_, err = e.EndSession()
	assert.ErrorIs(t, err, features.ErrInsufficientData)
}

func TestEngineRunsCaptureLoop(t *testing.T) {
	e := New(nil)
	e.StartSession()

	ch := make(chan capture.RawEvent)
	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = capture.Run(context.Background(), ch, e.Handler())
	}()
	ts := 0.0
	for _, r := range "and then are" {
		ch <- capture.RawEvent{Key: string(r), Kind: capture.KeyDown, Time: ts}
		ch <- capture.RawEvent{Key: string(r), Kind: capture.KeyUp, Time: ts + 0.06}
		ts += 0.12
	}
	ch <- capture.RawEvent{Key: "Escape", Kind: capture.KeyDown, Time: ts}
	wg.Wait()
	require.NoError(t, runErr)

	fv, err := e.EndSession()
	require.NoError(t, err)
	assert.Contains(t, fv.Trigraph, features.TrigraphAND)
	assert.Contains(t, fv.Trigraph, features.TrigraphARE)
}

func TestEngineIdentify(t *testing.T) {
	st := profile.NewStore()
	a := features.NewFeatureVector()
	a.Dwell[features.KeyE] = 0.08
	b := features.NewFeatureVector()
	b.Dwell[features.KeyE] = 0.12
	require.NoError(t, st.AddSample("alice", a))
	require.NoError(t, st.AddSample("bob", b))

	m, err := match.New(match.KindVote, match.Options{})
	require.NoError(t, err)
	res, err := New(nil).Identify(m, st, a)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Winner)
}
