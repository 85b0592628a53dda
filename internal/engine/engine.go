// Package engine is the boundary front ends use to capture and identify.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/keyprint/internal/capture"
	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/match"
)

// ErrNoActiveSession is returned by EndSession when no session was started.
var ErrNoActiveSession = errors.New("no active capture session")

// Engine owns one reusable capture session. Key events outside a session are
// ignored. Extraction runs only after the session is closed, so it never
// overlaps with capture.
type Engine struct {
	mu      sync.Mutex
	session *capture.Session
	active  bool
	log     logrus.FieldLogger
}

// New returns an engine that logs through log.
func New(log logrus.FieldLogger) *Engine {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Engine{session: capture.NewSession(), log: log}
}

// StartSession clears any previous data and begins a new session.
func (e *Engine) StartSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Clear()
	e.active = true
}

// Active reports whether a session is open.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// OnKeyDown records a raw key press.
func (e *Engine) OnKeyDown(key string, ts float64) {
	e.record(key, ts, capture.KeyDown)
}

// OnKeyUp records a raw key release.
func (e *Engine) OnKeyUp(key string, ts float64) {
	e.record(key, ts, capture.KeyUp)
}

func (e *Engine) record(key string, ts float64, kind capture.Kind) {
	id := capture.Normalize(key)
	if id == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	if kind == capture.KeyDown {
		e.session.OnKeyDown(id, ts)
		return
	}
	e.session.OnKeyUp(id, ts)
}

// Handler adapts the engine to capture.Run. Keys arriving through it are
// already canonical.
func (e *Engine) Handler() capture.Handler {
	return handler{e}
}

type handler struct{ e *Engine }

func (h handler) OnKeyDown(id string, ts float64) { h.e.record(id, ts, capture.KeyDown) }
func (h handler) OnKeyUp(id string, ts float64)   { h.e.record(id, ts, capture.KeyUp) }

// EndSession closes the session and extracts its features. The session is
// cleared afterwards either way.
func (e *Engine) EndSession() (features.FeatureVector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return features.FeatureVector{}, ErrNoActiveSession
	}
	e.active = false
	defer e.session.Clear()

	repeats, strays := e.session.Anomalies()
	entry := e.log.WithFields(logrus.Fields{
		"events":  e.session.Len(),
		"pending": e.session.Pending(),
	})
	if repeats > 0 || strays > 0 {
		entry.WithFields(logrus.Fields{"repeats": repeats, "strays": strays}).Debug("absorbed capture anomalies")
	}
	fv, err := features.Extract(e.session)
	if err != nil {
		entry.WithError(err).Debug("session rejected")
		return features.FeatureVector{}, err
	}
	entry.WithField("observed", fv.Observed()).Debug("session extracted")
	return fv, nil
}

// Identify runs m against ref and logs the decision.
func (e *Engine) Identify(m match.Matcher, ref match.Reference, query features.FeatureVector) (match.Result, error) {
	res, err := m.Identify(ref, query)
	if err != nil && !errors.Is(err, match.ErrAmbiguousResult) {
		return res, fmt.Errorf("failed to identify: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"winner":     res.Winner,
		"tie_group":  res.TieGroup,
		"outcome":    res.Outcome,
		"confidence": res.Confidence,
	}).Info("identification finished")
	return res, err
}
