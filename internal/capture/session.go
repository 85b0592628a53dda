package capture

// Event is one key stroke. Release is zero while the key is still held.
type Event struct {
	ID      string
	Press   float64
	Release float64
}

// Dwell returns how long the key was held.
func (e Event) Dwell() float64 {
	return e.Release - e.Press
}

// Session buffers the key events of one typing sample.
//
// Completed events are kept in release order. A Session is owned by a single
// capture flow and is not safe for concurrent use.
type Session struct {
	pending   map[string]Event
	completed []Event

	started bool
	ended   bool
	start   float64
	end     float64
	last    float64
	seen    bool

	repeats int
	strays  int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{pending: map[string]Event{}}
}

// OnKeyDown opens a pending event for id. Presses of a key that is already
// held are ignored.
func (s *Session) OnKeyDown(id string, ts float64) {
	ts = s.clamp(ts)
	if !s.started {
		s.started = true
		s.start = ts
	}
	if _, ok := s.pending[id]; ok {
		s.repeats++
		return
	}
	s.pending[id] = Event{ID: id, Press: ts}
}

// OnKeyUp closes the pending event for id. Releases without a matching press
// are dropped.
func (s *Session) OnKeyUp(id string, ts float64) {
	ts = s.clamp(ts)
	ev, ok := s.pending[id]
	if !ok {
		s.strays++
		return
	}
	delete(s.pending, id)
	ev.Release = ts
	s.completed = append(s.completed, ev)
	s.ended = true
	s.end = ts
}

// clamp keeps timestamps non-decreasing so no duration can go negative.
func (s *Session) clamp(ts float64) float64 {
	if s.seen && ts < s.last {
		return s.last
	}
	s.seen = true
	s.last = ts
	return ts
}

// Completed returns a copy of the completed events in release order.
func (s *Session) Completed() []Event {
	out := make([]Event, len(s.completed))
	copy(out, s.completed)
	return out
}

// Len returns the number of completed events.
func (s *Session) Len() int {
	return len(s.completed)
}

// Pending returns the number of keys currently held.
func (s *Session) Pending() int {
	return len(s.pending)
}

// Anomalies returns how many repeated presses and stray releases were absorbed.
func (s *Session) Anomalies() (repeats, strays int) {
	return s.repeats, s.strays
}

// Duration returns the time from the first press to the last release.
func (s *Session) Duration() (float64, bool) {
	if !s.started || !s.ended {
		return 0, false
	}
	return s.end - s.start, true
}

// TypingRate returns seconds per completed character. ok is false when the
// session holds no completed events.
func (s *Session) TypingRate() (rate float64, ok bool) {
	d, ok := s.Duration()
	if !ok || len(s.completed) == 0 {
		return 0, false
	}
	return d / float64(len(s.completed)), true
}

// Clear resets the session for reuse.
func (s *Session) Clear() {
	clear(s.pending)
	s.completed = s.completed[:0]
	s.started = false
	s.ended = false
	s.start = 0
	s.end = 0
	s.last = 0
	s.seen = false
	s.repeats = 0
	s.strays = 0
}
