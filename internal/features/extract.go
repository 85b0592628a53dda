package features

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/keyprint/internal/capture"
)

// MinEvents is the number of completed key events a sample needs.
const MinEvents = 10

// ErrInsufficientData reports that there is too little data for a decision.
var ErrInsufficientData = errors.New("insufficient data")

type accumulator struct {
	sum   float64
	count int
}

func (a *accumulator) add(v float64) {
	a.sum += v
	a.count++
}

func (a accumulator) mean() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	return a.sum / float64(a.count), true
}

// Extract computes dwell, digraph, trigraph and typing-rate features from a
// finished session. Sequences are windowed over completed events in release order.
func Extract(s *capture.Session) (FeatureVector, error) {
	events := s.Completed()
	if len(events) < MinEvents {
		return FeatureVector{}, fmt.Errorf("%w: %d completed key events, need %d", ErrInsufficientData, len(events), MinEvents)
	}
	rate, ok := s.TypingRate()
	if !ok {
		return FeatureVector{}, fmt.Errorf("%w: session has no duration", ErrInsufficientData)
	}
	return extractEvents(events, rate), nil
}

func extractEvents(events []capture.Event, rate float64) FeatureVector {
	var (
		dwell    [numKeys]accumulator
		digraph  [numDigraphs]accumulator
		trigraph [numTrigraphs]accumulator
	)

	for i, ev := range events {
		if k, ok := LookupKey(ev.ID); ok {
			dwell[k].add(ev.Dwell())
		}
		if i+1 < len(events) {
			second := events[i+1]
			if d, ok := LookupDigraph(ev.ID, second.ID); ok {
				digraph[d].add(second.Release - ev.Press)
			}
		}
		if i+2 < len(events) {
			second, third := events[i+1], events[i+2]
			if t, ok := LookupTrigraph(ev.ID, second.ID, third.ID); ok {
				trigraph[t].add(third.Release - ev.Press)
			}
		}
	}

	fv := NewFeatureVector()
	for k, acc := range dwell {
		if m, ok := acc.mean(); ok {
			fv.Dwell[Key(k)] = m
		}
	}
	for d, acc := range digraph {
		if m, ok := acc.mean(); ok {
			fv.Digraph[Digraph(d)] = m
		}
	}
	for t, acc := range trigraph {
		if m, ok := acc.mean(); ok {
			fv.Trigraph[Trigraph(t)] = m
		}
	}
	fv.TypingRate = rate
	return fv
}

// Average returns the per-label mean of samples. Each label is averaged over
// the samples that observed it; a label no sample observed stays unobserved.
func Average(samples []FeatureVector) (FeatureVector, error) {
	if len(samples) == 0 {
		return FeatureVector{}, fmt.Errorf("%w: no samples to average", ErrInsufficientData)
	}
	var acc [VectorLen]accumulator
	for _, s := range samples {
		v := s.Vector()
		for i, val := range v {
			if val != 0 {
				acc[i].add(val)
			}
		}
	}
	var out Vector
	for i := range acc {
		if m, ok := acc[i].mean(); ok {
			out[i] = m
		}
	}
	return FromVector(out), nil
}
