// Package profile keeps registered users' feature samples and signatures.
package profile

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/verte-zerg/keyprint/internal/features"
)

// ErrUnknownUser is returned for a user with no registered samples.
var ErrUnknownUser = errors.New("unknown user")

// Store holds feature samples per user. Users are enumerated in registration
// order. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	order   []string
	samples map[string][]features.FeatureVector
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{samples: map[string][]features.FeatureVector{}}
}

// AddSample appends a copy of fv for userID, registering the user if needed.
func (s *Store) AddSample(userID string, fv features.FeatureVector) error {
	if userID == "" {
		return errors.New("user id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.samples[userID]; !ok {
		s.order = append(s.order, userID)
	}
	s.samples[userID] = append(s.samples[userID], fv.Clone())
	return nil
}

// Signature returns the per-label average of all samples of userID.
func (s *Store) Signature(userID string) (features.FeatureVector, error) {
	samples, err := s.Samples(userID)
	if err != nil {
		return features.FeatureVector{}, err
	}
	return features.Average(samples)
}

// Samples returns deep copies of the samples of userID.
func (s *Store) Samples(userID string) ([]features.FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	samples, ok := s.samples[userID]
	if !ok || len(samples) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	out := make([]features.FeatureVector, len(samples))
	for i, fv := range samples {
		out[i] = fv.Clone()
	}
	return out, nil
}

// Users returns the registered user ids. The sequence can be ranged over
// more than once; each pass sees the users registered at its start.
func (s *Store) Users() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.RLock()
		order := slices.Clone(s.order)
		s.mu.RUnlock()
		for _, id := range order {
			if !yield(id) {
				return
			}
		}
	}
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Remove deletes a user and all their samples.
func (s *Store) Remove(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.samples[userID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	delete(s.samples, userID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == userID })
	return nil
}
