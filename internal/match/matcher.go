// Package match decides which registered user typed a sample.
package match

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/verte-zerg/keyprint/internal/features"
)

var (
	// ErrNotEnoughUsers is returned when fewer than two users are registered.
	ErrNotEnoughUsers = fmt.Errorf("%w: not enough reference users", features.ErrInsufficientData)
	// ErrNoComparableFeatures is returned when no label could be compared.
	ErrNoComparableFeatures = fmt.Errorf("%w: no comparable features", features.ErrInsufficientData)
	// ErrNoSignature is returned when a registered user has no samples.
	ErrNoSignature = errors.New("no signature")
	// ErrAmbiguousResult is returned with the result when four or more users tie.
	ErrAmbiguousResult = errors.New("ambiguous result")
)

// Kind names a matcher implementation.
type Kind string

// Matcher kinds.
const (
	KindVote  Kind = "vote"
	KindModel Kind = "model"
)

// Outcome classifies a Result.
type Outcome string

// Outcomes.
const (
	// OutcomeIdentified means a single user won.
	OutcomeIdentified Outcome = "identified"
	// OutcomeProbable means two or three users share the top score.
	OutcomeProbable Outcome = "probable"
	// OutcomeAmbiguous means four or more users share the top score.
	OutcomeAmbiguous Outcome = "ambiguous"
	// OutcomeLowConfidence means the model's best guess is below the threshold.
	OutcomeLowConfidence Outcome = "low-confidence"
)

// Result is the decision for one identification attempt.
type Result struct {
	Winner string
	// TieGroup lists the users with the top score in enumeration order.
	TieGroup []string
	Outcome  Outcome
	// Votes per user and the number of labels that cast a vote. Vote matcher only.
	Votes map[string]int
	Cast  int
	// Confidence is the winner's share of cast votes, or the model probability.
	Confidence float64
	// Probabilities per user. Model matcher only.
	Probabilities map[string]float64
}

// Reference is the read-only view of registered users a Matcher compares against.
type Reference interface {
	Users() iter.Seq[string]
	Signature(userID string) (features.FeatureVector, error)
	Samples(userID string) ([]features.FeatureVector, error)
}

// Matcher identifies the user closest to a query vector.
type Matcher interface {
	Identify(ref Reference, query features.FeatureVector) (Result, error)
}

// Options configure matcher construction.
type Options struct {
	TiePolicy     TiePolicy
	MinConfidence float64
	// NewClassifier overrides the classifier used by the model matcher.
	NewClassifier func() Classifier
}

// New returns the matcher for kind.
func New(kind Kind, opts Options) (Matcher, error) {
	switch kind {
	case KindVote, "":
		policy := opts.TiePolicy
		if policy == "" {
			policy = TieAll
		}
		if policy != TieAll && policy != TieFirst {
			return nil, fmt.Errorf("unknown tie policy %q", policy)
		}
		return &VoteMatcher{TiePolicy: policy}, nil
	case KindModel:
		newClassifier := opts.NewClassifier
		if newClassifier == nil {
			newClassifier = func() Classifier { return &CentroidClassifier{} }
		}
		return &ModelMatcher{NewClassifier: newClassifier, MinConfidence: opts.MinConfidence}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", kind)
	}
}

func referenceUsers(ref Reference) ([]string, error) {
	users := slices.Collect(ref.Users())
	if len(users) < 2 {
		return nil, fmt.Errorf("%w: have %d, need 2", ErrNotEnoughUsers, len(users))
	}
	return users, nil
}

func groupOutcome(size int) Outcome {
	switch {
	case size <= 1:
		return OutcomeIdentified
	case size <= 3:
		return OutcomeProbable
	default:
		return OutcomeAmbiguous
	}
}
