package match

import (
	"fmt"
	"math"

	"github.com/verte-zerg/keyprint/internal/features"
)

// TiePolicy decides who gets a label's vote when several users share the
// smallest difference.
type TiePolicy string

// Tie policies.
const (
	// TieAll gives the vote to every user at the minimum.
	TieAll TiePolicy = "all"
	// TieFirst gives the vote to the first such user in enumeration order.
	TieFirst TiePolicy = "first"
)

// VoteMatcher compares the query with every user's signature label by label.
// Each label votes for the user with the smallest absolute difference and the
// users with the most votes form the tie group.
type VoteMatcher struct {
	TiePolicy TiePolicy
}

// Identify implements Matcher. For four or more top scorers the full result
// is returned together with ErrAmbiguousResult.
func (m *VoteMatcher) Identify(ref Reference, query features.FeatureVector) (Result, error) {
	users, err := referenceUsers(ref)
	if err != nil {
		return Result{}, err
	}
	sigs := make([]features.FeatureVector, len(users))
	for i, u := range users {
		sig, err := ref.Signature(u)
		if err != nil {
			return Result{}, fmt.Errorf("%w for %q: %w", ErrNoSignature, u, err)
		}
		sigs[i] = sig
	}

	votes := make([]int, len(users))
	cast := 0
	nearest := make([]int, 0, len(users))
	for _, label := range features.VotingLabels() {
		q, ok := query.Value(label)
		if !ok {
			continue
		}
		nearest = nearest[:0]
		best := math.Inf(1)
		for i, sig := range sigs {
			v, ok := sig.Value(label)
			if !ok {
				continue
			}
			diff := math.Abs(q - v)
			switch {
			case diff < best:
				best = diff
				nearest = append(nearest[:0], i)
			case diff == best:
				nearest = append(nearest, i)
			}
		}
		if len(nearest) == 0 {
			continue
		}
		cast++
		if m.TiePolicy == TieFirst {
			votes[nearest[0]]++
			continue
		}
		for _, i := range nearest {
			votes[i]++
		}
	}

	top := 0
	for _, v := range votes {
		top = max(top, v)
	}
	if top == 0 {
		return Result{}, ErrNoComparableFeatures
	}

	res := Result{
		Votes:      make(map[string]int, len(users)),
		Cast:       cast,
		Confidence: float64(top) / float64(cast),
	}
	for i, u := range users {
		res.Votes[u] = votes[i]
		if votes[i] == top {
			res.TieGroup = append(res.TieGroup, u)
		}
	}
	res.Winner = res.TieGroup[0]
	res.Outcome = groupOutcome(len(res.TieGroup))
	if res.Outcome == OutcomeAmbiguous {
		return res, fmt.Errorf("%w: %d users tied with %d votes", ErrAmbiguousResult, len(res.TieGroup), top)
	}
	return res, nil
}
