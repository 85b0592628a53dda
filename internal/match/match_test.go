package match

import (
	"errors"
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/profile"
)

func vector(dwellE, th float64) features.FeatureVector {
	fv := features.NewFeatureVector()
	fv.Dwell[features.KeyE] = dwellE
	fv.Digraph[features.DigraphTH] = th
	return fv
}

func uniform(v float64) features.FeatureVector {
	fv := features.NewFeatureVector()
	for _, l := range features.VotingLabels() {
		fv.Set(l, v)
	}
	return fv
}

func mustAdd(t *testing.T, st *profile.Store, user string, samples ...features.FeatureVector) {
	t.Helper()
	for _, s := range samples {
		require.NoError(t, st.AddSample(user, s))
	}
}

func TestVoteMatcherEndToEnd(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "alice", vector(0.078, 0.245), vector(0.080, 0.250), vector(0.082, 0.255))
	mustAdd(t, st, "bob", vector(0.095, 0.300), vector(0.095, 0.300), vector(0.095, 0.300))

	m, err := New(KindVote, Options{})
	require.NoError(t, err)
	res, err := m.Identify(st, vector(0.082, 0.240))
	require.NoError(t, err)

	assert.Equal(t, "alice", res.Winner)
	assert.Equal(t, []string{"alice"}, res.TieGroup)
	assert.Equal(t, OutcomeIdentified, res.Outcome)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 0}, res.Votes)
	assert.Equal(t, 2, res.Cast)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestVoteMatcherIdenticalSignaturesTie(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "alice", uniform(0.1))
	mustAdd(t, st, "bob", uniform(0.3))
	mustAdd(t, st, "carol", uniform(0.3))

	m, err := New(KindVote, Options{TiePolicy: TieAll})
	require.NoError(t, err)
	for _, q := range []float64{0.25, 0.5, 0.9} {
		res, err := m.Identify(st, uniform(q))
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol"}, res.TieGroup)
		assert.Equal(t, OutcomeProbable, res.Outcome)
		assert.Equal(t, "bob", res.Winner)
	}
}

func TestVoteMatcherTieFirstPolicy(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "bob", uniform(0.3))
	mustAdd(t, st, "carol", uniform(0.3))

	m, err := New(KindVote, Options{TiePolicy: TieFirst})
	require.NoError(t, err)
	res, err := m.Identify(st, uniform(0.2))
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, res.TieGroup)
	assert.Equal(t, 27, res.Votes["bob"])
	assert.Equal(t, 0, res.Votes["carol"])
}

func TestVoteMatcherThreeWayTie(t *testing.T) {
	labels := features.VotingLabels()
	require.Len(t, labels, 27)
	st := profile.NewStore()
	for i, user := range []string{"ann", "ben", "cid"} {
		sig := uniform(0.5)
		for _, l := range labels[i*9 : (i+1)*9] {
			sig.Set(l, 0.1)
		}
		mustAdd(t, st, user, sig)
	}

	m, err := New(KindVote, Options{})
	require.NoError(t, err)
	res, err := m.Identify(st, uniform(0.1))
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "ben", "cid"}, res.TieGroup)
	assert.Equal(t, OutcomeProbable, res.Outcome)
	assert.Equal(t, map[string]int{"ann": 9, "ben": 9, "cid": 9}, res.Votes)
}

func TestVoteMatcherAmbiguous(t *testing.T) {
	st := profile.NewStore()
	for _, u := range []string{"a1", "a2", "a3", "a4"} {
		mustAdd(t, st, u, uniform(0.2))
	}
	m, err := New(KindVote, Options{})
	require.NoError(t, err)
	res, err := m.Identify(st, uniform(0.3))
	require.ErrorIs(t, err, ErrAmbiguousResult)
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	assert.Len(t, res.TieGroup, 4)
}

func TestVoteMatcherSkipsUnobservedLabels(t *testing.T) {
	st := profile.NewStore()
	// bob never observed dwell e; alice is the only candidate for it.
	alice := vector(0.5, 0.5)
	bob := features.NewFeatureVector()
	bob.Digraph[features.DigraphTH] = 0.21
	mustAdd(t, st, "alice", alice)
	mustAdd(t, st, "bob", bob)

	q := features.NewFeatureVector()
	q.Dwell[features.KeyE] = 0.1
	q.Digraph[features.DigraphTH] = 0.2
	q.Trigraph[features.TrigraphTHE] = 0.4 // nobody observed it

	m, err := New(KindVote, Options{})
	require.NoError(t, err)
	res, err := m.Identify(st, q)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cast)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, res.Votes)

	_, err = m.Identify(st, features.NewFeatureVector())
	assert.ErrorIs(t, err, ErrNoComparableFeatures)
	assert.ErrorIs(t, err, features.ErrInsufficientData)
}

func TestVoteMatcherDeterministic(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "alice", vector(0.08, 0.25))
	mustAdd(t, st, "bob", vector(0.09, 0.22))
	mustAdd(t, st, "carol", vector(0.07, 0.31))

	m, err := New(KindVote, Options{})
	require.NoError(t, err)
	first, err := m.Identify(st, vector(0.085, 0.27))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := m.Identify(st, vector(0.085, 0.27))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMatchersNeedTwoUsers(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "alice", vector(0.08, 0.25))
	for _, kind := range []Kind{KindVote, KindModel} {
		m, err := New(kind, Options{})
		require.NoError(t, err)
		_, err = m.Identify(st, vector(0.08, 0.25))
		assert.ErrorIs(t, err, ErrNotEnoughUsers)
		assert.ErrorIs(t, err, features.ErrInsufficientData)
	}
}

type emptyUserRef struct{}

func (emptyUserRef) Users() iter.Seq[string] { return slices.Values([]string{"alice", "ghost"}) }

func (emptyUserRef) Signature(id string) (features.FeatureVector, error) {
	if id == "ghost" {
		return features.FeatureVector{}, errors.New("zero samples")
	}
	return vector(0.1, 0.2), nil
}

func (r emptyUserRef) Samples(id string) ([]features.FeatureVector, error) {
	sig, err := r.Signature(id)
	if err != nil {
		return nil, err
	}
	return []features.FeatureVector{sig}, nil
}

func TestMatchersReportMissingSignature(t *testing.T) {
	for _, kind := range []Kind{KindVote, KindModel} {
		m, err := New(kind, Options{})
		require.NoError(t, err)
		_, err = m.Identify(emptyUserRef{}, vector(0.1, 0.2))
		assert.ErrorIs(t, err, ErrNoSignature)
	}
}

func TestNewRejectsUnknownKinds(t *testing.T) {
	_, err := New("forest", Options{})
	assert.Error(t, err)
	_, err = New(KindVote, Options{TiePolicy: "random"})
	assert.Error(t, err)
}

func TestModelMatcher(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "alice", vector(0.078, 0.245), vector(0.080, 0.250), vector(0.082, 0.255))
	mustAdd(t, st, "bob", vector(0.093, 0.298), vector(0.095, 0.300), vector(0.097, 0.302))

	m, err := New(KindModel, Options{MinConfidence: 0.5})
	require.NoError(t, err)
	res, err := m.Identify(st, vector(0.081, 0.248))
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Winner)
	assert.Equal(t, OutcomeIdentified, res.Outcome)
	assert.Greater(t, res.Probabilities["alice"], res.Probabilities["bob"])
	assert.InDelta(t, 1.0, res.Probabilities["alice"]+res.Probabilities["bob"], 1e-9)

	strict, err := New(KindModel, Options{MinConfidence: 1.1})
	require.NoError(t, err)
	res, err = strict.Identify(st, vector(0.081, 0.248))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLowConfidence, res.Outcome)
}

type stubClassifier struct{ fitted TrainingSet }

func (s *stubClassifier) Fit(set TrainingSet) error {
	s.fitted = set
	return nil
}

func (s *stubClassifier) Predict(features.Vector) (Prediction, error) {
	last := s.fitted.Users[len(s.fitted.Users)-1]
	return Prediction{User: last, Confidence: 0.9, Probabilities: map[string]float64{last: 0.9}}, nil
}

func TestModelMatcherUsesInjectedClassifier(t *testing.T) {
	st := profile.NewStore()
	mustAdd(t, st, "alice", vector(0.08, 0.25))
	mustAdd(t, st, "bob", vector(0.09, 0.3), vector(0.1, 0.3))

	stub := &stubClassifier{}
	m, err := New(KindModel, Options{NewClassifier: func() Classifier { return stub }})
	require.NoError(t, err)
	res, err := m.Identify(st, vector(0.08, 0.25))
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Winner)
	assert.Len(t, stub.fitted.Samples["bob"], 2)
	assert.Equal(t, 0.25, stub.fitted.Samples["alice"][0][features.DigraphLabel(features.DigraphTH)])
}
