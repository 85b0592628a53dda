package match

import (
	"errors"
	"fmt"
	"math"

	"github.com/verte-zerg/keyprint/internal/features"
)

// TrainingSet holds per-user samples in vector form. Users keeps the
// enumeration order.
type TrainingSet struct {
	Users   []string
	Samples map[string][]features.Vector
}

// Prediction is a classifier's answer for one query.
type Prediction struct {
	User          string
	Confidence    float64
	Probabilities map[string]float64
}

// Classifier is a trained model over the fixed-order vector form.
type Classifier interface {
	Fit(set TrainingSet) error
	Predict(v features.Vector) (Prediction, error)
}

// ModelMatcher delegates the decision to a Classifier trained on every
// registered sample.
type ModelMatcher struct {
	NewClassifier func() Classifier
	MinConfidence float64
}

// Identify implements Matcher.
func (m *ModelMatcher) Identify(ref Reference, query features.FeatureVector) (Result, error) {
	users, err := referenceUsers(ref)
	if err != nil {
		return Result{}, err
	}
	set := TrainingSet{Users: users, Samples: make(map[string][]features.Vector, len(users))}
	for _, u := range users {
		samples, err := ref.Samples(u)
		if err != nil {
			return Result{}, fmt.Errorf("%w for %q: %w", ErrNoSignature, u, err)
		}
		vecs := make([]features.Vector, len(samples))
		for i, s := range samples {
			vecs[i] = s.Vector()
		}
		set.Samples[u] = vecs
	}

	clf := m.NewClassifier()
	if err := clf.Fit(set); err != nil {
		return Result{}, fmt.Errorf("failed to train classifier: %w", err)
	}
	pred, err := clf.Predict(query.Vector())
	if err != nil {
		return Result{}, fmt.Errorf("failed to predict: %w", err)
	}
	res := Result{
		Winner:        pred.User,
		TieGroup:      []string{pred.User},
		Outcome:       OutcomeIdentified,
		Confidence:    pred.Confidence,
		Probabilities: pred.Probabilities,
	}
	if pred.Confidence < m.MinConfidence {
		res.Outcome = OutcomeLowConfidence
	}
	return res, nil
}

// CentroidClassifier standardises every slot across the training samples and
// predicts the user whose mean sample is nearest. Probabilities are a softmax
// over negative distances.
type CentroidClassifier struct {
	users     []string
	mean      features.Vector
	scale     features.Vector
	centroids []features.Vector
}

// Fit implements Classifier.
func (c *CentroidClassifier) Fit(set TrainingSet) error {
	var n int
	var sum, sumSq features.Vector
	for _, u := range set.Users {
		for _, v := range set.Samples[u] {
			n++
			for i, x := range v {
				sum[i] += x
				sumSq[i] += x * x
			}
		}
	}
	if n == 0 || len(set.Users) < 2 {
		return errors.New("need samples from at least two users")
	}
	for i := range sum {
		c.mean[i] = sum[i] / float64(n)
		variance := sumSq[i]/float64(n) - c.mean[i]*c.mean[i]
		c.scale[i] = 1
		if variance > 1e-18 {
			c.scale[i] = math.Sqrt(variance)
		}
	}

	c.users = append(c.users[:0], set.Users...)
	c.centroids = make([]features.Vector, len(set.Users))
	for ui, u := range set.Users {
		samples := set.Samples[u]
		if len(samples) == 0 {
			return fmt.Errorf("user %q has no samples", u)
		}
		for _, v := range samples {
			s := c.standardise(v)
			for i := range s {
				c.centroids[ui][i] += s[i] / float64(len(samples))
			}
		}
	}
	return nil
}

// Predict implements Classifier.
func (c *CentroidClassifier) Predict(v features.Vector) (Prediction, error) {
	if len(c.centroids) == 0 {
		return Prediction{}, errors.New("classifier is not trained")
	}
	q := c.standardise(v)
	dists := make([]float64, len(c.centroids))
	best := 0
	for ui, centroid := range c.centroids {
		var d float64
		for i := range q {
			diff := q[i] - centroid[i]
			d += diff * diff
		}
		dists[ui] = math.Sqrt(d)
		if dists[ui] < dists[best] {
			best = ui
		}
	}

	var total float64
	weights := make([]float64, len(dists))
	for i, d := range dists {
		weights[i] = math.Exp(dists[best] - d)
		total += weights[i]
	}
	probs := make(map[string]float64, len(c.users))
	for i, u := range c.users {
		probs[u] = weights[i] / total
	}
	return Prediction{
		User:          c.users[best],
		Confidence:    probs[c.users[best]],
		Probabilities: probs,
	}, nil
}

func (c *CentroidClassifier) standardise(v features.Vector) features.Vector {
	var out features.Vector
	for i := range v {
		out[i] = (v[i] - c.mean[i]) / c.scale[i]
	}
	return out
}
