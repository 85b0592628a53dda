package features

import (
	"fmt"
	"maps"
	"math"
)

// VectorLen is the number of slots in the fixed-order vector form.
const VectorLen = int(numKeys) + int(numDigraphs) + int(numTrigraphs) + 1

// Vector is the fixed-order numeric form of a FeatureVector: tracked keys,
// then digraphs, then trigraphs, then typing rate. Unobserved slots are 0.
type Vector [VectorLen]float64

// Label identifies one slot of the vector form.
type Label uint8

const labelTypingRate = Label(VectorLen - 1)

// DwellLabel returns the label of a key's dwell time.
func DwellLabel(k Key) Label { return Label(k) }

// DigraphLabel returns the label of a digraph latency.
func DigraphLabel(d Digraph) Label { return Label(int(numKeys) + int(d)) }

// TrigraphLabel returns the label of a trigraph latency.
func TrigraphLabel(t Trigraph) Label { return Label(int(numKeys) + int(numDigraphs) + int(t)) }

// TypingRateLabel returns the label of the typing rate slot.
func TypingRateLabel() Label { return labelTypingRate }

// VotingLabels returns every dwell, digraph and trigraph label in vector order.
func VotingLabels() []Label {
	out := make([]Label, 0, VectorLen-1)
	for l := Label(0); l < labelTypingRate; l++ {
		out = append(out, l)
	}
	return out
}

// Name returns the feature name used in records and CSV headers.
func (l Label) Name() string {
	switch {
	case l < Label(numKeys):
		return "dwell_" + Key(l).String()
	case l < Label(int(numKeys)+int(numDigraphs)):
		return "digraph_" + Digraph(int(l)-int(numKeys)).String()
	case l < labelTypingRate:
		return "trigraph_" + Trigraph(int(l)-int(numKeys)-int(numDigraphs)).String()
	case l == labelTypingRate:
		return "typing_rate"
	default:
		return "invalid"
	}
}

func (l Label) String() string {
	return l.Name()
}

var labelByName = func() map[string]Label {
	m := make(map[string]Label, VectorLen)
	for l := Label(0); int(l) < VectorLen; l++ {
		m[l.Name()] = l
	}
	return m
}()

// LabelByName resolves a feature name.
func LabelByName(name string) (Label, bool) {
	l, ok := labelByName[name]
	return l, ok
}

// Names returns all feature names in vector order.
func Names() []string {
	out := make([]string, VectorLen)
	for i := range out {
		out[i] = Label(i).Name()
	}
	return out
}

// FeatureVector holds averaged timings in seconds for one sample or signature.
// A label missing from its map is unobserved.
type FeatureVector struct {
	Dwell      map[Key]float64
	Digraph    map[Digraph]float64
	Trigraph   map[Trigraph]float64
	TypingRate float64
}

// NewFeatureVector returns an empty vector with allocated maps.
func NewFeatureVector() FeatureVector {
	return FeatureVector{
		Dwell:    map[Key]float64{},
		Digraph:  map[Digraph]float64{},
		Trigraph: map[Trigraph]float64{},
	}
}

// Clone returns a deep copy of fv.
func (fv FeatureVector) Clone() FeatureVector {
	out := FeatureVector{
		Dwell:      maps.Clone(fv.Dwell),
		Digraph:    maps.Clone(fv.Digraph),
		Trigraph:   maps.Clone(fv.Trigraph),
		TypingRate: fv.TypingRate,
	}
	if out.Dwell == nil {
		out.Dwell = map[Key]float64{}
	}
	if out.Digraph == nil {
		out.Digraph = map[Digraph]float64{}
	}
	if out.Trigraph == nil {
		out.Trigraph = map[Trigraph]float64{}
	}
	return out
}

// Value returns the value of a label and whether it was observed.
func (fv FeatureVector) Value(l Label) (float64, bool) {
	switch {
	case l < Label(numKeys):
		v, ok := fv.Dwell[Key(l)]
		return v, ok
	case l < Label(int(numKeys)+int(numDigraphs)):
		v, ok := fv.Digraph[Digraph(int(l)-int(numKeys))]
		return v, ok
	case l < labelTypingRate:
		v, ok := fv.Trigraph[Trigraph(int(l)-int(numKeys)-int(numDigraphs))]
		return v, ok
	case l == labelTypingRate:
		return fv.TypingRate, fv.TypingRate > 0
	}
	return 0, false
}

// Set records an observed value for a label. Maps are allocated on demand.
func (fv *FeatureVector) Set(l Label, v float64) {
	switch {
	case l < Label(numKeys):
		if fv.Dwell == nil {
			fv.Dwell = map[Key]float64{}
		}
		fv.Dwell[Key(l)] = v
	case l < Label(int(numKeys)+int(numDigraphs)):
		if fv.Digraph == nil {
			fv.Digraph = map[Digraph]float64{}
		}
		fv.Digraph[Digraph(int(l)-int(numKeys))] = v
	case l < labelTypingRate:
		if fv.Trigraph == nil {
			fv.Trigraph = map[Trigraph]float64{}
		}
		fv.Trigraph[Trigraph(int(l)-int(numKeys)-int(numDigraphs))] = v
	case l == labelTypingRate:
		fv.TypingRate = v
	}
}

// Vector returns the fixed-order numeric form.
func (fv FeatureVector) Vector() Vector {
	var v Vector
	for i := range v {
		if val, ok := fv.Value(Label(i)); ok {
			v[i] = val
		}
	}
	return v
}

// FromVector rebuilds a FeatureVector. Zero slots are treated as unobserved.
func FromVector(v Vector) FeatureVector {
	fv := NewFeatureVector()
	for i, val := range v {
		if val != 0 {
			fv.Set(Label(i), val)
		}
	}
	return fv
}

// Record is the serializable form of a FeatureVector: feature name to seconds.
// Only observed labels are present. A zero value reads back as unobserved,
// the same as in Average.
type Record map[string]float64

// Record returns the serializable form.
func (fv FeatureVector) Record() Record {
	rec := Record{}
	for i := 0; i < VectorLen; i++ {
		l := Label(i)
		if val, ok := fv.Value(l); ok {
			rec[l.Name()] = val
		}
	}
	return rec
}

// FromRecord rebuilds a FeatureVector from its serializable form.
func FromRecord(rec Record) (FeatureVector, error) {
	fv := NewFeatureVector()
	for name, val := range rec {
		l, ok := LabelByName(name)
		if !ok {
			return FeatureVector{}, fmt.Errorf("unknown feature %q", name)
		}
		if math.IsNaN(val) || math.IsInf(val, 0) || val < 0 {
			return FeatureVector{}, fmt.Errorf("invalid value %v for feature %q", val, name)
		}
		if val == 0 {
			continue
		}
		fv.Set(l, val)
	}
	return fv, nil
}

// Observed returns the number of observed labels, typing rate included.
func (fv FeatureVector) Observed() int {
	n := len(fv.Dwell) + len(fv.Digraph) + len(fv.Trigraph)
	if fv.TypingRate > 0 {
		n++
	}
	return n
}
