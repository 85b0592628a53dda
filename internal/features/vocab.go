// Package features derives keystroke-dynamics features from capture sessions.
package features

import "github.com/verte-zerg/keyprint/internal/capture"

// Key is a tracked single-key identifier.
type Key uint8

// Tracked keys, in vector order.
const (
	KeyE Key = iota
	KeyA
	KeyR
	KeyI
	KeyO
	KeyT
	KeyN
	KeyS
	KeyH
	KeyL
	KeyD
	KeyG
	KeySpace
	numKeys
)

var keyNames = [numKeys]string{"e", "a", "r", "i", "o", "t", "n", "s", "h", "l", "d", "g", capture.Space}

func (k Key) String() string {
	if k >= numKeys {
		return "invalid"
	}
	return keyNames[k]
}

// Digraph is a tracked two-key sequence.
type Digraph uint8

// Tracked digraphs, in vector order.
const (
	DigraphIN Digraph = iota
	DigraphTH
	DigraphTI
	DigraphON
	DigraphAN
	DigraphHE
	DigraphAL
	DigraphER
	DigraphES
	numDigraphs
)

var digraphNames = [numDigraphs]string{"in", "th", "ti", "on", "an", "he", "al", "er", "es"}

func (d Digraph) String() string {
	if d >= numDigraphs {
		return "invalid"
	}
	return digraphNames[d]
}

// Trigraph is a tracked three-key sequence.
type Trigraph uint8

// Tracked trigraphs, in vector order.
const (
	TrigraphTHE Trigraph = iota
	TrigraphAND
	TrigraphARE
	TrigraphION
	TrigraphING
	numTrigraphs
)

var trigraphNames = [numTrigraphs]string{"the", "and", "are", "ion", "ing"}

func (t Trigraph) String() string {
	if t >= numTrigraphs {
		return "invalid"
	}
	return trigraphNames[t]
}

var (
	keyByID      = map[string]Key{}
	digraphByID  = map[string]Digraph{}
	trigraphByID = map[string]Trigraph{}
)

func init() {
	for k := Key(0); k < numKeys; k++ {
		keyByID[k.String()] = k
	}
	for d := Digraph(0); d < numDigraphs; d++ {
		digraphByID[d.String()] = d
	}
	for t := Trigraph(0); t < numTrigraphs; t++ {
		trigraphByID[t.String()] = t
	}
}

// LookupKey returns the tracked key for a canonical identifier.
func LookupKey(id string) (Key, bool) {
	k, ok := keyByID[id]
	return k, ok
}

// LookupDigraph returns the tracked digraph formed by two identifiers.
func LookupDigraph(first, second string) (Digraph, bool) {
	if len(first) != 1 || len(second) != 1 {
		return 0, false
	}
	d, ok := digraphByID[first+second]
	return d, ok
}

// LookupTrigraph returns the tracked trigraph formed by three identifiers.
func LookupTrigraph(first, second, third string) (Trigraph, bool) {
	if len(first) != 1 || len(second) != 1 || len(third) != 1 {
		return 0, false
	}
	t, ok := trigraphByID[first+second+third]
	return t, ok
}

// Keys returns the tracked keys in vector order.
func Keys() []Key {
	out := make([]Key, numKeys)
	for i := range out {
		out[i] = Key(i)
	}
	return out
}

// Digraphs returns the tracked digraphs in vector order.
func Digraphs() []Digraph {
	out := make([]Digraph, numDigraphs)
	for i := range out {
		out[i] = Digraph(i)
	}
	return out
}

// Trigraphs returns the tracked trigraphs in vector order.
func Trigraphs() []Trigraph {
	out := make([]Trigraph, numTrigraphs)
	for i := range out {
		out[i] = Trigraph(i)
	}
	return out
}
