// Package prompt provides the reference texts users type during capture.
package prompt

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/verte-zerg/keyprint/internal/features"
)

var builtin = []string{
	"The other night the station ran its last train into the rain, and the passengers " +
		"who are still there sing along while the local heralds rest at the gate.",
	"Learning to read the tides is an art: the sailors still tell stories of nations that are " +
		"lost when the ones in charge ignored all their ancient signs and never looked back.",
	"In the garden there are roses and lilies, and the children are hiding behind the hedge, " +
		"listening for the national radio station as the ice cream van rolls along.",
	"Her attention drifted as the lecture on the history of the iron trade went on, and " +
		"she started sketching the lines of the hills that are also in the distance.",
	"The old radio station is standing alone on the island, and in the evening the signal " +
		"still reaches the sailors who are heading home along the shore after dark.",
}

// Builtin returns the default paragraphs.
func Builtin() []string {
	return append([]string(nil), builtin...)
}

// Load reads paragraphs from path. Paragraphs are separated by blank lines;
// line breaks inside a paragraph become spaces.
func Load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only prompt file.
			_ = cerr
		}
	}()

	var (
		paragraphs []string
		current    []string
	)
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		current = append(current, strings.Join(strings.Fields(line), " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("prompt file %s is empty", path)
	}
	return paragraphs, nil
}

// Pick returns the paragraph for the i-th sample, cycling through the list.
func Pick(paragraphs []string, i int) string {
	if len(paragraphs) == 0 {
		return ""
	}
	if i < 0 {
		i = -i
	}
	return paragraphs[i%len(paragraphs)]
}

// Missing lists the timing features the text never exercises, in vector
// order. Typing rate is always exercised.
func Missing(text string) []string {
	var ids []string
	for _, r := range strings.ToLower(text) {
		if r == ' ' {
			ids = append(ids, features.KeySpace.String())
			continue
		}
		ids = append(ids, string(r))
	}

	seen := map[features.Label]bool{}
	for i, id := range ids {
		if k, ok := features.LookupKey(id); ok {
			seen[features.DwellLabel(k)] = true
		}
		if i+1 < len(ids) {
			if d, ok := features.LookupDigraph(id, ids[i+1]); ok {
				seen[features.DigraphLabel(d)] = true
			}
		}
		if i+2 < len(ids) {
			if tg, ok := features.LookupTrigraph(id, ids[i+1], ids[i+2]); ok {
				seen[features.TrigraphLabel(tg)] = true
			}
		}
	}

	var missing []string
	for _, l := range features.VotingLabels() {
		if !seen[l] {
			missing = append(missing, l.Name())
		}
	}
	return missing
}

// Similarity scores typed against target from 0 to 1: the share of positions
// holding the same character, ignoring case and surrounding whitespace,
// divided by the longer of the two lengths. An empty target scores 0.
func Similarity(typed, target string) float64 {
	a := []rune(strings.ToLower(strings.TrimSpace(typed)))
	b := []rune(strings.ToLower(strings.TrimSpace(target)))
	longest := max(len(a), len(b))
	if len(b) == 0 || longest == 0 {
		return 0
	}
	matches := 0
	for i := range min(len(a), len(b)) {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(longest)
}
