package stats

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/match"
	"github.com/verte-zerg/keyprint/internal/model"
)

const sparkChars = "▁▂▃▄▅▆▇█"

// LabelSummary aggregates one feature across samples. Unobserved samples
// are not counted.
type LabelSummary struct {
	Label  features.Label
	Count  int
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// Summarize aggregates every observed feature across samples, in vector order.
func Summarize(samples []features.FeatureVector) []LabelSummary {
	var out []LabelSummary
	for i := 0; i < features.VectorLen; i++ {
		l := features.Label(i)
		var values []float64
		for _, s := range samples {
			if v, ok := s.Value(l); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		sum := LabelSummary{Label: l, Count: len(values), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, v := range values {
			sum.Mean += v
			sum.Min = math.Min(sum.Min, v)
			sum.Max = math.Max(sum.Max, v)
		}
		sum.Mean /= float64(len(values))
		var sq float64
		for _, v := range values {
			sq += (v - sum.Mean) * (v - sum.Mean)
		}
		sum.StdDev = math.Sqrt(sq / float64(len(values)))
		out = append(out, sum)
	}
	return out
}

// Sparkline renders a single-line sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	blocks := []rune(sparkChars)
	minVal, maxVal := slices.Min(values), slices.Max(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(blocks[len(blocks)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(blocks)-1)))
		b.WriteRune(blocks[min(max(idx, 0), len(blocks)-1)])
	}
	return b.String()
}

// RenderUsers prints the registered users table with a typing rate trend.
func RenderUsers(w io.Writer, report Report) error {
	if len(report.Users) == 0 {
		_, err := fmt.Fprintln(w, "No users registered.")
		return err
	}
	headers := []string{"User", "Name", "Samples", "Registered", "Rate (keys/s)", "Trend"}
	rows := make([][]string, 0, len(report.Users))
	for _, u := range report.Users {
		var rates []float64
		for _, s := range report.Samples[u.UserID] {
			if s.Features.TypingRate > 0 {
				rates = append(rates, s.Features.TypingRate)
			}
		}
		rate := "-"
		if len(rates) > 0 {
			var sum float64
			for _, r := range rates {
				sum += r
			}
			rate = fmt.Sprintf("%.2f", sum/float64(len(rates)))
		}
		rows = append(rows, []string{
			u.UserID,
			u.DisplayName,
			fmt.Sprintf("%d", u.Samples),
			u.CreatedAt.Local().Format("2006-01-02 15:04"),
			rate,
			Sparkline(rates),
		})
	}
	return writeTable(w, "", headers, rows, map[int]bool{2: true, 4: true})
}

// RenderSignature prints the per-feature summary for one user and, when
// plot is true, a profile plot with one line per sample.
func RenderSignature(w io.Writer, user model.UserSummary, samples []model.Sample, plot bool) error {
	vectors := make([]features.FeatureVector, len(samples))
	for i, s := range samples {
		vectors[i] = s.Features
	}
	title := fmt.Sprintf("%s (%s), %d samples", user.UserID, user.DisplayName, len(samples))
	summaries := Summarize(vectors)
	if len(summaries) == 0 {
		_, err := fmt.Fprintf(w, "%s\nNo features observed.\n", title)
		return err
	}

	headers := []string{"Feature", "Mean", "Min", "Max", "StdDev", "Seen"}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Label.Name(),
			formatValue(s.Label, s.Mean),
			formatValue(s.Label, s.Min),
			formatValue(s.Label, s.Max),
			formatValue(s.Label, s.StdDev),
			fmt.Sprintf("%d/%d", s.Count, len(samples)),
		})
	}
	if err := writeTable(w, title, headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}); err != nil {
		return err
	}
	if !plot {
		return nil
	}

	// Typing rate has another unit and stays out of the timing plot.
	labels := features.VotingLabels()
	series := make([]Series, 0, len(samples))
	for i, s := range samples {
		values := make([]float64, len(labels))
		for j, l := range labels {
			values[j] = math.NaN()
			if v, ok := s.Features.Value(l); ok {
				values[j] = v * 1000
			}
		}
		series = append(series, Series{Name: fmt.Sprintf("#%d", i+1), Values: values})
	}
	return PlotSeries(w, "Timings by feature (dwell, digraph, trigraph)", "ms", series, 0, 0, ShouldUseColor(w))
}

// RenderMatch prints an identification result.
func RenderMatch(w io.Writer, res match.Result, names map[string]string) error {
	display := func(id string) string {
		if name, ok := names[id]; ok && name != "" && name != id {
			return fmt.Sprintf("%s (%s)", name, id)
		}
		return id
	}

	var headline string
	switch res.Outcome {
	case match.OutcomeIdentified:
		headline = fmt.Sprintf("Identified: %s", display(res.Winner))
	case match.OutcomeProbable:
		group := make([]string, len(res.TieGroup))
		for i, id := range res.TieGroup {
			group[i] = display(id)
		}
		headline = fmt.Sprintf("Probable match, tied between %s", strings.Join(group, ", "))
	case match.OutcomeAmbiguous:
		headline = fmt.Sprintf("Ambiguous: %d users tied", len(res.TieGroup))
	case match.OutcomeLowConfidence:
		headline = fmt.Sprintf("Low confidence: best guess %s", display(res.Winner))
	default:
		headline = fmt.Sprintf("Result: %s", display(res.Winner))
	}
	if _, err := fmt.Fprintf(w, "%s (confidence %.0f%%)\n\n", headline, res.Confidence*100); err != nil {
		return err
	}

	type entry struct {
		user  string
		score float64
		cell  string
	}
	var entries []entry
	header := "Votes"
	switch {
	case res.Probabilities != nil:
		header = "Probability"
		for user, p := range res.Probabilities {
			entries = append(entries, entry{user, p, fmt.Sprintf("%.1f%%", p*100)})
		}
	default:
		for user, v := range res.Votes {
			entries = append(entries, entry{user, float64(v), fmt.Sprintf("%d/%d", v, res.Cast)})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.user, b.user)
	})
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{display(e.user), e.cell}
	}
	return writeTable(w, "", []string{"User", header}, rows, map[int]bool{1: true})
}

func formatValue(l features.Label, v float64) string {
	if l == features.TypingRateLabel() {
		return fmt.Sprintf("%.2f/s", v)
	}
	return fmt.Sprintf("%.1fms", v*1000)
}
