// Package aggregate turns a closed session's readings into an EmotionSummary.
//
// Everything here is a pure function of its input. Identical readings always
// produce an identical summary.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/andresmejia3/moodsense/internal/types"
)

// DefaultStressLevel is reported when a session produced no readings.
const DefaultStressLevel = 3

// Summarize computes the session summary. An empty slice yields the neutral default.
func Summarize(readings []types.EmotionReading, duration time.Duration) types.EmotionSummary {
	if len(readings) == 0 {
		return Neutral(duration)
	}

	n := float64(len(readings))
	counts := make(map[string]int)
	totals := make(map[string]float64, len(types.Labels))
	for _, l := range types.Labels {
		totals[l] = 0
	}

	for _, r := range readings {
		counts[r.DominantLabel]++
		for label, score := range r.Scores {
			totals[label] += score
		}
	}

	freq := make(map[string]float64, len(counts))
	for label, c := range counts {
		freq[label] = 100 * float64(c) / n
	}

	// Labels missing from a reading count as 0, so every mean divides by n.
	avg := make(map[string]float64, len(totals))
	for label, total := range totals {
		avg[label] = total / n
	}

	timeline := make([]types.EmotionReading, len(readings))
	copy(timeline, readings)

	return types.EmotionSummary{
		SampleCount:             len(readings),
		DominantEmotion:         mostFrequent(counts),
		EmotionFrequencyPercent: freq,
		AverageScorePerLabel:    avg,
		StressLevel:             StressLevel(NetStress(avg)),
		DurationSeconds:         duration.Seconds(),
		Timeline:                timeline,
	}
}

// Neutral returns the well-formed fallback summary for a session with no readings.
func Neutral(duration time.Duration) types.EmotionSummary {
	return types.EmotionSummary{
		SampleCount:             0,
		DominantEmotion:         types.Neutral,
		EmotionFrequencyPercent: map[string]float64{},
		AverageScorePerLabel:    map[string]float64{},
		StressLevel:             DefaultStressLevel,
		DurationSeconds:         duration.Seconds(),
		Timeline:                []types.EmotionReading{},
	}
}

// DominantLabel returns the label with the highest score.
// Ties go to the label appearing first in types.Labels; labels outside the set
// are ranked after it in lexical order. Returns "" for empty scores.
func DominantLabel(scores map[string]float64) string {
	best := ""
	bestScore := math.Inf(-1)
	for _, label := range OrderedLabels(scores) {
		if s := scores[label]; s > bestScore {
			best, bestScore = label, s
		}
	}
	return best
}

// OrderedLabels returns the keys of m in tie-break order: the fixed label set
// first, then any unknown labels sorted lexically.
func OrderedLabels[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	known := make(map[string]struct{}, len(types.Labels))
	for _, l := range types.Labels {
		known[l] = struct{}{}
		if _, ok := m[l]; ok {
			out = append(out, l)
		}
	}
	var extra []string
	for l := range m {
		if _, ok := known[l]; !ok {
			extra = append(extra, l)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func mostFrequent(counts map[string]int) string {
	best := ""
	bestCount := 0
	for _, label := range OrderedLabels(counts) {
		if c := counts[label]; c > bestCount {
			best, bestCount = label, c
		}
	}
	if best == "" {
		return types.Neutral
	}
	return best
}
