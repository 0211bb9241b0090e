package aggregate

import "github.com/andresmejia3/moodsense/internal/types"

// SummarizeSet rolls per-question summaries up to the assessment level.
// Summaries without samples count toward Questions but are left out of the
// stress and emotion figures, since they only carry the neutral fallback.
func SummarizeSet(summaries []types.EmotionSummary) types.SetSummary {
	out := types.SetSummary{
		Questions:           len(summaries),
		AverageStressLevel:  DefaultStressLevel,
		DominantEmotion:     types.Neutral,
		EmotionDistribution: map[string]int{},
	}

	var stressSum, observed int
	for _, s := range summaries {
		if s.SampleCount == 0 {
			continue
		}
		observed++
		stressSum += s.StressLevel
		out.TotalSamples += s.SampleCount
		out.EmotionDistribution[s.DominantEmotion]++
		if s.StressLevel > out.PeakStressLevel {
			out.PeakStressLevel = s.StressLevel
		}
	}
	if observed == 0 {
		return out
	}

	out.AverageStressLevel = float64(stressSum) / float64(observed)
	out.DominantEmotion = mostFrequent(out.EmotionDistribution)
	return out
}
