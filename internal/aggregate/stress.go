package aggregate

import (
	"math"

	"github.com/andresmejia3/moodsense/internal/types"
)

type weightedLabel struct {
	label  string
	weight float64
}

var (
	stressLabels = []string{types.Angry, types.Fear, types.Sad, types.Disgust}

	// surprise is ambiguous, so it only calms at half strength.
	calmLabels = []weightedLabel{
		{types.Happy, 1.0},
		{types.Surprise, 0.5},
	}

	// stressThresholds are lower bounds (inclusive) of levels 2 through 5.
	stressThresholds = [...]float64{15, 30, 50, 70}
)

// calmOffset scales how much the calming signal cancels the stress signal.
const calmOffset = 0.5

// NetStress combines per-label average scores into a single stress signal:
// max(0, angry+fear+sad+disgust - 0.5*(happy + 0.5*surprise)).
func NetStress(avg map[string]float64) float64 {
	var stress, calm float64
	for _, l := range stressLabels {
		stress += avg[l]
	}
	for _, c := range calmLabels {
		calm += avg[c.label] * c.weight
	}
	return math.Max(0, stress-calmOffset*calm)
}

// StressLevel maps a net stress value to the 1-5 scale.
// Every input maps to exactly one level; NaN maps to 1.
func StressLevel(net float64) int {
	level := 1
	for _, t := range stressThresholds {
		if net >= t {
			level++
		}
	}
	return level
}
