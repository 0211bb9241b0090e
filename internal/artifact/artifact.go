// Package artifact writes session and assessment results as timestamped JSON files.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/andresmejia3/moodsense/internal/types"
)

const (
	summaryPrefix    = "emotion_summary_"
	assessmentPrefix = "realtime_assessment_"
	stampLayout      = "20060102_150405"
)

// SummaryPath is where a summary produced at t is written.
func SummaryPath(dir string, t time.Time) string {
	return filepath.Join(dir, summaryPrefix+t.Format(stampLayout)+".json")
}

// AssessmentPath is where an assessment finished at t is written.
func AssessmentPath(dir string, t time.Time) string {
	return filepath.Join(dir, assessmentPrefix+t.Format(stampLayout)+".json")
}

// WriteSummary stores an emotion summary and returns the file path.
func WriteSummary(dir string, t time.Time, s types.EmotionSummary) (string, error) {
	path := SummaryPath(dir, t)
	if err := writeJSON(path, s); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// WriteAssessment stores a finished assessment, named after its end time.
func WriteAssessment(dir string, a types.Assessment) (string, error) {
	at := a.EndedAt
	if at.IsZero() {
		at = time.Now()
	}
	path := AssessmentPath(dir, at)
	if err := writeJSON(path, a); err != nil {
		return "", fmt.Errorf("write assessment: %w", err)
	}
	return path, nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (types.EmotionSummary, error) {
	var s types.EmotionSummary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// List returns every artifact file in dir, sorted by name.
func List(dir string) ([]string, error) {
	var out []string
	for _, prefix := range []string{summaryPrefix, assessmentPrefix} {
		m, err := filepath.Glob(filepath.Join(dir, prefix+"*.json"))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	sort.Strings(out)
	return out, nil
}

// writeJSON writes to a temp file first so a crash never leaves a half-written artifact.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
