package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/moodsense/internal/aggregate"
	"github.com/andresmejia3/moodsense/internal/types"
)

func reading(at time.Time, elapsed float64, scores map[string]float64) types.EmotionReading {
	return types.EmotionReading{
		Timestamp:      at,
		ElapsedSeconds: elapsed,
		Scores:         scores,
		DominantLabel:  aggregate.DominantLabel(scores),
	}
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("moodsense_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	require.NoError(t, err, "Failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	require.NoError(t, err)
	defer s.Close(ctx)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	readings := []types.EmotionReading{
		reading(start, 0, map[string]float64{"happy": 80, "neutral": 15, "sad": 5}),
		reading(start.Add(time.Second), 1, map[string]float64{"happy": 70, "neutral": 20, "sad": 10}),
		reading(start.Add(2*time.Second), 2, map[string]float64{"happy": 10, "neutral": 10, "sad": 80}),
	}
	summary := aggregate.Summarize(readings, 3*time.Second)

	t.Run("session round trip", func(t *testing.T) {
		in := SessionInput{ID: "cap-1", Kind: KindCapture, Source: "camera", StartedAt: start, Summary: summary}
		require.NoError(t, s.SaveSession(ctx, in))
		// Saving again must not duplicate the timeline.
		require.NoError(t, s.SaveSession(ctx, in))

		got, err := s.GetSession(ctx, "cap-1")
		require.NoError(t, err)
		assert.Equal(t, summary.DominantEmotion, got.DominantEmotion)
		assert.Equal(t, summary.StressLevel, got.StressLevel)
		assert.InDelta(t, summary.AverageScorePerLabel["sad"], got.AverageScorePerLabel["sad"], 1e-9)
		require.Len(t, got.Timeline, 3)
		for i := range readings {
			assert.Equal(t, readings[i].DominantLabel, got.Timeline[i].DominantLabel)
			assert.True(t, readings[i].Timestamp.Equal(got.Timeline[i].Timestamp))
		}
	})

	t.Run("empty session", func(t *testing.T) {
		neutral := aggregate.Summarize(nil, time.Second)
		require.NoError(t, s.SaveSession(ctx, SessionInput{ID: "cap-empty", Kind: KindCapture, StartedAt: start.Add(-time.Hour), Summary: neutral}))

		got, err := s.GetSession(ctx, "cap-empty")
		require.NoError(t, err)
		assert.Equal(t, 0, got.SampleCount)
		assert.Equal(t, aggregate.DefaultStressLevel, got.StressLevel)
		assert.Empty(t, got.Timeline)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := s.GetSession(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("assessment", func(t *testing.T) {
		a := types.Assessment{
			ID:             "as-1",
			Topic:          "Fractions",
			StudentID:      "student_001",
			Grade:          "10",
			StartedAt:      start.Add(time.Hour),
			EndedAt:        start.Add(time.Hour + 5*time.Minute),
			TotalQuestions: 2,
			CorrectAnswers: 1,
			Records: []types.QuestionRecord{
				{QuestionNumber: 1, SessionID: "as-1-q1", IsCorrect: true, Emotion: summary, Timestamp: start.Add(time.Hour + time.Minute)},
				{QuestionNumber: 2, SessionID: "as-1-q2", Emotion: aggregate.Summarize(nil, 0), Timestamp: start.Add(time.Hour + 2*time.Minute)},
			},
		}
		a.ScorePercentage = 50
		a.Set = aggregate.SummarizeSet([]types.EmotionSummary{a.Records[0].Emotion, a.Records[1].Emotion})
		require.NoError(t, s.SaveAssessment(ctx, a))

		list, err := s.ListAssessments(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Fractions", list[0].Topic)
		assert.InDelta(t, a.Set.AverageStressLevel, list[0].AverageStress, 1e-9)

		sessions, err := s.ListSessions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, sessions, 4)
		// Most recent first: question sessions were started an hour after the captures.
		assert.Equal(t, "as-1", sessions[0].AssessmentID)
		assert.Equal(t, KindQuestion, sessions[0].Kind)
		assert.Equal(t, "cap-empty", sessions[3].ID)
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, s.Reset(ctx))
		_, err := s.ListSessions(ctx, 10)
		assert.Error(t, err, "tables should be gone after reset")
	})
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
