package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/moodsense/internal/types"
)

// ErrNotFound is returned when a session ID is not in the database.
var ErrNotFound = errors.New("not found")

// Session kinds.
const (
	KindCapture  = "capture"
	KindQuestion = "question"
)

// Store manages the PostgreSQL connection for emotion sessions and assessments.
type Store struct {
	conn *pgx.Conn
}

// SessionInput is one closed sampling session to persist.
type SessionInput struct {
	ID             string
	Kind           string
	Source         string
	AssessmentID   string // empty for standalone captures
	QuestionNumber int
	StartedAt      time.Time
	Summary        types.EmotionSummary
}

// SessionRecord is the listing view of a stored session.
type SessionRecord struct {
	ID              string
	Kind            string
	Source          string
	AssessmentID    string
	StartedAt       time.Time
	DurationSeconds float64
	SampleCount     int
	DominantEmotion string
	StressLevel     int
}

// AssessmentRecord is the listing view of a stored assessment.
type AssessmentRecord struct {
	ID              string
	Topic           string
	StudentID       string
	StartedAt       time.Time
	TotalQuestions  int
	CorrectAnswers  int
	ScorePercentage float64
	AverageStress   float64
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS assessments (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			student_id TEXT NOT NULL,
			grade TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			total_questions INT NOT NULL,
			correct_answers INT NOT NULL,
			score_percentage DOUBLE PRECISION NOT NULL,
			set_summary JSONB NOT NULL,
			records JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS emotion_sessions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			assessment_id TEXT REFERENCES assessments(id) ON DELETE CASCADE,
			question_number INT,
			started_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			sample_count INT NOT NULL,
			dominant_emotion TEXT NOT NULL,
			stress_level INT NOT NULL CHECK (stress_level BETWEEN 1 AND 5),
			summary JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS emotion_readings (
			session_id TEXT REFERENCES emotion_sessions(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			elapsed_seconds DOUBLE PRECISION NOT NULL,
			dominant_label TEXT NOT NULL,
			scores JSONB NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS emotion_sessions_started_at_idx ON emotion_sessions (started_at DESC);
		CREATE INDEX IF NOT EXISTS emotion_sessions_assessment_idx ON emotion_sessions (assessment_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// SaveSession stores a session summary and its timeline. Saving the same ID again replaces it.
func (s *Store) SaveSession(ctx context.Context, in SessionInput) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertSession(ctx, tx, in); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertSession(ctx context.Context, tx pgx.Tx, in SessionInput) error {
	if in.ID == "" {
		return errors.New("session id is required")
	}
	summary, err := json.Marshal(in.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	var assessmentID *string
	var questionNumber *int
	if in.AssessmentID != "" {
		assessmentID = &in.AssessmentID
		questionNumber = &in.QuestionNumber
	}

	// Clean up old readings so a re-save does not duplicate the timeline.
	if _, err := tx.Exec(ctx, "DELETE FROM emotion_readings WHERE session_id = $1", in.ID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO emotion_sessions (id, kind, source, assessment_id, question_number, started_at,
			duration_seconds, sample_count, dominant_emotion, stress_level, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, source = EXCLUDED.source,
			assessment_id = EXCLUDED.assessment_id, question_number = EXCLUDED.question_number,
			started_at = EXCLUDED.started_at, duration_seconds = EXCLUDED.duration_seconds,
			sample_count = EXCLUDED.sample_count, dominant_emotion = EXCLUDED.dominant_emotion,
			stress_level = EXCLUDED.stress_level, summary = EXCLUDED.summary
	`, in.ID, in.Kind, in.Source, assessmentID, questionNumber, in.StartedAt,
		in.Summary.DurationSeconds, in.Summary.SampleCount, in.Summary.DominantEmotion,
		in.Summary.StressLevel, string(summary))
	if err != nil {
		return err
	}

	if len(in.Summary.Timeline) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, r := range in.Summary.Timeline {
		scores, err := json.Marshal(r.Scores)
		if err != nil {
			return fmt.Errorf("encode reading %d: %w", i, err)
		}
		batch.Queue(`
			INSERT INTO emotion_readings (session_id, seq, captured_at, elapsed_seconds, dominant_label, scores)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		`, in.ID, i, r.Timestamp, r.ElapsedSeconds, r.DominantLabel, string(scores))
	}
	return tx.SendBatch(ctx, batch).Close()
}

// SaveAssessment stores an assessment and the per-question sessions in one transaction.
func (s *Store) SaveAssessment(ctx context.Context, a types.Assessment) error {
	if a.ID == "" {
		return errors.New("assessment id is required")
	}
	set, err := json.Marshal(a.Set)
	if err != nil {
		return fmt.Errorf("encode set summary: %w", err)
	}
	records, err := json.Marshal(a.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO assessments (id, topic, student_id, grade, started_at, ended_at,
			total_questions, correct_answers, score_percentage, set_summary, records)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at, total_questions = EXCLUDED.total_questions,
			correct_answers = EXCLUDED.correct_answers, score_percentage = EXCLUDED.score_percentage,
			set_summary = EXCLUDED.set_summary, records = EXCLUDED.records
	`, a.ID, a.Topic, a.StudentID, a.Grade, a.StartedAt, a.EndedAt,
		a.TotalQuestions, a.CorrectAnswers, a.ScorePercentage, string(set), string(records))
	if err != nil {
		return err
	}

	for _, rec := range a.Records {
		if rec.SessionID == "" {
			continue
		}
		startedAt := rec.Timestamp.Add(-time.Duration(rec.Emotion.DurationSeconds * float64(time.Second)))
		err := insertSession(ctx, tx, SessionInput{
			ID:             rec.SessionID,
			Kind:           KindQuestion,
			Source:         "camera",
			AssessmentID:   a.ID,
			QuestionNumber: rec.QuestionNumber,
			StartedAt:      startedAt,
			Summary:        rec.Emotion,
		})
		if err != nil {
			return fmt.Errorf("question %d: %w", rec.QuestionNumber, err)
		}
	}
	return tx.Commit(ctx)
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, kind, source, COALESCE(assessment_id, ''), started_at, duration_seconds,
			sample_count, dominant_emotion, stress_level
		FROM emotion_sessions
		ORDER BY started_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.Source, &r.AssessmentID, &r.StartedAt, &r.DurationSeconds,
			&r.SampleCount, &r.DominantEmotion, &r.StressLevel); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSession loads a stored summary with its timeline in capture order.
func (s *Store) GetSession(ctx context.Context, id string) (types.EmotionSummary, error) {
	var raw []byte
	err := s.conn.QueryRow(ctx, "SELECT summary::text FROM emotion_sessions WHERE id = $1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.EmotionSummary{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.EmotionSummary{}, err
	}

	var summary types.EmotionSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return types.EmotionSummary{}, fmt.Errorf("decode summary: %w", err)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT captured_at, elapsed_seconds, dominant_label, scores::text
		FROM emotion_readings WHERE session_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return types.EmotionSummary{}, err
	}
	defer rows.Close()

	timeline := make([]types.EmotionReading, 0, summary.SampleCount)
	for rows.Next() {
		var r types.EmotionReading
		var scores []byte
		if err := rows.Scan(&r.Timestamp, &r.ElapsedSeconds, &r.DominantLabel, &scores); err != nil {
			return types.EmotionSummary{}, err
		}
		if err := json.Unmarshal(scores, &r.Scores); err != nil {
			return types.EmotionSummary{}, fmt.Errorf("decode reading scores: %w", err)
		}
		timeline = append(timeline, r)
	}
	if err := rows.Err(); err != nil {
		return types.EmotionSummary{}, err
	}
	summary.Timeline = timeline
	return summary, nil
}

// ListAssessments returns the most recent assessments first.
func (s *Store) ListAssessments(ctx context.Context, limit int) ([]AssessmentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, topic, student_id, started_at, total_questions, correct_answers, score_percentage,
			COALESCE((set_summary->>'averageStressLevel')::double precision, 0)
		FROM assessments
		ORDER BY started_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssessmentRecord
	for rows.Next() {
		var r AssessmentRecord
		if err := rows.Scan(&r.ID, &r.Topic, &r.StudentID, &r.StartedAt, &r.TotalQuestions,
			&r.CorrectAnswers, &r.ScorePercentage, &r.AverageStress); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS emotion_readings CASCADE;
		DROP TABLE IF EXISTS emotion_sessions CASCADE;
		DROP TABLE IF EXISTS assessments CASCADE;
	`)
	return err
}
