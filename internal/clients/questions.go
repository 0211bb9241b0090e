package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andresmejia3/moodsense/internal/types"
)

// ServiceError is a failed call to the question service: a non-200 status or success=false.
// StatusCode is the HTTP status, 200 when the service itself reported the failure.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("question service: status %d", e.StatusCode)
	}
	return fmt.Sprintf("question service: status %d: %s", e.StatusCode, e.Message)
}

// --- Questions (/generate-questions-with-emotion) ---

// EmotionalState is the compact view of the last summary sent inside studentData.
type EmotionalState struct {
	OverallEmotion       string             `json:"overallEmotion"`
	EmotionBreakdown     map[string]float64 `json:"emotionBreakdown"`
	AverageEmotionScores map[string]float64 `json:"averageEmotionScores"`
	StressLevel          int                `json:"stressLevel"`
}

// NewEmotionalState derives the studentData view from a session summary.
func NewEmotionalState(s types.EmotionSummary) *EmotionalState {
	return &EmotionalState{
		OverallEmotion:       s.DominantEmotion,
		EmotionBreakdown:     s.EmotionFrequencyPercent,
		AverageEmotionScores: s.AverageScorePerLabel,
		StressLevel:          s.StressLevel,
	}
}

type PreviousAnswer struct {
	QuestionNumber  int    `json:"questionNumber"`
	QuestionID      string `json:"questionId,omitempty"`
	Difficulty      int    `json:"difficulty"`
	IsCorrect       bool   `json:"isCorrect"`
	StressLevel     int    `json:"stressLevel"`
	DominantEmotion string `json:"dominantEmotion"`
}

type StudentData struct {
	StudentID       string           `json:"studentId"`
	Grade           string           `json:"grade"`
	QuestionNumber  int              `json:"questionNumber,omitempty"`
	PreviousAnswers []PreviousAnswer `json:"previousAnswers"`
	EmotionalState  *EmotionalState  `json:"emotionalState,omitempty"`
}

type GenerateReq struct {
	Topic         string      `json:"topic"`
	StudentData   StudentData `json:"studentData"`
	EmotionData   any         `json:"emotionData"`
	QuestionCount int         `json:"questionCount"`
}

type GenerateResp struct {
	Success bool `json:"success"`
	Data    struct {
		Questions []types.Question `json:"questions"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// NewGenerateReq builds a request body. A nil summary is sent as an empty object.
func NewGenerateReq(topic string, student StudentData, summary *types.EmotionSummary, count int) GenerateReq {
	var emo any = struct{}{}
	if summary != nil {
		emo = summary
		student.EmotionalState = NewEmotionalState(*summary)
	}
	if student.PreviousAnswers == nil {
		student.PreviousAnswers = []PreviousAnswer{}
	}
	return GenerateReq{Topic: topic, StudentData: student, EmotionData: emo, QuestionCount: count}
}

// GenerateQuestions asks the service for questions adapted to an emotion summary.
// Failures come back as *ServiceError and are never retried.
func (h *HTTP) GenerateQuestions(ctx context.Context, url string, in GenerateReq) ([]types.Question, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("generate-questions encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(url, "/")+"/generate-questions-with-emotion", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var out GenerateResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode: %v", err)}
	}
	if !out.Success {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	if len(out.Data.Questions) == 0 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "no questions returned"}
	}
	return out.Data.Questions, nil
}

// --- Health (/health) ---
type HealthResp struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (h *HTTP) Health(ctx context.Context, url string) (*HealthResp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	var out HealthResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode: %v", err)}
	}
	return &out, nil
}

// Questions binds the HTTP client to one question-service base URL.
type Questions struct {
	h   *HTTP
	url string
}

func NewQuestions(h *HTTP, url string) *Questions {
	return &Questions{h: h, url: url}
}

func (q *Questions) Generate(ctx context.Context, in GenerateReq) ([]types.Question, error) {
	return q.h.GenerateQuestions(ctx, q.url, in)
}

func (q *Questions) Health(ctx context.Context) (*HealthResp, error) {
	return q.h.Health(ctx, q.url)
}

// IsServiceError reports whether err came back from the question service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// errorMessage pulls "error" out of a JSON error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
