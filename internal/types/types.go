package types

import (
	"errors"
	"time"
)

// Emotion labels reported by the facial-emotion classifier.
const (
	Angry    = "angry"
	Disgust  = "disgust"
	Fear     = "fear"
	Happy    = "happy"
	Sad      = "sad"
	Surprise = "surprise"
	Neutral  = "neutral"
)

// Labels is the fixed label set in tie-break order.
var Labels = []string{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

// ErrNoFace is returned by a classifier when a frame produced no usable result.
var ErrNoFace = errors.New("no face detected")

// Frame is a single JPEG image pulled from a frame source.
type Frame struct {
	Index      int
	CapturedAt time.Time
	Data       []byte
}

// FaceEmotion is one classifier result for one face region of a frame.
type FaceEmotion struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion"`
}

// EmotionReading is one successful classification of one frame.
type EmotionReading struct {
	Timestamp      time.Time          `json:"timestamp"`
	ElapsedSeconds float64            `json:"elapsedSeconds"`
	Scores         map[string]float64 `json:"scores"`
	DominantLabel  string             `json:"dominantLabel"`
}

// EmotionSummary is the session-level aggregate handed to question generation.
type EmotionSummary struct {
	SampleCount             int                `json:"sampleCount"`
	DominantEmotion         string             `json:"dominantEmotion"`
	EmotionFrequencyPercent map[string]float64 `json:"emotionFrequencyPercent"`
	AverageScorePerLabel    map[string]float64 `json:"averageScorePerLabel"`
	StressLevel             int                `json:"stressLevel"`
	DurationSeconds         float64            `json:"durationSeconds"`
	Timeline                []EmotionReading   `json:"timeline"`
}

// SetSummary aggregates the per-question summaries of one assessment.
type SetSummary struct {
	Questions           int            `json:"questions"`
	AverageStressLevel  float64        `json:"averageStressLevel"`
	PeakStressLevel     int            `json:"peakStressLevel"`
	DominantEmotion     string         `json:"dominantEmotion"`
	EmotionDistribution map[string]int `json:"emotionDistribution"`
	TotalSamples        int            `json:"totalSamples"`
}

// Question is a generated quiz question as returned by the question service.
type Question struct {
	QuestionID    string   `json:"questionId,omitempty"`
	Topic         string   `json:"topic"`
	Difficulty    int      `json:"difficulty"`
	BloomLevel    string   `json:"bloomLevel"`
	Type          string   `json:"type"`
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// IsMultipleChoice reports whether the question expects a numbered option.
func (q Question) IsMultipleChoice() bool {
	return q.Type == "MCQ" && len(q.Options) > 0
}

// Answer is what the student typed for one question.
type Answer struct {
	Text         string    `json:"answer"`
	OptionNumber int       `json:"answerNumber,omitempty"`
	AnsweredAt   time.Time `json:"timestamp"`
}

// QuestionRecord is one answered question together with the emotions observed while answering.
type QuestionRecord struct {
	QuestionNumber int            `json:"questionNumber"`
	SessionID      string         `json:"sessionId"`
	Question       Question       `json:"question"`
	Answer         Answer         `json:"studentAnswer"`
	IsCorrect      bool           `json:"isCorrect"`
	Emotion        EmotionSummary `json:"emotionDataDuringAnswer"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Assessment is the outcome of one adaptive quiz run.
type Assessment struct {
	ID              string           `json:"id"`
	Topic           string           `json:"topic"`
	StudentID       string           `json:"studentId"`
	Grade           string           `json:"grade"`
	StartedAt       time.Time        `json:"startTime"`
	EndedAt         time.Time        `json:"endTime"`
	TotalQuestions  int              `json:"totalQuestions"`
	CorrectAnswers  int              `json:"correctAnswers"`
	ScorePercentage float64          `json:"scorePercentage"`
	Records         []QuestionRecord `json:"questionsAndAnswers"`
	Set             SetSummary       `json:"setSummary"`
}
