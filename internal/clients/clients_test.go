package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/moodsense/internal/types"
)

func TestEmotionServiceClassify(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect-emotion", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var in DetectReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		raw, err := base64.StdEncoding.DecodeString(in.Image)
		require.NoError(t, err)
		assert.Equal(t, frame, raw)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"emotions":        map[string]float64{"happy": 90, "neutral": 10},
			"dominantEmotion": "happy",
		})
	}))
	defer srv.Close()

	svc := NewEmotionService(NewHTTP(time.Second), srv.URL+"/")
	faces, err := svc.Classify(context.Background(), types.Frame{Data: frame})
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, "happy", faces[0].DominantEmotion)
	assert.InDelta(t, 90, faces[0].Emotion["happy"], 1e-9)
}

func TestEmotionServiceFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		noFace  bool
		wantErr bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"success":false,"error":"boom"}`, wantErr: true},
		{name: "success false", status: http.StatusOK, body: `{"success":false,"error":"bad image"}`, wantErr: true},
		{name: "empty result", status: http.StatusOK, body: `{"success":true,"emotions":{}}`, noFace: true},
		{name: "garbage", status: http.StatusOK, body: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewEmotionService(NewHTTP(time.Second), srv.URL).Classify(context.Background(), types.Frame{Data: []byte("x")})
			require.Error(t, err)
			assert.Equal(t, tt.noFace, errors.Is(err, types.ErrNoFace))
		})
	}
}

func TestGenerateQuestions(t *testing.T) {
	summary := types.EmotionSummary{
		SampleCount:             2,
		DominantEmotion:         "sad",
		EmotionFrequencyPercent: map[string]float64{"sad": 100},
		AverageScorePerLabel:    map[string]float64{"sad": 80},
		StressLevel:             5,
		Timeline:                []types.EmotionReading{},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate-questions-with-emotion", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Fractions", body["topic"])
		assert.EqualValues(t, 1, body["questionCount"])

		emo := body["emotionData"].(map[string]any)
		assert.Equal(t, "sad", emo["dominantEmotion"])
		assert.EqualValues(t, 5, emo["stressLevel"])

		student := body["studentData"].(map[string]any)
		assert.Equal(t, "s-1", student["studentId"])
		state := student["emotionalState"].(map[string]any)
		assert.EqualValues(t, 5, state["stressLevel"])

		_, _ = w.Write([]byte(`{"success":true,"data":{"questions":[
			{"questionId":"q1","topic":"Fractions","difficulty":2,"bloomLevel":"Apply","type":"MCQ",
			 "questionText":"1/2 + 1/4?","options":["3/4","2/6"],"correctAnswer":"3/4","explanation":"common denominator"}
		]}}`))
	}))
	defer srv.Close()

	q := NewQuestions(NewHTTP(time.Second), srv.URL+"/api")
	req := NewGenerateReq("Fractions", StudentData{StudentID: "s-1", Grade: "10", QuestionNumber: 1}, &summary, 1)
	got, err := q.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3/4", got[0].CorrectAnswer)
	assert.True(t, got[0].IsMultipleChoice())
}

func TestGenerateReqWithoutSummary(t *testing.T) {
	req := NewGenerateReq("Algebra", StudentData{StudentID: "s"}, nil, 3)
	b, err := json.Marshal(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	assert.Equal(t, map[string]any{}, body["emotionData"])
	student := body["studentData"].(map[string]any)
	assert.NotContains(t, student, "emotionalState")
	assert.Equal(t, []any{}, student["previousAnswers"])
}

func TestGenerateQuestionsFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "non-200", status: http.StatusBadGateway, body: `{"success":false,"error":"model offline"}`, wantStatus: 502, wantMsg: "model offline"},
		{name: "success false", status: http.StatusOK, body: `{"success":false,"error":"quota"}`, wantStatus: 200, wantMsg: "quota"},
		{name: "no questions", status: http.StatusOK, body: `{"success":true,"data":{"questions":[]}}`, wantStatus: 200, wantMsg: "no questions returned"},
		{name: "plain text", status: http.StatusNotFound, body: "nope\n", wantStatus: 404, wantMsg: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewQuestions(NewHTTP(time.Second), srv.URL).Generate(context.Background(), NewGenerateReq("t", StudentData{}, nil, 1))
			var se *ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.True(t, IsServiceError(err))
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestGenerateQuestionsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewQuestions(NewHTTP(50*time.Millisecond), srv.URL).Generate(context.Background(), NewGenerateReq("t", StudentData{}, nil, 1))
	assert.True(t, IsServiceError(err))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"AI service is running","timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	h, err := NewQuestions(NewHTTP(time.Second), srv.URL+"/api").Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Success)
	assert.Equal(t, "AI service is running", h.Message)

	_, err = NewQuestions(NewHTTP(time.Second), srv.URL).Health(context.Background())
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestServiceErrorMessage(t *testing.T) {
	assert.Equal(t, "question service: status 500", (&ServiceError{StatusCode: 500}).Error())
	assert.Equal(t, "question service: status 0: dial tcp", (&ServiceError{Message: "dial tcp"}).Error())
}
