package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andresmejia3/moodsense/internal/types"
)

// --- Emotion (/detect-emotion) ---
type DetectReq struct {
	Image string `json:"image"`
}
type DetectResp struct {
	Success         bool               `json:"success"`
	Emotions        map[string]float64 `json:"emotions"`
	DominantEmotion string             `json:"dominantEmotion"`
	Error           string             `json:"error,omitempty"`
}

// DetectEmotion posts one base64-encoded image to the hosted classifier.
func (h *HTTP) DetectEmotion(ctx context.Context, url string, image []byte) (*DetectResp, error) {
	b, _ := json.Marshal(DetectReq{Image: base64.StdEncoding.EncodeToString(image)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(url, "/")+"/detect-emotion", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detect-emotion %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out DetectResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect-emotion decode: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("detect-emotion: %s", out.Error)
	}
	return &out, nil
}

// EmotionService classifies frames with the hosted model.
type EmotionService struct {
	h   *HTTP
	url string
}

func NewEmotionService(h *HTTP, url string) *EmotionService {
	return &EmotionService{h: h, url: url}
}

// Classify implements sampler.Classifier. The service analyses a single face.
func (e *EmotionService) Classify(ctx context.Context, frame types.Frame) ([]types.FaceEmotion, error) {
	out, err := e.h.DetectEmotion(ctx, e.url, frame.Data)
	if err != nil {
		return nil, err
	}
	if len(out.Emotions) == 0 && out.DominantEmotion == "" {
		return nil, types.ErrNoFace
	}
	return []types.FaceEmotion{{DominantEmotion: out.DominantEmotion, Emotion: out.Emotions}}, nil
}
