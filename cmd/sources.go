package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/moodsense/internal/capture"
	"github.com/andresmejia3/moodsense/internal/clients"
	"github.com/andresmejia3/moodsense/internal/config"
	"github.com/andresmejia3/moodsense/internal/sampler"
	"github.com/andresmejia3/moodsense/internal/utils"
	"github.com/andresmejia3/moodsense/internal/worker"
)

// sourceFlags selects a recorded input instead of the live camera.
type sourceFlags struct {
	Video string
	Image string
}

func (f sourceFlags) name() string {
	switch {
	case f.Image != "":
		return "image"
	case f.Video != "":
		return "video"
	default:
		return "camera"
	}
}

func (f sourceFlags) validate() error {
	if f.Image != "" && f.Video != "" {
		return fmt.Errorf("--image and --video are mutually exclusive")
	}
	return nil
}

// openSource opens the frame source. Every failure wraps capture.ErrSourceUnavailable.
func openSource(ctx context.Context, cfg *config.Config, f sourceFlags, log logrus.FieldLogger) (sampler.FrameSource, error) {
	switch {
	case f.Image != "":
		return capture.OpenImage(f.Image)
	case f.Video != "":
		return capture.OpenVideo(ctx, "", f.Video, cfg.Camera.FPS, cfg.Camera.StartupTimeout)
	default:
		return capture.OpenCamera(ctx, capture.CameraOptions{
			Format:         cfg.Camera.Format,
			Device:         cfg.Camera.Device,
			FPS:            cfg.Camera.FPS,
			StartupTimeout: cfg.Camera.StartupTimeout,
			LockDir:        cfg.Camera.LockDir,
		}, log)
	}
}

// classifierHandle is the configured emotion classifier plus its cleanup.
type classifierHandle struct {
	sampler.Classifier
	worker *worker.PythonWorker
}

func (h *classifierHandle) Close() {
	if h.worker != nil {
		h.worker.Close()
	}
}

// Cmd exposes the Python worker process for crash reports; nil for the HTTP backend.
func (h *classifierHandle) Cmd() *utils.SafeCommand {
	if h.worker == nil {
		return nil
	}
	return h.worker.Cmd
}

func newClassifier(cfg *config.Config) (*classifierHandle, error) {
	switch cfg.Classifier.Backend {
	case config.BackendHTTP:
		svc := clients.NewEmotionService(clients.NewHTTP(cfg.Classifier.Timeout), cfg.Classifier.URL)
		return &classifierHandle{Classifier: svc}, nil
	case config.BackendWorker:
		w, err := worker.NewPythonWorker(0, worker.Options{Python: cfg.Classifier.Python, Script: cfg.Classifier.Script})
		if err != nil {
			return nil, err
		}
		return &classifierHandle{Classifier: w, worker: w}, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Classifier.Backend)
	}
}

func newQuestionsClient(cfg *config.Config) *clients.Questions {
	return clients.NewQuestions(clients.NewHTTP(cfg.Questions.Timeout), cfg.Questions.URL)
}
