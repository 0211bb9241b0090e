package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/moodsense/internal/utils"
)

// ErrDeviceBusy means another moodsense process holds the camera.
var ErrDeviceBusy = errors.New("camera is in use by another session")

// CameraOptions describes a live capture device.
type CameraOptions struct {
	FFmpegPath     string
	Format         string // ffmpeg input device: v4l2, avfoundation, dshow
	Device         string
	FPS            float64
	StartupTimeout time.Duration
	LockDir        string
}

// OpenCamera starts FFmpeg on the capture device and waits for the first frame.
// Any failure to get that frame is reported as ErrSourceUnavailable.
func OpenCamera(ctx context.Context, opts CameraOptions, log logrus.FieldLogger) (*Stream, error) {
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("camera fps must be positive, got %v", opts.FPS)
	}

	var lock *flock.Flock
	if opts.LockDir != "" {
		if err := os.MkdirAll(opts.LockDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure lock dir: %w", err)
		}
		lock = flock.New(filepath.Join(opts.LockDir, lockName(opts.Device)))
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire camera lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %w (%s)", ErrSourceUnavailable, ErrDeviceBusy, opts.Device)
		}
	}

	unlock := func() {
		if lock == nil {
			return
		}
		if err := lock.Unlock(); err != nil {
			log.WithError(err).Warn("failed to release camera lock")
		}
	}

	args := utils.NewCameraArgs(opts.Format, opts.Device, opts.FPS)
	s, err := startFFmpeg(ctx, ffmpegBinary(opts.FFmpegPath), args, true, opts.StartupTimeout, unlock)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"device": opts.Device, "format": opts.Format, "fps": opts.FPS}).Info("camera opened")
	return s, nil
}

// OpenVideo decodes a recorded video file. A positive fps resamples the video first.
func OpenVideo(ctx context.Context, ffmpegPath, path string, fps float64, startupTimeout time.Duration) (*Stream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory, expected a video file", ErrSourceUnavailable, path)
	}
	return startFFmpeg(ctx, ffmpegBinary(ffmpegPath), utils.NewDecodeArgs(path, fps), false, startupTimeout, nil)
}

func startFFmpeg(ctx context.Context, bin string, args []string, live bool, startupTimeout time.Duration, onClose func()) (*Stream, error) {
	if onClose == nil {
		onClose = func() {}
	}

	// The process outlives ctx; Close is what stops it.
	ffmpeg := utils.NewSafeCommand(context.Background(), bin, args...)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		onClose()
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		onClose()
		return nil, fmt.Errorf("%w: start ffmpeg: %w", ErrSourceUnavailable, err)
	}

	closer := func() error {
		defer onClose()
		if ffmpeg.Process != nil {
			_ = ffmpeg.Process.Kill()
		}
		_ = out.Close()
		// A killed decoder always exits non-zero; that is the expected way out.
		_ = ffmpeg.Wait()
		return nil
	}

	s := newStream(out, live, closer, time.Now)
	if startupTimeout <= 0 {
		startupTimeout = 5 * time.Second
	}
	if err := s.awaitFirst(ctx, startupTimeout); err != nil {
		_ = s.Close()
		if logs := strings.TrimSpace(ffmpeg.Logs()); logs != "" {
			return nil, fmt.Errorf("%w (ffmpeg: %s)", err, logs)
		}
		return nil, err
	}
	return s, nil
}

func ffmpegBinary(path string) string {
	if strings.TrimSpace(path) == "" {
		return "ffmpeg"
	}
	return path
}

func lockName(device string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	name := strings.Trim(r.Replace(device), "_")
	if name == "" {
		name = "default"
	}
	return "camera-" + name + ".lock"
}
