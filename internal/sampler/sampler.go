// Package sampler pulls frames from a source, classifies them in a background
// goroutine and buffers the readings of one monitoring window.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/moodsense/internal/aggregate"
	"github.com/andresmejia3/moodsense/internal/types"
)

// FrameSource produces frames on demand. Next returns io.EOF once the stream is exhausted.
// Close may be called while Next is blocked and must unblock it.
type FrameSource interface {
	Next(ctx context.Context) (types.Frame, error)
	Close() error
}

// Classifier runs the emotion model on one frame. Results are ordered with the
// primary face first; an empty result or types.ErrNoFace means nothing usable.
type Classifier interface {
	Classify(ctx context.Context, frame types.Frame) ([]types.FaceEmotion, error)
}

// StopReason records why a session closed.
type StopReason string

const (
	StopRequested    StopReason = "stopped"
	StopBudget       StopReason = "budget"
	StopSourceEnded  StopReason = "source-ended"
	StopSourceFailed StopReason = "source-failed"
	StopCancelled    StopReason = "cancelled"
)

// Options configures a Sampler.
type Options struct {
	// Interval between classifications. Zero samples continuously (best effort).
	Interval time.Duration
	// Budget is the hard wall-clock limit of a session.
	Budget time.Duration
	// OnReading is called from the sampling goroutine after each recorded reading.
	OnReading func(types.EmotionReading)
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Sampler starts sampling sessions over one frame source and classifier.
type Sampler struct {
	src  FrameSource
	clf  Classifier
	opts Options
}

// New creates a Sampler. The source is owned by the session returned from Start
// and is closed when that session finishes; start at most one session per Sampler.
func New(src FrameSource, clf Classifier, opts Options) (*Sampler, error) {
	if src == nil {
		return nil, errors.New("sampler: frame source is required")
	}
	if clf == nil {
		return nil, errors.New("sampler: classifier is required")
	}
	if opts.Budget <= 0 {
		return nil, fmt.Errorf("sampler: budget must be positive, got %s", opts.Budget)
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("sampler: interval must not be negative, got %s", opts.Interval)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Sampler{src: src, clf: clf, opts: opts}, nil
}

// Start launches the background sampling goroutine and returns its session.
func (s *Sampler) Start(ctx context.Context) *Session {
	runCtx, cancel := context.WithTimeout(ctx, s.opts.Budget)
	sess := newSession(s.opts.Now, s.opts.Budget, cancel, s.src)
	go s.run(runCtx, sess)
	return sess
}

func (s *Sampler) run(ctx context.Context, sess *Session) {
	reason := StopCancelled
	defer func() {
		sess.finish(reason, s.opts.Now())
	}()

	log := s.opts.Logger.WithField("session", sess.ID)
	log.Debug("sampling started")

	for index := 1; ; index++ {
		if r, stop := s.shouldStop(ctx, sess); stop {
			reason = r
			return
		}

		frame, err := s.src.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				reason = s.ctxReason(ctx, sess)
			case errors.Is(err, io.EOF):
				reason = StopSourceEnded
			default:
				log.WithError(err).Warn("frame source failed")
				reason = StopSourceFailed
			}
			return
		}
		if frame.Index == 0 {
			frame.Index = index
		}
		sess.countFrame()

		faces, err := s.clf.Classify(ctx, frame)
		if ctx.Err() != nil {
			reason = s.ctxReason(ctx, sess)
			return
		}
		if err == nil && len(faces) == 0 {
			err = types.ErrNoFace
		}
		if err != nil {
			// Per-frame failures never abort the session.
			log.WithError(err).WithField("frame", frame.Index).Debug("frame skipped")
			sess.skip(Skip{Frame: frame.Index, Err: err})
		} else if reading, ok := s.newReading(sess, frame, faces[0]); ok {
			if sess.record(reading) && s.opts.OnReading != nil {
				s.opts.OnReading(reading)
			}
		} else {
			sess.skip(Skip{Frame: frame.Index, Err: types.ErrNoFace})
		}

		if s.opts.Interval > 0 {
			timer := time.NewTimer(s.opts.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				reason = s.ctxReason(ctx, sess)
				return
			case <-timer.C:
			}
		}
	}
}

func (s *Sampler) shouldStop(ctx context.Context, sess *Session) (StopReason, bool) {
	if sess.stopRequested() {
		return StopRequested, true
	}
	if ctx.Err() != nil {
		return s.ctxReason(ctx, sess), true
	}
	if s.opts.Now().Sub(sess.StartedAt) >= s.opts.Budget {
		return StopBudget, true
	}
	return "", false
}

func (s *Sampler) ctxReason(ctx context.Context, sess *Session) StopReason {
	switch {
	case sess.stopRequested():
		return StopRequested
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return StopBudget
	default:
		return StopCancelled
	}
}

// newReading builds a reading for the primary face. The dominant label is derived
// from the scores; the classifier's own label only counts when it sent no scores.
func (s *Sampler) newReading(sess *Session, frame types.Frame, face types.FaceEmotion) (types.EmotionReading, bool) {
	scores := make(map[string]float64, len(face.Emotion))
	for label, v := range face.Emotion {
		if v < 0 {
			v = 0
		}
		scores[label] = v
	}

	dominant := aggregate.DominantLabel(scores)
	if dominant == "" {
		dominant = face.DominantEmotion
	}
	if dominant == "" {
		return types.EmotionReading{}, false
	}

	ts := frame.CapturedAt
	if ts.IsZero() {
		ts = s.opts.Now()
	}
	elapsed := ts.Sub(sess.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	return types.EmotionReading{
		Timestamp:      ts,
		ElapsedSeconds: elapsed,
		Scores:         scores,
		DominantLabel:  dominant,
	}, true
}
