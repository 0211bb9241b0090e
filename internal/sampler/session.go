package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andresmejia3/moodsense/internal/aggregate"
	"github.com/andresmejia3/moodsense/internal/types"
)

// ErrStopTimeout is returned by Wait when the sampling goroutine did not exit in time.
// The returned Result is still complete up to the moment the session was closed.
var ErrStopTimeout = errors.New("sampler: session did not stop in time")

// Skip records a frame that produced no reading.
type Skip struct {
	Frame int
	Err   error
}

// Result is the frozen content of a closed session.
type Result struct {
	ID        string
	Readings  []types.EmotionReading
	Skips     []Skip
	Frames    int
	StartedAt time.Time
	StoppedAt time.Time
	Reason    StopReason
}

// Duration is the wall-clock length of the session.
func (r Result) Duration() time.Duration {
	if r.StoppedAt.Before(r.StartedAt) {
		return 0
	}
	return r.StoppedAt.Sub(r.StartedAt)
}

// Summary aggregates the session's readings.
func (r Result) Summary() types.EmotionSummary {
	return aggregate.Summarize(r.Readings, r.Duration())
}

// Session is the reading buffer of one monitoring window. It accepts readings
// only while active and is immutable once closed.
type Session struct {
	ID        string
	StartedAt time.Time
	Budget    time.Duration

	cancel   context.CancelFunc
	src      FrameSource
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	releaseOnce sync.Once
	releaseErr  error

	mu        sync.Mutex
	closed    bool
	readings  []types.EmotionReading
	skips     []Skip
	frames    int
	stoppedAt time.Time
	reason    StopReason
}

func newSession(now func() time.Time, budget time.Duration, cancel context.CancelFunc, src FrameSource) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: now(),
		now:       now,
		Budget:    budget,
		cancel:    cancel,
		src:       src,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Stop asks the sampling goroutine to exit. It is safe to call from any goroutine, more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
	})
}

// Done is closed once the sampling goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the sampling goroutine exits or timeout elapses, then closes
// the session and releases the frame source. On timeout the session is closed
// anyway and ErrStopTimeout is returned alongside the result.
func (s *Session) Wait(timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case <-s.done:
	case <-timer.C:
		s.Stop()
		s.close(StopRequested, s.now())
		err = ErrStopTimeout
	}

	if releaseErr := s.release(); releaseErr != nil && err == nil {
		err = releaseErr
	}
	return s.result(), err
}

// StopAndWait is Stop followed by Wait.
func (s *Session) StopAndWait(timeout time.Duration) (Result, error) {
	s.Stop()
	return s.Wait(timeout)
}

// Snapshot returns a copy of the readings recorded so far.
func (s *Session) Snapshot() []types.EmotionReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EmotionReading, len(s.readings))
	copy(out, s.readings)
	return out
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Session) record(r types.EmotionReading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.readings = append(s.readings, r)
	return true
}

func (s *Session) skip(sk Skip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.skips = append(s.skips, sk)
	}
}

func (s *Session) countFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.frames++
	}
}

// close freezes the buffer. The first caller decides the reason and stop time.
func (s *Session) close(reason StopReason, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	s.stoppedAt = at
}

// finish runs on the sampling goroutine's way out.
func (s *Session) finish(reason StopReason, at time.Time) {
	s.close(reason, at)
	s.cancel()
	_ = s.release()
	close(s.done)
}

func (s *Session) release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.src.Close()
	})
	return s.releaseErr
}

func (s *Session) result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	readings := make([]types.EmotionReading, len(s.readings))
	copy(readings, s.readings)
	skips := make([]Skip, len(s.skips))
	copy(skips, s.skips)

	return Result{
		ID:        s.ID,
		Readings:  readings,
		Skips:     skips,
		Frames:    s.frames,
		StartedAt: s.StartedAt,
		StoppedAt: s.stoppedAt,
		Reason:    s.reason,
	}
}
