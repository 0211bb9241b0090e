// Package capture provides the frame sources: a live camera and recorded video
// (both decoded by FFmpeg into a JPEG stream), and a single uploaded image.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/moodsense/internal/types"
	"github.com/andresmejia3/moodsense/internal/utils"
)

const megabyte = 1024 * 1024

// ErrSourceUnavailable means no frame could be obtained at open time. It is fatal for a session.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// Stream yields JPEG frames split out of an MJPEG byte stream.
//
// A live stream keeps only the newest undelivered frame, so a slow classifier
// always sees what the camera shows now rather than a backlog. A non-live
// stream delivers every frame in order.
type Stream struct {
	live    bool
	frames  chan types.Frame
	done    chan struct{}
	pending *types.Frame

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
	closer    func() error
}

func newStream(r io.Reader, live bool, closer func() error, now func() time.Time) *Stream {
	s := &Stream{
		live:   live,
		frames: make(chan types.Frame, 1),
		done:   make(chan struct{}),
		closer: closer,
	}
	go s.pump(r, now)
	return s
}

func (s *Stream) pump(r io.Reader, now func() time.Time) {
	defer close(s.frames)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	index := 0
	for scanner.Scan() {
		index++
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())
		f := types.Frame{Index: index, CapturedAt: now(), Data: data}

		if s.live {
			s.offerLatest(f)
			continue
		}
		select {
		case s.frames <- f:
		case <-s.done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.setErr(err)
}

// offerLatest replaces any undelivered frame with f. pump is the only sender.
func (s *Stream) offerLatest(f types.Frame) {
	select {
	case s.frames <- f:
		return
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- f:
	default:
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return io.EOF
	}
	return s.err
}

// Next returns the next frame, io.EOF at the end of the stream, or the decoder's error.
func (s *Stream) Next(ctx context.Context) (types.Frame, error) {
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, nil
	}
	select {
	case <-ctx.Done():
		return types.Frame{}, ctx.Err()
	case <-s.done:
		return types.Frame{}, io.ErrClosedPipe
	case f, ok := <-s.frames:
		if !ok {
			return types.Frame{}, s.terminalErr()
		}
		return f, nil
	}
}

// awaitFirst blocks until the first frame arrives and keeps it for the first Next call.
func (s *Stream) awaitFirst(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f, err := s.Next(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no frame within %s", ErrSourceUnavailable, timeout)
		}
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	s.pending = &f
	return nil
}

// Close stops the decoder and releases the device. It is idempotent and unblocks Next.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			s.closeErr = s.closer()
		}
	})
	return s.closeErr
}
