package sampler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/moodsense/internal/types"
)

// fakeSource serves n frames (or unlimited frames when n < 0) and then io.EOF.
type fakeSource struct {
	n      int
	served int
	delay  time.Duration
	closed atomic.Int32
	once   sync.Once
	gone   chan struct{}
}

func newFakeSource(n int, delay time.Duration) *fakeSource {
	return &fakeSource{n: n, delay: delay, gone: make(chan struct{})}
}

func (f *fakeSource) Next(ctx context.Context) (types.Frame, error) {
	if f.n >= 0 && f.served >= f.n {
		return types.Frame{}, io.EOF
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-f.gone:
			return types.Frame{}, io.ErrClosedPipe
		case <-time.After(f.delay):
		}
	}
	f.served++
	return types.Frame{Index: f.served, CapturedAt: time.Now(), Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}, nil
}

func (f *fakeSource) Close() error {
	f.closed.Add(1)
	f.once.Do(func() { close(f.gone) })
	return nil
}

type classifierFunc func(ctx context.Context, frame types.Frame) ([]types.FaceEmotion, error)

func (c classifierFunc) Classify(ctx context.Context, frame types.Frame) ([]types.FaceEmotion, error) {
	return c(ctx, frame)
}

func face(scores map[string]float64) types.FaceEmotion {
	return types.FaceEmotion{Emotion: scores}
}

func happyClassifier() classifierFunc {
	return func(context.Context, types.Frame) ([]types.FaceEmotion, error) {
		return []types.FaceEmotion{face(map[string]float64{"happy": 90, "neutral": 10})}, nil
	}
}

func start(t *testing.T, src FrameSource, clf Classifier, opts Options) *Session {
	t.Helper()
	if opts.Budget == 0 {
		opts.Budget = 5 * time.Second
	}
	s, err := New(src, clf, opts)
	require.NoError(t, err)
	return s.Start(context.Background())
}

func TestNewValidates(t *testing.T) {
	src := newFakeSource(0, 0)
	_, err := New(nil, happyClassifier(), Options{Budget: time.Second})
	assert.Error(t, err)
	_, err = New(src, nil, Options{Budget: time.Second})
	assert.Error(t, err)
	_, err = New(src, happyClassifier(), Options{})
	assert.Error(t, err)
	_, err = New(src, happyClassifier(), Options{Budget: time.Second, Interval: -time.Second})
	assert.Error(t, err)
}

func TestSessionRecordsInOrderUntilSourceEnds(t *testing.T) {
	src := newFakeSource(5, 0)
	var seen []int
	sess := start(t, src, classifierFunc(func(_ context.Context, f types.Frame) ([]types.FaceEmotion, error) {
		if f.Index%2 == 0 {
			return []types.FaceEmotion{face(map[string]float64{"sad": 70, "happy": 30})}, nil
		}
		return []types.FaceEmotion{face(map[string]float64{"happy": 70, "sad": 30})}, nil
	}), Options{OnReading: func(r types.EmotionReading) { seen = append(seen, len(r.DominantLabel)) }})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, StopSourceEnded, res.Reason)
	assert.Equal(t, 5, res.Frames)
	require.Len(t, res.Readings, 5)
	assert.Len(t, seen, 5)

	want := []string{"happy", "sad", "happy", "sad", "happy"}
	for i, r := range res.Readings {
		assert.Equal(t, want[i], r.DominantLabel)
		assert.GreaterOrEqual(t, r.ElapsedSeconds, 0.0)
		if i > 0 {
			assert.False(t, r.Timestamp.Before(res.Readings[i-1].Timestamp))
		}
	}
	assert.Equal(t, int32(1), src.closed.Load(), "source must be released exactly once")

	sum := res.Summary()
	assert.Equal(t, 5, sum.SampleCount)
	assert.Equal(t, "happy", sum.DominantEmotion)
}

func TestEveryFrameFailingYieldsNeutralSummary(t *testing.T) {
	src := newFakeSource(4, 0)
	boom := errors.New("model exploded")
	sess := start(t, src, classifierFunc(func(context.Context, types.Frame) ([]types.FaceEmotion, error) {
		return nil, boom
	}), Options{})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)

	assert.Empty(t, res.Readings)
	require.Len(t, res.Skips, 4)
	for _, sk := range res.Skips {
		assert.ErrorIs(t, sk.Err, boom)
	}

	sum := res.Summary()
	assert.Equal(t, 0, sum.SampleCount)
	assert.Equal(t, "neutral", sum.DominantEmotion)
	assert.Equal(t, 3, sum.StressLevel)
}

func TestNoFaceIsTypedSkip(t *testing.T) {
	src := newFakeSource(2, 0)
	sess := start(t, src, classifierFunc(func(context.Context, types.Frame) ([]types.FaceEmotion, error) {
		return nil, nil
	}), Options{})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, res.Skips, 2)
	assert.ErrorIs(t, res.Skips[0].Err, types.ErrNoFace)
}

func TestPrimaryFaceOnly(t *testing.T) {
	src := newFakeSource(1, 0)
	sess := start(t, src, classifierFunc(func(context.Context, types.Frame) ([]types.FaceEmotion, error) {
		return []types.FaceEmotion{
			face(map[string]float64{"fear": 80}),
			face(map[string]float64{"happy": 99}),
		}, nil
	}), Options{})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, res.Readings, 1)
	assert.Equal(t, "fear", res.Readings[0].DominantLabel)
	assert.NotContains(t, res.Readings[0].Scores, "happy")
}

func TestClassifierLabelUsedWithoutScores(t *testing.T) {
	src := newFakeSource(1, 0)
	sess := start(t, src, classifierFunc(func(context.Context, types.Frame) ([]types.FaceEmotion, error) {
		return []types.FaceEmotion{{DominantEmotion: "surprise"}}, nil
	}), Options{})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, res.Readings, 1)
	assert.Equal(t, "surprise", res.Readings[0].DominantLabel)
}

func TestExternalStopKeepsReadings(t *testing.T) {
	src := newFakeSource(-1, 2*time.Millisecond)
	recorded := make(chan struct{}, 1)
	sess := start(t, src, happyClassifier(), Options{
		OnReading: func(types.EmotionReading) {
			select {
			case recorded <- struct{}{}:
			default:
			}
		},
	})

	select {
	case <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("no reading recorded")
	}

	res, err := sess.StopAndWait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, StopRequested, res.Reason)
	assert.NotEmpty(t, res.Readings)
	assert.Equal(t, int32(1), src.closed.Load())

	// Closed sessions do not change.
	assert.Len(t, sess.Snapshot(), len(res.Readings))
	assert.False(t, sess.record(types.EmotionReading{DominantLabel: "sad"}))
}

func TestBudgetForcesStop(t *testing.T) {
	src := newFakeSource(-1, time.Millisecond)
	sess := start(t, src, happyClassifier(), Options{Budget: 50 * time.Millisecond})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, StopBudget, res.Reason)
	assert.Less(t, res.Duration(), time.Second)
}

func TestIntervalSpacing(t *testing.T) {
	src := newFakeSource(-1, 0)
	sess := start(t, src, happyClassifier(), Options{
		Interval: 40 * time.Millisecond,
		Budget:   130 * time.Millisecond,
	})

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)
	// Frames at roughly 0, 40, 80 and 120ms.
	assert.GreaterOrEqual(t, len(res.Readings), 2)
	assert.LessOrEqual(t, len(res.Readings), 5)
}

func TestWaitTimeoutReleasesSource(t *testing.T) {
	src := newFakeSource(-1, 0)
	release := make(chan struct{})
	defer close(release)

	entered := make(chan struct{})
	var once sync.Once
	sess := start(t, src, classifierFunc(func(context.Context, types.Frame) ([]types.FaceEmotion, error) {
		once.Do(func() { close(entered) })
		<-release // a model call that ignores cancellation
		return []types.FaceEmotion{face(map[string]float64{"happy": 1})}, nil
	}), Options{})

	<-entered
	res, err := sess.StopAndWait(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Equal(t, StopRequested, res.Reason)
	assert.Empty(t, res.Readings)
	assert.Equal(t, int32(1), src.closed.Load(), "source must be released even when the goroutine is stuck")
}

func TestContextCancel(t *testing.T) {
	src := newFakeSource(-1, time.Millisecond)
	s, err := New(src, happyClassifier(), Options{Budget: 5 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sess := s.Start(ctx)
	cancel()

	res, err := sess.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, res.Reason)
}
