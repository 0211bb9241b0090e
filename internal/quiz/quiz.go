// Package quiz runs the adaptive assessment: one generated question at a time,
// with the student's emotions sampled while they answer.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/moodsense/internal/aggregate"
	"github.com/andresmejia3/moodsense/internal/clients"
	"github.com/andresmejia3/moodsense/internal/sampler"
	"github.com/andresmejia3/moodsense/internal/types"
)

// QuestionGenerator produces the next question. *clients.Questions satisfies it.
type QuestionGenerator interface {
	Generate(ctx context.Context, req clients.GenerateReq) ([]types.Question, error)
}

// SourceOpener opens a fresh frame source for one question. The sampler session closes it.
type SourceOpener func(ctx context.Context) (sampler.FrameSource, error)

// Options configures a quiz run.
type Options struct {
	Topic     string
	StudentID string
	Grade     string
	Questions int

	Budget      time.Duration // per-question sampling limit
	Interval    time.Duration
	StopTimeout time.Duration
	Pause       time.Duration // break between questions

	// OnRecord is called after each answered question.
	OnRecord func(types.QuestionRecord)
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

// Runner drives one assessment.
type Runner struct {
	gen  QuestionGenerator
	open SourceOpener
	clf  sampler.Classifier
	in   *lineReader
	out  io.Writer
	opts Options
}

// New validates the options and returns a Runner reading answers from in and
// writing prompts to out.
func New(gen QuestionGenerator, open SourceOpener, clf sampler.Classifier, in io.Reader, out io.Writer, opts Options) (*Runner, error) {
	if gen == nil || open == nil || clf == nil {
		return nil, errors.New("quiz: generator, source opener and classifier are required")
	}
	if opts.Questions < 1 {
		return nil, fmt.Errorf("quiz: need at least one question, got %d", opts.Questions)
	}
	if opts.Budget <= 0 {
		return nil, fmt.Errorf("quiz: sampling budget must be positive, got %s", opts.Budget)
	}
	if strings.TrimSpace(opts.Topic) == "" {
		opts.Topic = "General Knowledge"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Runner{gen: gen, open: open, clf: clf, in: newLineReader(in), out: out, opts: opts}, nil
}

// Run asks every question and returns the assessment. A frame source that cannot be
// opened aborts the run; the assessment up to that point is returned with the error.
// Questions the service fails to generate are skipped.
func (r *Runner) Run(ctx context.Context) (types.Assessment, error) {
	a := types.Assessment{
		ID:             uuid.NewString(),
		Topic:          r.opts.Topic,
		StudentID:      r.opts.StudentID,
		Grade:          r.opts.Grade,
		StartedAt:      r.opts.Now(),
		TotalQuestions: r.opts.Questions,
		Records:        []types.QuestionRecord{},
	}
	log := r.opts.Logger.WithField("assessment", a.ID)

	var (
		previous []clients.PreviousAnswer
		last     *types.EmotionSummary
		runErr   error
	)

loop:
	for n := 1; n <= r.opts.Questions; n++ {
		fmt.Fprintf(r.out, "\n%s\nQUESTION %d OF %d\n%s\n", rule, n, r.opts.Questions, rule)

		q, err := r.nextQuestion(ctx, n, previous, last)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			log.WithError(err).WithField("question", n).Warn("question generation failed")
			fmt.Fprintf(r.out, "❌ Failed to generate question %d. Skipping...\n", n)
			continue
		}
		displayQuestion(r.out, q, n)

		rec, err := r.ask(ctx, q, n)
		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out, "\n⚠️  Input closed, ending the assessment.")
			break loop
		case err != nil:
			runErr = err
			break loop
		}

		if rec.IsCorrect {
			a.CorrectAnswers++
		}
		a.Records = append(a.Records, rec)
		if r.opts.OnRecord != nil {
			r.opts.OnRecord(rec)
		}
		summary := rec.Emotion
		last = &summary
		previous = append(previous, clients.PreviousAnswer{
			QuestionNumber:  n,
			QuestionID:      q.QuestionID,
			Difficulty:      q.Difficulty,
			IsCorrect:       rec.IsCorrect,
			StressLevel:     summary.StressLevel,
			DominantEmotion: summary.DominantEmotion,
		})

		if n < r.opts.Questions && r.opts.Pause > 0 {
			fmt.Fprintf(r.out, "\n⏸️  Take a short break. Next question in %s...\n", r.opts.Pause)
			if err := sleep(ctx, r.opts.Pause); err != nil {
				runErr = err
				break
			}
		}
	}

	r.finish(&a)
	return a, runErr
}

func (r *Runner) nextQuestion(ctx context.Context, n int, previous []clients.PreviousAnswer, last *types.EmotionSummary) (types.Question, error) {
	student := clients.StudentData{
		StudentID:       r.opts.StudentID,
		Grade:           r.opts.Grade,
		QuestionNumber:  n,
		PreviousAnswers: previous,
	}
	qs, err := r.gen.Generate(ctx, clients.NewGenerateReq(r.opts.Topic, student, last, 1))
	if err != nil {
		return types.Question{}, err
	}
	if len(qs) == 0 {
		return types.Question{}, errors.New("no question returned")
	}
	return qs[0], nil
}

// ask samples emotions for as long as the student takes to answer one question.
func (r *Runner) ask(ctx context.Context, q types.Question, n int) (types.QuestionRecord, error) {
	src, err := r.open(ctx)
	if err != nil {
		return types.QuestionRecord{}, fmt.Errorf("question %d: %w", n, err)
	}
	smp, err := sampler.New(src, r.clf, sampler.Options{
		Interval: r.opts.Interval,
		Budget:   r.opts.Budget,
		Logger:   r.opts.Logger,
		Now:      r.opts.Now,
	})
	if err != nil {
		_ = src.Close()
		return types.QuestionRecord{}, err
	}

	sess := smp.Start(ctx)
	fmt.Fprintln(r.out, "📊 Monitoring your emotions in the background. Take your time.")

	answer, answerErr := r.readAnswer(ctx, q)

	res, err := sess.StopAndWait(r.opts.StopTimeout)
	if err != nil {
		r.opts.Logger.WithError(err).WithField("session", res.ID).Warn("sampling session did not shut down cleanly")
	}
	if answerErr != nil {
		return types.QuestionRecord{}, answerErr
	}

	summary := res.Summary()
	r.opts.Logger.WithFields(logrus.Fields{
		"session": res.ID,
		"frames":  res.Frames,
		"skipped": len(res.Skips),
		"reason":  res.Reason,
	}).Debug("question session closed")

	correct := IsCorrect(q.CorrectAnswer, answer.Text)
	displayEmotion(r.out, summary)
	displayFeedback(r.out, q, correct)

	return types.QuestionRecord{
		QuestionNumber: n,
		SessionID:      res.ID,
		Question:       q,
		Answer:         answer,
		IsCorrect:      correct,
		Emotion:        summary,
		Timestamp:      r.opts.Now(),
	}, nil
}

func (r *Runner) finish(a *types.Assessment) {
	a.EndedAt = r.opts.Now()
	a.ScorePercentage = ScorePercentage(a.CorrectAnswers, a.TotalQuestions)
	summaries := make([]types.EmotionSummary, 0, len(a.Records))
	for _, rec := range a.Records {
		summaries = append(summaries, rec.Emotion)
	}
	a.Set = aggregate.SummarizeSet(summaries)
}

// IsCorrect compares answers case-insensitively; either one containing the other counts.
// Blank answers are never correct.
func IsCorrect(expected, given string) bool {
	e := strings.ToLower(strings.TrimSpace(expected))
	g := strings.ToLower(strings.TrimSpace(given))
	if e == "" || g == "" {
		return false
	}
	return strings.Contains(g, e) || strings.Contains(e, g)
}

// ScorePercentage is correct/total as a percentage rounded to two decimals.
// Skipped questions count against the score.
func ScorePercentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
