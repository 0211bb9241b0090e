package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodsense/internal/artifact"
	"github.com/andresmejia3/moodsense/internal/clients"
	"github.com/andresmejia3/moodsense/internal/sampler"
	"github.com/andresmejia3/moodsense/internal/store"
	"github.com/andresmejia3/moodsense/internal/types"
	"github.com/andresmejia3/moodsense/internal/utils"
	"github.com/andresmejia3/moodsense/internal/worker"
)

// CaptureOptions holds the flags of the capture command.
type CaptureOptions struct {
	Source    sourceFlags
	Duration  time.Duration
	Questions int
	Topic     string
	JSON      bool
	NoSave    bool
}

var captureOpts CaptureOptions

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Sample emotions for a fixed duration and print the summary",
	Long: `Samples facial emotions from the camera (or a video/image) for a fixed duration,
aggregates them into a dominant emotion and a 1-5 stress level, and writes
emotion_summary_<timestamp>.json. With --questions it also asks the question
service for questions adapted to the result.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCapture(cmd.Context(), captureOpts, cmd.Flags().Changed("duration"))
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureOpts.Source.Video, "video", "", "Analyse a recorded video instead of the camera")
	captureCmd.Flags().StringVar(&captureOpts.Source.Image, "image", "", "Analyse a single image instead of the camera")
	captureCmd.Flags().DurationVarP(&captureOpts.Duration, "duration", "d", 0, "Sampling duration (default: capture.duration from config)")
	captureCmd.Flags().IntVarP(&captureOpts.Questions, "questions", "q", 0, "Generate this many questions from the result (0 = none)")
	captureCmd.Flags().StringVarP(&captureOpts.Topic, "topic", "t", "General Knowledge", "Topic for generated questions")
	captureCmd.Flags().BoolVar(&captureOpts.JSON, "json", false, "Print the summary as JSON instead of a table")
	captureCmd.Flags().BoolVar(&captureOpts.NoSave, "no-save", false, "Do not write the JSON result file")
	rootCmd.AddCommand(captureCmd)
}

func validateCaptureFlags(opts *CaptureOptions, durationSet bool) error {
	if err := opts.Source.validate(); err != nil {
		return err
	}
	if !durationSet {
		opts.Duration = Cfg.Capture.Duration
	}
	if opts.Duration <= 0 {
		return fmt.Errorf("--duration must be positive, got %s", opts.Duration)
	}
	if opts.Questions < 0 {
		return fmt.Errorf("--questions must not be negative, got %d", opts.Questions)
	}
	return nil
}

// runCapture samples one fixed-duration session: open source, classify, summarize, persist.
func runCapture(ctx context.Context, opts CaptureOptions, durationSet bool) {
	if err := validateCaptureFlags(&opts, durationSet); err != nil {
		utils.Die("Invalid flags", err, nil)
	}

	clf, err := newClassifier(Cfg)
	if err != nil {
		utils.Die("Classifier startup failed", err, nil)
	}
	defer clf.Close()

	// A missing source is fatal: no partial session is produced.
	src, err := openSource(ctx, Cfg, opts.Source, Log)
	if err != nil {
		utils.Die("Frame source unavailable", err, nil)
	}
	fmt.Fprintf(os.Stderr, "📸 Sampling emotions from %s for %s...\n", opts.Source.name(), opts.Duration)

	var bar *progressbar.ProgressBar
	if isTerminal(os.Stderr) {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("😶 Readings"),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
		)
	}

	smp, err := sampler.New(src, clf, sampler.Options{
		Interval: Cfg.Sampling.Interval,
		Budget:   opts.Duration,
		Logger:   Log,
		OnReading: func(types.EmotionReading) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if err != nil {
		_ = src.Close()
		utils.Die("Invalid sampling options", err, nil)
	}

	sess := smp.Start(ctx)
	select {
	case <-sess.Done():
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\n⚠️  Interrupted, keeping what was sampled so far.")
	}
	res, err := sess.StopAndWait(Cfg.Sampling.StopTimeout)
	if err != nil {
		Log.WithError(err).Warn("sampling session did not shut down cleanly")
	}
	if bar != nil {
		_ = bar.Finish()
	}
	reportSkips(res, clf)

	summary := res.Summary()
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	} else {
		fmt.Println()
		fmt.Println(renderSummary(summary))
	}

	// Background context: an interrupted capture still gets persisted.
	persistCtx := context.Background()
	if !opts.NoSave {
		path, err := artifact.WriteSummary(Cfg.Output.Dir, res.StoppedAt, summary)
		if err != nil {
			utils.Die("Failed to save summary", err, nil)
		}
		fmt.Fprintf(os.Stderr, "💾 Summary saved to: %s\n", path)
	}
	if DB != nil {
		err := DB.SaveSession(persistCtx, store.SessionInput{
			ID:        res.ID,
			Kind:      store.KindCapture,
			Source:    opts.Source.name(),
			StartedAt: res.StartedAt,
			Summary:   summary,
		})
		if err != nil {
			utils.Die("Failed to store session", err, nil)
		}
		Log.WithField("session", res.ID).Info("session stored")
	}

	if opts.Questions > 0 && ctx.Err() == nil {
		if err := requestQuestions(ctx, opts, summary); err != nil {
			utils.Die("Question generation failed", err, nil)
		}
	}
}

// reportSkips logs why frames produced no reading, with the worker's stderr when it crashed.
func reportSkips(res sampler.Result, clf *classifierHandle) {
	fields := logrus.Fields{
		"session":  res.ID,
		"frames":   res.Frames,
		"readings": len(res.Readings),
		"skipped":  len(res.Skips),
		"reason":   res.Reason,
	}
	Log.WithFields(fields).Info("sampling finished")

	if len(res.Skips) == 0 || len(res.Readings) > 0 {
		return
	}
	last := res.Skips[len(res.Skips)-1].Err
	entry := Log.WithError(last)
	if errors.Is(last, worker.ErrWorkerDead) {
		entry = entry.WithField("worker_logs", clf.Cmd().Logs())
	}
	entry.Warn("no frame produced a reading, reporting the neutral default")
}

func requestQuestions(ctx context.Context, opts CaptureOptions, summary types.EmotionSummary) error {
	student := clients.StudentData{StudentID: Cfg.Student.ID, Grade: Cfg.Student.Grade}
	req := clients.NewGenerateReq(opts.Topic, student, &summary, opts.Questions)

	fmt.Fprintf(os.Stderr, "📡 Generating %d question(s) for stress level %d/5...\n", opts.Questions, summary.StressLevel)
	qs, err := newQuestionsClient(Cfg).Generate(ctx, req)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(qs))
	for i, q := range qs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d/5", q.Difficulty),
			q.BloomLevel,
			q.Type,
			q.QuestionText,
		})
	}
	fmt.Println(renderTable([]string{"#", "Difficulty", "Bloom", "Type", "Question"}, rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft}))
	return nil
}
