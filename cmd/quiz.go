package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodsense/internal/artifact"
	"github.com/andresmejia3/moodsense/internal/quiz"
	"github.com/andresmejia3/moodsense/internal/sampler"
	"github.com/andresmejia3/moodsense/internal/types"
	"github.com/andresmejia3/moodsense/internal/utils"
)

// QuizOptions holds the flags of the quiz command.
type QuizOptions struct {
	Topic     string
	Questions int
	StudentID string
	Grade     string
	Pause     time.Duration
	SkipCheck bool
}

var quizOpts QuizOptions

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Run an adaptive assessment that reacts to your stress level",
	Long: `Asks generated questions one at a time. While you answer, emotions are sampled
in the background; the resulting stress level shapes the next question.
Results are written to realtime_assessment_<timestamp>.json.`,
	Run: func(cmd *cobra.Command, args []string) {
		runQuiz(cmd.Context(), quizOpts, cmd.Flags())
	},
}

func init() {
	quizCmd.Flags().StringVarP(&quizOpts.Topic, "topic", "t", "General Knowledge", "Assessment topic")
	quizCmd.Flags().IntVarP(&quizOpts.Questions, "questions", "q", 0, "Number of questions (default: questions.count from config)")
	quizCmd.Flags().StringVar(&quizOpts.StudentID, "student", "", "Student ID (default: student.id from config)")
	quizCmd.Flags().StringVar(&quizOpts.Grade, "grade", "", "Grade level (default: student.grade from config)")
	quizCmd.Flags().DurationVar(&quizOpts.Pause, "pause", 3*time.Second, "Break between questions")
	quizCmd.Flags().BoolVar(&quizOpts.SkipCheck, "skip-check", false, "Skip the readiness check")
	rootCmd.AddCommand(quizCmd)
}

type flagChanges interface{ Changed(name string) bool }

func validateQuizFlags(opts *QuizOptions, flags flagChanges) error {
	if !flags.Changed("questions") {
		opts.Questions = Cfg.Questions.Count
	}
	if opts.Questions < 1 {
		return fmt.Errorf("--questions must be at least 1, got %d", opts.Questions)
	}
	if opts.StudentID == "" {
		opts.StudentID = Cfg.Student.ID
	}
	if opts.Grade == "" {
		opts.Grade = Cfg.Student.Grade
	}
	if opts.Pause < 0 {
		return fmt.Errorf("--pause must not be negative, got %s", opts.Pause)
	}
	return nil
}

func runQuiz(ctx context.Context, opts QuizOptions, flags flagChanges) {
	if err := validateQuizFlags(&opts, flags); err != nil {
		utils.Die("Invalid flags", err, nil)
	}

	if !opts.SkipCheck {
		if !runChecks(ctx, os.Stdout) {
			utils.Die("System not ready", fmt.Errorf("fix the issues above or rerun with --skip-check"), nil)
		}
	}

	clf, err := newClassifier(Cfg)
	if err != nil {
		utils.Die("Classifier startup failed", err, nil)
	}
	defer clf.Close()

	open := func(ctx context.Context) (sampler.FrameSource, error) {
		return openSource(ctx, Cfg, sourceFlags{}, Log)
	}

	fmt.Printf("\n%s\n📋 ASSESSMENT OVERVIEW\n", rule)
	fmt.Printf("Topic: %s\nStudent ID: %s\nGrade: %s\nTotal Questions: %d\n%s\n", opts.Topic, opts.StudentID, opts.Grade, opts.Questions, rule)

	runner, err := quiz.New(newQuestionsClient(Cfg), open, clf, os.Stdin, os.Stdout, quiz.Options{
		Topic:       opts.Topic,
		StudentID:   opts.StudentID,
		Grade:       opts.Grade,
		Questions:   opts.Questions,
		Budget:      Cfg.Sampling.Budget,
		Interval:    Cfg.Sampling.Interval,
		StopTimeout: Cfg.Sampling.StopTimeout,
		Pause:       opts.Pause,
		Logger:      Log,
	})
	if err != nil {
		utils.Die("Invalid quiz options", err, nil)
	}

	a, runErr := runner.Run(ctx)

	// Whatever was answered is kept, even when the run was cut short.
	path, err := artifact.WriteAssessment(Cfg.Output.Dir, a)
	if err != nil {
		utils.Die("Failed to save assessment", err, nil)
	}
	if DB != nil {
		if err := DB.SaveAssessment(context.Background(), a); err != nil {
			utils.Die("Failed to store assessment", err, nil)
		}
		Log.WithField("assessment", a.ID).Info("assessment stored")
	}

	printAssessment(a)
	fmt.Printf("\n💾 Results saved to: %s\n", path)

	if runErr != nil && ctx.Err() == nil {
		utils.Die("Assessment aborted", runErr, clf.Cmd())
	}
}

const rule = "============================================================"

func printAssessment(a types.Assessment) {
	fmt.Printf("\n%s\n🎉 ASSESSMENT COMPLETE!\n%s\n", rule, rule)
	fmt.Printf("📊 Final Score: %d/%d (%.2f%%)\n", a.CorrectAnswers, a.TotalQuestions, a.ScorePercentage)

	if len(a.Records) == 0 {
		return
	}
	rows := make([][]string, 0, len(a.Records))
	for _, rec := range a.Records {
		mark := "❌"
		if rec.IsCorrect {
			mark = "✅"
		}
		rows = append(rows, []string{
			fmt.Sprintf("Q%d", rec.QuestionNumber),
			titleLabel(rec.Emotion.DominantEmotion),
			fmt.Sprintf("%d/5", rec.Emotion.StressLevel),
			fmt.Sprintf("%d", rec.Emotion.SampleCount),
			fmt.Sprintf("%d/5", rec.Question.Difficulty),
			mark,
		})
	}
	fmt.Println("\n📈 EMOTION TRENDS THROUGHOUT ASSESSMENT:")
	fmt.Println(renderTable([]string{"Question", "Emotion", "Stress", "Frames", "Difficulty", "Correct"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}))

	fmt.Println(renderTable([]string{"Set", "Value"}, [][]string{
		{"Average stress", fmt.Sprintf("%.2f/5", a.Set.AverageStressLevel)},
		{"Peak stress", fmt.Sprintf("%d/5", a.Set.PeakStressLevel)},
		{"Dominant emotion", titleLabel(a.Set.DominantEmotion)},
		{"Frames analysed", fmt.Sprintf("%d", a.Set.TotalSamples)},
	}, nil))
}
