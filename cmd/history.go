package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodsense/internal/utils"
)

var (
	historyLimit       int
	historyAssessments bool
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List stored sessions, or show one session's timeline",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := requireDB(cmd.Context()); err != nil {
			utils.Die("Database unavailable", err, nil)
		}
		switch {
		case len(args) == 1:
			runShowSession(cmd.Context(), args[0])
		case historyAssessments:
			runListAssessments(cmd.Context())
		default:
			runListSessions(cmd.Context())
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of rows")
	historyCmd.Flags().BoolVarP(&historyAssessments, "assessments", "a", false, "List quiz assessments instead of sessions")
	rootCmd.AddCommand(historyCmd)
}

func runListSessions(ctx context.Context) {
	sessions, err := DB.ListSessions(ctx, historyLimit)
	if err != nil {
		utils.Die("Failed to list sessions", err, nil)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found in database.")
		return
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID[:min(8, len(s.ID))],
			s.Kind,
			s.Source,
			fmtTime(s.StartedAt),
			fmt.Sprintf("%.1fs", s.DurationSeconds),
			fmt.Sprintf("%d", s.SampleCount),
			titleLabel(s.DominantEmotion),
			fmt.Sprintf("%d/5", s.StressLevel),
		})
	}
	fmt.Println(renderTable([]string{"ID", "Kind", "Source", "Started", "Duration", "Samples", "Emotion", "Stress"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight}))
}

func runListAssessments(ctx context.Context) {
	list, err := DB.ListAssessments(ctx, historyLimit)
	if err != nil {
		utils.Die("Failed to list assessments", err, nil)
	}
	if len(list) == 0 {
		fmt.Println("No assessments found in database.")
		return
	}

	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{
			a.ID[:min(8, len(a.ID))],
			a.Topic,
			a.StudentID,
			fmtTime(a.StartedAt),
			fmt.Sprintf("%d/%d", a.CorrectAnswers, a.TotalQuestions),
			fmt.Sprintf("%.2f%%", a.ScorePercentage),
			fmt.Sprintf("%.2f", a.AverageStress),
		})
	}
	fmt.Println(renderTable([]string{"ID", "Topic", "Student", "Started", "Correct", "Score", "Avg Stress"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}))
}

func runShowSession(ctx context.Context, id string) {
	summary, err := DB.GetSession(ctx, id)
	if err != nil {
		utils.Die("Failed to load session", err, nil)
	}
	fmt.Println(renderSummary(summary))

	if len(summary.Timeline) == 0 {
		return
	}
	rows := make([][]string, 0, len(summary.Timeline))
	for _, r := range summary.Timeline {
		rows = append(rows, []string{
			fmt.Sprintf("%.2fs", r.ElapsedSeconds),
			titleLabel(r.DominantLabel),
			fmt.Sprintf("%.1f", r.Scores[r.DominantLabel]),
		})
	}
	fmt.Println(renderTable([]string{"Elapsed", "Dominant", "Score"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight}))
}
