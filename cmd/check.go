package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodsense/internal/types"
	"github.com/andresmejia3/moodsense/internal/utils"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the question service, camera and classifier are ready",
	Run: func(cmd *cobra.Command, args []string) {
		if !runChecks(cmd.Context(), cmd.OutOrStdout()) {
			utils.Die("System not ready", errors.New("one or more readiness checks failed"), nil)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// runChecks probes every collaborator a quiz needs and prints one line per check.
func runChecks(ctx context.Context, w io.Writer) bool {
	fmt.Fprintf(w, "\n%s\n🔍 SYSTEM READINESS CHECK\n%s\n", rule, rule)
	ready := true

	fmt.Fprintln(w, "\n1️⃣ Checking question service...")
	if h, err := newQuestionsClient(Cfg).Health(ctx); err != nil {
		fmt.Fprintf(w, "   ❌ Question service is not reachable at %s: %v\n", Cfg.Questions.URL, err)
		ready = false
	} else {
		fmt.Fprintf(w, "   ✅ Question service is running (%s)\n", h.Message)
	}

	fmt.Fprintln(w, "\n2️⃣ Checking camera...")
	var frame types.Frame
	src, err := openSource(ctx, Cfg, sourceFlags{}, Log)
	if err != nil {
		fmt.Fprintf(w, "   ❌ Camera could not be opened: %v\n", err)
		fmt.Fprintln(w, "   📝 Check that it is connected and not used by another app.")
		ready = false
	} else {
		frame, err = src.Next(ctx)
		_ = src.Close()
		if err != nil {
			fmt.Fprintf(w, "   ❌ Camera opened but cannot read frames: %v\n", err)
			ready = false
		} else {
			fmt.Fprintln(w, "   ✅ Camera is working")
		}
	}

	fmt.Fprintf(w, "\n3️⃣ Checking %s classifier...\n", Cfg.Classifier.Backend)
	clf, err := newClassifier(Cfg)
	if err != nil {
		fmt.Fprintf(w, "   ❌ Classifier could not start: %v\n", err)
		ready = false
	} else {
		if frame.Data != nil {
			_, err := clf.Classify(ctx, frame)
			switch {
			case err == nil, errors.Is(err, types.ErrNoFace):
				fmt.Fprintln(w, "   ✅ Emotion model ready")
			default:
				fmt.Fprintf(w, "   ❌ Emotion model failed on a camera frame: %v\n", err)
				if logs := clf.Cmd().Logs(); logs != "" {
					fmt.Fprintf(w, "   %s\n", logs)
				}
				ready = false
			}
		} else {
			fmt.Fprintln(w, "   ⚠️  No camera frame to probe with, the model will initialise on first use")
		}
		clf.Close()
	}

	fmt.Fprintf(w, "\n%s\n", rule)
	if ready {
		fmt.Fprintln(w, "✅ ALL SYSTEMS READY!")
	} else {
		fmt.Fprintln(w, "❌ SOME SYSTEMS NOT READY")
	}
	fmt.Fprintln(w, rule)
	return ready
}
