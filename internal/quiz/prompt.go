package quiz

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/andresmejia3/moodsense/internal/types"
)

var rule = strings.Repeat("=", 60)

// lineReader turns a blocking reader into a channel of lines so that waiting
// for an answer can be abandoned when the context is cancelled.
type lineReader struct {
	lines chan string
	err   chan error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string), err: make(chan error, 1)}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lr.lines <- sc.Text()
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		lr.err <- err
		close(lr.lines)
	}()
	return lr
}

// next returns the next line, io.EOF once input is exhausted, or ctx's error.
func (lr *lineReader) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lr.lines:
		if ok {
			return line, nil
		}
		err := <-lr.err
		lr.err <- err // keep it for later calls
		return "", err
	}
}

// readAnswer prompts until it gets a usable answer. Multiple-choice questions
// require an option number.
func (r *Runner) readAnswer(ctx context.Context, q types.Question) (types.Answer, error) {
	if !q.IsMultipleChoice() {
		fmt.Fprint(r.out, "\n📝 Your answer: ")
		line, err := r.in.next(ctx)
		if err != nil {
			return types.Answer{}, err
		}
		return types.Answer{Text: strings.TrimSpace(line), AnsweredAt: r.opts.Now()}, nil
	}

	for {
		fmt.Fprintf(r.out, "\n📝 Enter your answer (1-%d): ", len(q.Options))
		line, err := r.in.next(ctx)
		if err != nil {
			return types.Answer{}, err
		}
		num, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(r.out, "⚠️  Please enter a valid number")
			continue
		}
		if num < 1 || num > len(q.Options) {
			fmt.Fprintf(r.out, "⚠️  Please enter a number between 1 and %d\n", len(q.Options))
			continue
		}
		return types.Answer{Text: q.Options[num-1], OptionNumber: num, AnsweredAt: r.opts.Now()}, nil
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func displayQuestion(w io.Writer, q types.Question, n int) {
	fmt.Fprintf(w, "\nQUESTION #%d\n%s\n", n, rule)
	fmt.Fprintf(w, "📚 Topic: %s\n", orNA(q.Topic))
	fmt.Fprintf(w, "🎯 Difficulty: %d/5\n", q.Difficulty)
	fmt.Fprintf(w, "🧠 Bloom Level: %s\n", orNA(q.BloomLevel))
	fmt.Fprintf(w, "📝 Type: %s\n", orNA(q.Type))
	fmt.Fprintf(w, "%s\n❓ %s\n%s\n", strings.Repeat("-", 60), orNA(q.QuestionText), strings.Repeat("-", 60))
	if len(q.Options) > 0 {
		fmt.Fprintln(w, "\nOptions:")
		for i, opt := range q.Options {
			fmt.Fprintf(w, "  %d. %s\n", i+1, opt)
		}
	}
}

// TitleLabel renders an emotion label for display.
func TitleLabel(label string) string {
	return cases.Title(language.Und).String(label)
}

func displayEmotion(w io.Writer, s types.EmotionSummary) {
	fmt.Fprintln(w, "\n📊 Your emotional state while answering:")
	if s.SampleCount == 0 {
		fmt.Fprintln(w, "   ⚠️  No emotion data detected, assuming neutral.")
	}
	fmt.Fprintf(w, "   Dominant Emotion: %s\n", TitleLabel(s.DominantEmotion))
	fmt.Fprintf(w, "   Stress Level: %d/5\n", s.StressLevel)
	fmt.Fprintf(w, "   Frames Analyzed: %d\n", s.SampleCount)
}

func displayFeedback(w io.Writer, q types.Question, correct bool) {
	fmt.Fprintf(w, "\n%s\n📊 FEEDBACK\n%s\n", rule, rule)
	if correct {
		fmt.Fprintln(w, "✅ Correct! Well done!")
	} else {
		fmt.Fprintln(w, "❌ Incorrect")
		fmt.Fprintf(w, "💡 Correct Answer: %s\n", q.CorrectAnswer)
	}
	fmt.Fprintf(w, "\n📖 Explanation:\n   %s\n%s\n", orNA(q.Explanation), rule)
}
