package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/andresmejia3/moodsense/internal/aggregate"
	"github.com/andresmejia3/moodsense/internal/quiz"
	"github.com/andresmejia3/moodsense/internal/types"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func titleLabel(label string) string {
	return quiz.TitleLabel(label)
}

// renderSummary shows the per-label breakdown followed by the session figures.
func renderSummary(s types.EmotionSummary) string {
	labels := aggregate.OrderedLabels(s.AverageScorePerLabel)
	for _, l := range aggregate.OrderedLabels(s.EmotionFrequencyPercent) {
		if _, ok := s.AverageScorePerLabel[l]; !ok {
			labels = append(labels, l)
		}
	}

	rows := make([][]string, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []string{
			titleLabel(l),
			fmt.Sprintf("%.1f%%", s.EmotionFrequencyPercent[l]),
			fmt.Sprintf("%.2f", s.AverageScorePerLabel[l]),
		})
	}

	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString(renderTable([]string{"Emotion", "Dominant", "Avg Score"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
		b.WriteString("\n")
	}
	b.WriteString(renderTable([]string{"Field", "Value"}, [][]string{
		{"Samples", fmt.Sprintf("%d", s.SampleCount)},
		{"Dominant emotion", titleLabel(s.DominantEmotion)},
		{"Stress level", fmt.Sprintf("%d/5", s.StressLevel)},
		{"Duration", fmt.Sprintf("%.1fs", s.DurationSeconds)},
	}, nil))
	return b.String()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
