package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"foley/internal/runstore"
)

var titleCaser = cases.Title(language.English)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "s"
}

func formatIntervals(intervals []runstore.Interval) string {
	parts := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		parts = append(parts, fmt.Sprintf("%.2f–%.2f", iv.Start, iv.End))
	}
	return strings.Join(parts, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// sampleCount is the number of sample indices with at least one asset.
func sampleCount(label runstore.Label) int {
	highest := -1
	for _, a := range label.Assets {
		highest = max(highest, a.Sample)
	}
	return highest + 1
}

func renderRunsTable(out io.Writer, runs []runstore.Summary) {
	style := styleFor(out)
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			style.status(string(r.Status)),
			r.Stage,
			strconv.Itoa(r.Labels),
			filepath.Base(r.VideoPath),
			formatTime(r.UpdatedAt),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Status", "Stage", "Labels", "Video", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func renderRunDetail(out io.Writer, run runstore.Run) {
	style := styleFor(out)
	fmt.Fprintln(out, style.heading("Run "+run.ID))
	fmt.Fprintf(out, "  Video:    %s (%s)\n", run.VideoPath, formatSeconds(run.VideoDuration))
	fmt.Fprintf(out, "  Status:   %s at %s\n", style.status(string(run.Status)), run.Stage)
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", run.ErrorMessage)
	}
	if run.Summary != "" {
		fmt.Fprintf(out, "  Summary:  %s\n", run.Summary)
	}
	if run.AudioPath != "" {
		fmt.Fprintf(out, "  Audio:    %s (sample %d)\n", run.AudioPath, run.SelectedSample)
	}
	if run.OutputPath != "" {
		fmt.Fprintf(out, "  Output:   %s\n", run.OutputPath)
	}
	fmt.Fprintf(out, "  Updated:  %s\n", formatTime(run.UpdatedAt))

	if len(run.Labels) == 0 {
		fmt.Fprintln(out, "\nNo labels detected")
		return
	}
	rows := make([][]string, 0, len(run.Labels))
	for _, l := range run.Labels {
		prompt := l.Prompt
		if prompt == "" && l.ErrorMessage != "" {
			prompt = "(" + l.ErrorMessage + ")"
		}
		rows = append(rows, []string{
			titleCaser.String(l.Name),
			style.status(l.Status),
			yesNo(l.Relevant),
			formatSeconds(l.DurationSeconds),
			formatIntervals(l.Intervals),
			strconv.Itoa(sampleCount(l)),
			prompt,
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Label", "Status", "Sound", "On screen", "Intervals", "Samples", "Prompt"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	))
}
