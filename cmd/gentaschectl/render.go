package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"gentasche/pkg/gentasche"
)

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
)

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newProgressBar(generations int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(generations,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Evolving"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("gen"),
		progressbar.OptionClearOnFinish(),
	)
}

func printRunSummary(w io.Writer, summary gentasche.RunSummary) {
	_, _ = bold.Fprintln(w, "Run complete")
	fmt.Fprintf(w, "run_id=%s dataset=%s tasks=%d processors=%d\n",
		summary.RunID, summary.Dataset, summary.Tasks, summary.Processors)
	fmt.Fprintf(w, "generations=%d evaluations=%d elapsed=%s stop=%s\n",
		summary.Generations, summary.Evaluations, summary.Elapsed.Round(time.Millisecond), summary.StopReason)
	_, _ = green.Fprintf(w, "best makespan=%s (generation %d)\n", formatScore(summary.BestScore), summary.BestGeneration)

	tasks := make([][]string, len(summary.Loads))
	for task, processor := range summary.BestAssignment {
		if processor >= 0 && processor < len(tasks) {
			tasks[processor] = append(tasks[processor], strconv.Itoa(task))
		}
	}

	table := tablewriter.NewWriter(w)
	table.Header("Processor", "Load", "Tasks")
	for p, load := range summary.Loads {
		_ = table.Append(strconv.Itoa(p), formatScore(load), strings.Join(tasks[p], " "))
	}
	_ = table.Render()

	if summary.ArtifactsDir != "" {
		fmt.Fprintf(w, "artifacts=%s\n", summary.ArtifactsDir)
	}
}

func printStatistics(w io.Writer, history []gentasche.GenerationStats) {
	_, _ = bold.Fprintln(w, "Generation statistics")
	table := tablewriter.NewWriter(w)
	table.Header("Generation", "Best", "Median", "Worst", "Mean", "StdDev")
	for _, s := range history {
		_ = table.Append(
			strconv.Itoa(s.Generation),
			formatScore(s.BestScore),
			formatScore(s.MedianScore),
			formatScore(s.WorstScore),
			formatScore(s.MeanScore),
			formatScore(s.StdDevScore),
		)
	}
	_ = table.Render()
}

func printRuns(w io.Writer, runs []gentasche.Run) {
	table := tablewriter.NewWriter(w)
	table.Header("Run ID", "Dataset", "Tasks", "Procs", "Gens", "Best", "Stop", "Created")
	for _, r := range runs {
		_ = table.Append(
			r.ID,
			r.Dataset,
			strconv.Itoa(r.Tasks),
			strconv.Itoa(r.Processors),
			strconv.Itoa(r.Generations),
			formatScore(r.BestScore),
			r.StopReason,
			r.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	_ = table.Render()
}

func printBest(w io.Writer, best gentasche.Assignment) {
	_, _ = bold.Fprintln(w, "Best assignment")
	fmt.Fprintf(w, "run_id=%s generation=%d makespan=%s\n", best.RunID, best.Generation, formatScore(best.Score))

	table := tablewriter.NewWriter(w)
	table.Header("Processor", "Load", "Tasks")
	for p, load := range best.Loads {
		var tasks []string
		for task, processor := range best.Processors {
			if processor == p {
				tasks = append(tasks, strconv.Itoa(task))
			}
		}
		_ = table.Append(strconv.Itoa(p), formatScore(load), strings.Join(tasks, " "))
	}
	_ = table.Render()
}

func printCompare(w io.Writer, summary gentasche.CompareSummary) {
	_, _ = bold.Fprintln(w, "Lowest best makespan per run")
	runs := tablewriter.NewWriter(w)
	runs.Header("Run ID", "Lowest Best")
	for _, point := range summary.LowestBest {
		runID := ""
		if point.Index < len(summary.RunIDs) {
			runID = summary.RunIDs[point.Index]
		}
		_ = runs.Append(runID, formatScore(point.Value))
	}
	_ = runs.Render()

	_, _ = bold.Fprintln(w, "Average best makespan per generation")
	avg := tablewriter.NewWriter(w)
	avg.Header("Generation", "Average Best")
	for _, point := range summary.AverageBest {
		_ = avg.Append(strconv.Itoa(point.Index), formatScore(point.Value))
	}
	_ = avg.Render()
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
