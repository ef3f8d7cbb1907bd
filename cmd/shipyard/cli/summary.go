// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/shipyard/lib/report"
)

// SummaryOptions controls [RenderSummary].
type SummaryOptions struct {
	// Color enables ANSI styling. The profile is detected from the
	// writer; false forces plain ASCII regardless of the terminal.
	Color bool

	// Details lists every warning and error under its stage row.
	Details bool

	// Width, when positive, truncates each row to that many cells.
	Width int
}

// RenderSummary writes a stage-by-stage table for run to w, followed
// by a one-line verdict carrying the exit code.
func RenderSummary(w io.Writer, run report.RunReport, options SummaryOptions) error {
	renderer := lipgloss.NewRenderer(w)
	if !options.Color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	styles := newSummaryStyles(renderer)

	var builder strings.Builder
	fmt.Fprintf(&builder, "%s\n", styles.header.Render(fmt.Sprintf("%-10s %-8s %9s  %s", "STAGE", "STATUS", "DURATION", "DETAILS")))
	for _, stage := range run.Stages {
		status := fmt.Sprintf("%-8s", stage.Status)
		row := fmt.Sprintf("%-10s %s %9s  %s",
			stage.Stage,
			styles.status(stage.Status).Render(status),
			formatDuration(stage.Duration),
			stageDetails(stage),
		)
		builder.WriteString(options.truncate(row) + "\n")
		if options.Details {
			for _, warning := range stage.Warnings {
				builder.WriteString(options.truncate(fmt.Sprintf("%-10s %s", "", styles.dim.Render("warning: "+warning))) + "\n")
			}
			for _, stageError := range stage.Errors {
				builder.WriteString(options.truncate(fmt.Sprintf("%-10s %s", "", styles.dim.Render("error: "+stageError))) + "\n")
			}
		}
	}
	builder.WriteString("\n")

	verdict := "succeeded"
	verdictStyle := styles.ok
	switch {
	case run.Failed():
		verdict = "failed"
		verdictStyle = styles.failed
	case run.WarningCount() > 0:
		verdict = fmt.Sprintf("succeeded with %d warning(s)", run.WarningCount())
		verdictStyle = styles.warning
	}
	fmt.Fprintf(&builder, "run %s %s in %s (exit %d)\n",
		run.RunID,
		verdictStyle.Render(verdict),
		formatDuration(run.Duration),
		run.ExitCode(),
	)

	_, err := io.WriteString(w, builder.String())
	return err
}

// truncate cuts line to Width cells. Escape sequences do not count
// toward the width and are never split.
func (o SummaryOptions) truncate(line string) string {
	if o.Width <= 0 {
		return line
	}
	return ansi.Truncate(line, o.Width, "…")
}

type summaryStyles struct {
	header  lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warning lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
}

func newSummaryStyles(renderer *lipgloss.Renderer) summaryStyles {
	return summaryStyles{
		header:  renderer.NewStyle().Bold(true),
		dim:     renderer.NewStyle().Foreground(lipgloss.Color("245")),
		ok:      renderer.NewStyle().Foreground(lipgloss.Color("2")),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("3")),
		failed:  renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skipped: renderer.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s summaryStyles) status(status report.Status) lipgloss.Style {
	switch status {
	case report.StatusOK:
		return s.ok
	case report.StatusWarning:
		return s.warning
	case report.StatusFailed:
		return s.failed
	default:
		return s.skipped
	}
}

// stageDetails is the message followed by the stage counters in name
// order, e.g. "pushed 1a2b3c to ... [commits=1 created=0]".
func stageDetails(stage report.StageReport) string {
	details := stage.Message
	if len(stage.Counts) > 0 {
		names := make([]string, 0, len(stage.Counts))
		for name := range stage.Counts {
			names = append(names, name)
		}
		sort.Strings(names)
		counters := make([]string, len(names))
		for i, name := range names {
			counters[i] = fmt.Sprintf("%s=%d", name, stage.Counts[name])
		}
		if details != "" {
			details += " "
		}
		details += "[" + strings.Join(counters, " ") + "]"
	}
	return details
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
