package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/timmy/recap/internal/domain"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
)

type errRunFailed struct {
	runID string
}

func (e errRunFailed) Error() string {
	return fmt.Sprintf("QA run %s failed", e.runID)
}

func statusString(status string) string {
	switch status {
	case string(domain.QaRunSuccess), string(domain.QaCheckPassed):
		return color.GreenString("%-8s", status)
	case string(domain.QaRunPartial), string(domain.QaCheckSkipped):
		return color.YellowString("%-8s", status)
	case string(domain.QaRunFailed):
		return color.RedString("%-8s", status)
	default:
		return fmt.Sprintf("%-8s", status)
	}
}

func printRun(w io.Writer, run *domain.QaRun, checks []domain.QaCheck) {
	headerColor.Fprintf(w, "%s (%s)\n", run.RunID, run.RunKind)
	for _, c := range checks {
		marker := " "
		if c.Critical {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-10s %s %s\n", marker, c.Code, statusString(string(c.Status)), dimColor.Sprintf("%dms", c.DurationMs))
		if c.ErrorDetail != "" {
			fmt.Fprintf(w, "      %s\n", color.RedString(c.ErrorDetail))
		}
	}
	fmt.Fprintf(w, "%s %s\n", statusString(string(run.Status)), run.Notes)
}

func printHistory(w io.Writer, runs []domain.QaRun) {
	if len(runs) == 0 {
		dimColor.Fprintln(w, "No QA runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%-32s %-6s %s %3d passed %3d failed %3d skipped  %s\n",
			r.RunID, r.RunKind, statusString(string(r.Status)),
			r.PassedCount, r.FailedCount, r.SkippedCount,
			dimColor.Sprint(r.StartedAt.Format("2006-01-02 15:04:05")))
	}
}
