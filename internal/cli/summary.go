package cli

import (
	"depwait/internal/apperrors"
	"depwait/internal/waiter"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
)

var (
	headerFmt = color.New(color.FgGreen, color.Underline).SprintfFunc()
	okFmt     = color.New(color.FgGreen).SprintFunc()
	skipFmt   = color.New(color.FgYellow).SprintFunc()
	failFmt   = color.New(color.FgRed, color.Bold).SprintFunc()
)

// printSummary writes one table row per dependency. Colors are dropped
// automatically when stdout is not a terminal.
func printSummary(w io.Writer, report *waiter.Report) {
	tbl := table.New("Dependency", "Artifact", "Status", "Attempts", "Elapsed", "Error").
		WithWriter(w).
		WithHeaderFormatter(headerFmt)

	for _, r := range report.Results {
		var msg string
		if r.Err != nil {
			msg = r.Err.Error()
		}
		tbl.AddRow(r.Name, r.Artifact, statusColor(r.Status), r.Attempts, r.Elapsed.Round(time.Second), msg)
	}
	tbl.Print()
}

func statusColor(status string) string {
	switch status {
	case apperrors.Outcome(nil):
		return okFmt(status)
	case waiter.StatusNotEvaluated, "upstream_failed":
		return skipFmt(status)
	default:
		return failFmt(status)
	}
}
