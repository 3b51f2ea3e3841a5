package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// maxListedFailures caps the failed chunks listed in the summary box. The
// JSON report always carries all of them.
const maxListedFailures = 10

// RenderSummary draws the end-of-run summary box.
func RenderSummary(report *stockimport.Report) string {
	totals := report.Totals()

	var b strings.Builder
	switch {
	case report.DryRun:
		b.WriteString(SuccessStyle.Render(SymbolCheck + " scan complete"))
		b.WriteString(MutedStyle.Render(" (dry run, nothing written)"))
	case report.Outcome() == stockimport.OutcomeSucceeded:
		b.WriteString(SuccessStyle.Render(SymbolCheck + " import succeeded"))
	default:
		b.WriteString(ErrorStyle.Render(SymbolCross + " import partially failed"))
	}
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(LabelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("source", report.Source.Name)
	if !report.DryRun {
		row("table", report.Table)
	}
	row("rows read", fmt.Sprint(report.RowsRead))
	row("parsed", fmt.Sprint(totals.Parsed))
	if totals.Dropped > 0 {
		row("dropped", WarningStyle.Render(fmt.Sprint(totals.Dropped)))
	} else {
		row("dropped", "0")
	}
	if !report.DryRun {
		row("inserted", fmt.Sprint(totals.Inserted))
		row("existing", fmt.Sprint(totals.Existing))
	}
	row("chunks", fmt.Sprint(len(report.Chunks)))
	row("duration", report.Duration().Round(time.Millisecond).String())
	if report.DryRun {
		return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
	}
	if totals.RolledBack > 0 {
		row("rolled back", ErrorStyle.Render(fmt.Sprint(totals.RolledBack)))
	}
	if totals.Unwritten > 0 {
		row("not attempted", ErrorStyle.Render(fmt.Sprint(totals.Unwritten)))
	}

	failed := report.FailedChunks()
	if len(failed) > 0 {
		b.WriteString("\n")
		for i, c := range failed {
			if i == maxListedFailures {
				b.WriteString(MutedStyle.Render(fmt.Sprintf("  ... and %d more", len(failed)-maxListedFailures)))
				b.WriteString("\n")
				break
			}
			line := fmt.Sprintf("%s chunk %d (%s, %d rows)", SymbolCross, c.Index, c.State, c.Rows)
			if c.Message != "" {
				line += ": " + c.Message
			}
			b.WriteString(ErrorStyle.Render(line))
			b.WriteString("\n")
		}
	}

	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
