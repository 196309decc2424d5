package batch

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kotadb/kotadb/internal/adw"
)

// WriteSummary renders the batch report as a table with per-issue rows and
// aggregate footer.
func WriteSummary(w io.Writer, report *Report) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Issue", "Status", "PR", "Cost (USD)", "Duration", "Error"})

	for _, r := range report.Results {
		tbl.AppendRow(table.Row{
			fmt.Sprintf("#%d", r.IssueNumber),
			statusCell(r),
			r.PRURL,
			fmt.Sprintf("%.4f", r.CostUSD),
			humanizeMS(r.DurationMS),
			truncate(r.Error, 60),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d issues", len(report.Results)),
		fmt.Sprintf("%d ok / %d failed", report.Totals.SuccessCount, report.Totals.FailureCount),
		"",
		fmt.Sprintf("%.4f", report.Totals.CostUSD),
		humanizeMS(report.Totals.DurationMS),
		"",
	})

	tbl.Render()
}

func statusCell(r adw.RunResult) string {
	if r.Success {
		return color.GreenString("success")
	}

	if r.Error == ErrFailFast.Error() {
		return color.YellowString("cancelled")
	}

	return color.RedString("failed")
}

func humanizeMS(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	return humanize.SIWithDigits(float64(ms)/1000, 1, "s")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n-1] + "…"
}
