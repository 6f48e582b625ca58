package diagnose

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/devprobe/apidiag/common/helper"
)

// Render prints the report as a check matrix with totals and a failure list.
func Render(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== API Diagnostics — %s environment ===\n", report.Environment.Name)
	fmt.Fprintf(w, "Base URL: %s · %s\n", report.Environment.BaseURL, report.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Check", "Result", "Details", "Elapsed"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, test := range report.Tests {
		result := "PASS"
		if !test.Passed {
			result = "FAIL"
		}
		table.Append([]string{
			test.Name,
			result,
			helper.Shorten(test.Details, 80),
			test.Duration.Truncate(time.Millisecond).String(),
		})
	}
	table.Render()

	failed := report.FailedCount()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Totals  | Checks: %d | Passed: %d | Failed: %d\n",
		len(report.Tests), len(report.Tests)-failed, failed)

	if failed > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures:")
		for _, test := range report.Tests {
			if !test.Passed {
				fmt.Fprintf(w, "- %s → %s\n", test.Name, helper.Shorten(test.Details, 200))
			}
		}
	}

	fmt.Fprintln(w)
}
