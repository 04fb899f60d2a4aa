package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Monthly attendance reports",
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print days present and salary per worker for a month",
	Long: `Counts each worker's attendance days in the month and multiplies them by the
per-day salary. Defaults to the current month.

Example:
  attendance report summary --month 3 --year 2024`,
	RunE: runReportSummary,
}

var reportExcelCmd = &cobra.Command{
	Use:   "excel",
	Short: "Download the backend's spreadsheet for a month",
	Long: `Downloads the attendance spreadsheet generated by the backend and saves it as
Attendance_<Month>_<Year>.xlsx.

Example:
  attendance report excel --month 3 --year 2024 --dir ./reports`,
	RunE: runReportExcel,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportSummaryCmd, reportExcelCmd)

	now := time.Now()
	for _, c := range []*cobra.Command{reportSummaryCmd, reportExcelCmd} {
		c.Flags().Int("month", int(now.Month()), "Month (1-12)")
		c.Flags().Int("year", now.Year(), "Year")
	}

	reportSummaryCmd.Flags().Int("page", 0, "Show only this page (0 shows every worker)")
	reportSummaryCmd.Flags().Int("size", report.DefaultPageSize, "Workers per page")
	reportSummaryCmd.Flags().Bool("json", false, "Output as JSON")

	reportExcelCmd.Flags().String("dir", ".", "Directory to save the spreadsheet in")
}

func runReportSummary(cmd *cobra.Command, args []string) error {
	month, year, err := periodFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	workers, err := a.registry().List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}
	summary := report.MonthlySummary(workers, month, year)

	rows := summary.Rows
	page, pages := mustGetInt(cmd, "page"), 1
	if page > 0 {
		rows, pages = summary.Page(page, mustGetInt(cmd, "size"))
	}

	if mustGetBool(cmd, "json") {
		if rows == nil {
			rows = []report.Row{}
		}
		summary.Rows = rows
		return outputJSON(summary)
	}

	fmt.Printf("Attendance for %s %d\n\n", time.Month(month), year)
	if len(rows) == 0 {
		fmt.Println("No workers found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVILLAGE\tDAYS\tSALARY/DAY\tSALARY")
	fmt.Fprintln(w, "----\t-------\t----\t----------\t------")
	for i := range rows {
		r := &rows[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\n", r.Worker.Name, r.Worker.Village, r.Days, r.Worker.PerDaySalary, r.Salary)
	}
	w.Flush()

	if page > 0 {
		fmt.Printf("\nPage %d of %d\n", page, pages)
	}
	fmt.Printf("\nTotal: %d workers, %d days, salary %.2f\n", len(summary.Rows), summary.TotalDays, summary.TotalSalary)
	if summary.Skipped > 0 {
		fmt.Printf("Warning: %d attendance entries could not be parsed\n", summary.Skipped)
	}
	return nil
}

func runReportExcel(cmd *cobra.Command, args []string) error {
	month, year, err := periodFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Printf("Downloading attendance for %s %d...\n", time.Month(month), year)
	path, n, err := report.SaveExcel(context.Background(), a.client, month, year, mustGetString(cmd, "dir"))
	if err != nil {
		return fmt.Errorf("failed to download report: %w", err)
	}

	fmt.Printf("Done! Saved %s (%d bytes)\n", path, n)
	return nil
}
