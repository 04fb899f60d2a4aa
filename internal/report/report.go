// Package report builds the monthly attendance and salary summary and saves the backend's
// spreadsheet export.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/backend"
)

// DefaultPageSize is the number of workers per summary page.
const DefaultPageSize = 20

// timestampLayouts are tried in order; zone-less layouts are read in the summary's location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Row is one worker's line in the summary.
type Row struct {
	Worker backend.Worker `json:"worker"`
	Days   int            `json:"days"`
	Salary float64        `json:"salary"`
}

// Summary is the attendance of every worker in one month.
type Summary struct {
	Month       int     `json:"month"`
	Year        int     `json:"year"`
	Rows        []Row   `json:"rows"`
	TotalDays   int     `json:"total_days"`
	TotalSalary float64 `json:"total_salary"`
	// Skipped counts attendance entries that could not be parsed.
	Skipped int `json:"skipped"`
}

// ParseTimestamp reads an attendance entry. Timestamps with a zone are converted to loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if strings.Contains(layout, "Z07") {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// MonthlySummary counts each worker's attendance entries in month/year, local time, and
// multiplies them by the per-day salary. Worker order is kept.
func MonthlySummary(workers []backend.Worker, month, year int) Summary {
	return MonthlySummaryIn(workers, month, year, time.Local)
}

// MonthlySummaryIn is MonthlySummary with an explicit location.
func MonthlySummaryIn(workers []backend.Worker, month, year int, loc *time.Location) Summary {
	s := Summary{Month: month, Year: year, Rows: make([]Row, 0, len(workers))}
	for _, w := range workers {
		days := 0
		for _, entry := range w.Attendance {
			t, err := ParseTimestamp(entry, loc)
			if err != nil {
				s.Skipped++
				continue
			}
			if int(t.Month()) == month && t.Year() == year {
				days++
			}
		}
		salary := float64(days) * w.PerDaySalary
		s.Rows = append(s.Rows, Row{Worker: w, Days: days, Salary: salary})
		s.TotalDays += days
		s.TotalSalary += salary
	}
	return s
}

// Page returns the rows of a 1-based page and the number of pages.
// Pages outside the range are empty.
func (s Summary) Page(page, size int) ([]Row, int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (len(s.Rows) + size - 1) / size
	if page < 1 || page > pages {
		return nil, pages
	}
	start := (page - 1) * size
	end := min(start+size, len(s.Rows))
	return s.Rows[start:end], pages
}

// PageNumbers returns up to maxVisible page numbers centred on current.
func PageNumbers(current, total, maxVisible int) []int {
	if total <= 0 || maxVisible <= 0 {
		return nil
	}
	start := max(1, current-maxVisible/2)
	end := min(total, start+maxVisible-1)
	if end-start+1 < maxVisible {
		start = max(1, end-maxVisible+1)
	}
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out
}

// ValidatePeriod checks a month/year pair.
func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("invalid month %d, expected 1-12", month)
	}
	if year < 2000 || year > 9999 {
		return fmt.Errorf("invalid year %d", year)
	}
	return nil
}

// Downloader streams the spreadsheet export.
type Downloader interface {
	DownloadExcel(ctx context.Context, month, year int, w io.Writer) (int64, error)
}

// SaveExcel downloads the spreadsheet into dir under its default name and returns the path.
// The file only appears once the download completed.
func SaveExcel(ctx context.Context, d Downloader, month, year int, dir string) (string, int64, error) {
	if err := ValidatePeriod(month, year); err != nil {
		return "", 0, err
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, backend.ExcelFileName(month, year))

	tmp, err := os.CreateTemp(dir, ".report-*.xlsx")
	if err != nil {
		return "", 0, fmt.Errorf("creating report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := d.DownloadExcel(ctx, month, year, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", n, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", n, fmt.Errorf("saving report: %w", err)
	}
	return path, n, nil
}
