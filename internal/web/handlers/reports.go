package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/constants"
	"github.com/kozaktomas/worker-attendance/internal/report"
	"github.com/sirupsen/logrus"
)

// WorkerLister lists registered workers.
type WorkerLister interface {
	List(ctx context.Context) ([]backend.Worker, error)
}

// ReportsHandler serves the monthly summary and the spreadsheet export.
type ReportsHandler struct {
	workers    WorkerLister
	downloader report.Downloader
	now        func() time.Time
	log        logrus.FieldLogger
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(workers WorkerLister, downloader report.Downloader, log logrus.FieldLogger) *ReportsHandler {
	return &ReportsHandler{workers: workers, downloader: downloader, now: time.Now, log: log}
}

// SummaryResponse is one page of the monthly summary.
type SummaryResponse struct {
	Month       int          `json:"month"`
	Year        int          `json:"year"`
	Rows        []report.Row `json:"rows"`
	TotalDays   int          `json:"total_days"`
	TotalSalary float64      `json:"total_salary"`
	Workers     int          `json:"workers"`
	Page        int          `json:"page"`
	Pages       int          `json:"pages"`
	PageNumbers []int        `json:"page_numbers"`
}

// period reads ?month= and ?year=, defaulting to the current month.
func (h *ReportsHandler) period(r *http.Request) (int, int, error) {
	now := h.now()
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month: %w", err)
	}
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year: %w", err)
	}
	if err := report.ValidatePeriod(month, year); err != nil {
		return 0, 0, err
	}
	return month, year, nil
}

// Summary returns the attendance days and salary per worker for a month, paginated.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	month, year, err := h.period(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		respondError(w, http.StatusBadRequest, "invalid page")
		return
	}
	size, err := queryInt(r, "size", report.DefaultPageSize)
	if err != nil || size < 1 || size > constants.MaxReportPageSize {
		respondError(w, http.StatusBadRequest, "invalid size")
		return
	}

	workers, err := h.workers.List(r.Context())
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}

	summary := report.MonthlySummary(workers, month, year)
	rows, pages := summary.Page(page, size)
	if rows == nil {
		rows = []report.Row{}
	}
	respondJSON(w, http.StatusOK, SummaryResponse{
		Month:       month,
		Year:        year,
		Rows:        rows,
		TotalDays:   summary.TotalDays,
		TotalSalary: summary.TotalSalary,
		Workers:     len(summary.Rows),
		Page:        page,
		Pages:       pages,
		PageNumbers: pageNumbers(page, pages),
	})
}

// pageNumbers returns the visible page links, never nil.
func pageNumbers(page, pages int) []int {
	nums := report.PageNumbers(page, pages, constants.ReportPageWindow)
	if nums == nil {
		return []int{}
	}
	return nums
}

// Excel streams the backend's spreadsheet for a month as an attachment.
func (h *ReportsHandler) Excel(w http.ResponseWriter, r *http.Request) {
	month, year, err := h.period(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backend.ExcelFileName(month, year)+`"`)

	// Headers are only committed once the first byte arrives, so a backend error can still
	// be reported as JSON.
	cw := &commitWriter{w: w}
	n, err := h.downloader.DownloadExcel(r.Context(), month, year, cw)
	if err != nil {
		if !cw.committed {
			w.Header().Del("Content-Disposition")
			respondFailure(w, r, h.log, err)
			return
		}
		h.log.WithError(err).WithField("bytes", n).Error("report download interrupted")
		return
	}
	if !cw.committed {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}
}

type commitWriter struct {
	w         http.ResponseWriter
	committed bool
}

func (c *commitWriter) Write(p []byte) (int, error) {
	if !c.committed {
		c.committed = true
		c.w.WriteHeader(http.StatusOK)
	}
	return c.w.Write(p)
}
