package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/logging"
)

func newReportsHandler(k *testKiosk) *ReportsHandler {
	h := NewReportsHandler(k.registry, k.backend, logging.Discard())
	h.now = func() time.Time { return time.Date(2024, time.March, 15, 12, 0, 0, 0, time.Local) }
	return h
}

func TestReportsHandler_Summary(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	for i := range 25 {
		k.backend.workers = append(k.backend.workers, backend.Worker{
			ID:           backend.WorkerID(fmt.Sprint(i + 1)),
			Name:         fmt.Sprintf("Worker %02d", i+1),
			PerDaySalary: 100,
			Attendance:   []string{"2024-03-01T09:00:00", "2024-02-28T09:00:00"},
		})
	}
	h := newReportsHandler(k)

	rec := serve(t, h.Summary, http.MethodGet, "/api/v1/reports/summary?page=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse[SummaryResponse](t, rec)
	if resp.Month != 3 || resp.Year != 2024 {
		t.Errorf("expected current month 3/2024, got %d/%d", resp.Month, resp.Year)
	}
	if resp.Workers != 25 || resp.Pages != 2 || len(resp.Rows) != 5 {
		t.Errorf("unexpected paging workers=%d pages=%d rows=%d", resp.Workers, resp.Pages, len(resp.Rows))
	}
	if resp.TotalDays != 25 || resp.TotalSalary != 2500 {
		t.Errorf("unexpected totals days=%d salary=%v", resp.TotalDays, resp.TotalSalary)
	}
	if len(resp.PageNumbers) != 2 {
		t.Errorf("expected page numbers [1 2], got %v", resp.PageNumbers)
	}

	feb := decodeResponse[SummaryResponse](t, serve(t, h.Summary, http.MethodGet, "/api/v1/reports/summary?month=2&year=2024&size=50", nil))
	if feb.TotalDays != 25 || feb.Pages != 1 || len(feb.Rows) != 25 {
		t.Errorf("unexpected february summary %+v", feb)
	}
}

func TestReportsHandler_SummaryEmpty(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	h := newReportsHandler(k)

	resp := decodeResponse[SummaryResponse](t, serve(t, h.Summary, http.MethodGet, "/api/v1/reports/summary", nil))
	if resp.Rows == nil || resp.PageNumbers == nil || len(resp.Rows) != 0 {
		t.Errorf("expected empty non-nil slices, got %+v", resp)
	}
}

func TestReportsHandler_SummaryInvalidQuery(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	h := newReportsHandler(k)

	for _, target := range []string{
		"/api/v1/reports/summary?month=13",
		"/api/v1/reports/summary?month=abc",
		"/api/v1/reports/summary?year=1999",
		"/api/v1/reports/summary?page=0",
		"/api/v1/reports/summary?size=1000",
	} {
		if rec := serve(t, h.Summary, http.MethodGet, target, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestReportsHandler_SummaryBackendError(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	k.backend.listErr = &backend.APIError{Status: http.StatusInternalServerError, Message: "database down"}
	h := newReportsHandler(k)

	rec := serve(t, h.Summary, http.MethodGet, "/api/v1/reports/summary", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestReportsHandler_Excel(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	k.backend.excel = []byte("PK\x03\x04 spreadsheet")
	h := newReportsHandler(k)

	rec := serve(t, h.Excel, http.MethodGet, "/api/v1/reports/excel?month=3&year=2024", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="`+backend.ExcelFileName(3, 2024)+`"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if rec.Body.String() != string(k.backend.excel) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestReportsHandler_ExcelError(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	k.backend.excelErr = &backend.APIError{Status: http.StatusInternalServerError, Message: "export failed"}
	h := newReportsHandler(k)

	rec := serve(t, h.Excel, http.MethodGet, "/api/v1/reports/excel", nil)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("a failed export must not be served as an attachment")
	}
	if msg := errorMessage(t, rec); msg == "" {
		t.Error("expected a JSON error")
	}
}
