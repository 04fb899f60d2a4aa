package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/kozaktomas/worker-attendance/internal/registry"
)

// setupCameraDir creates a camera root with a single front camera showing a 8x6 frame.
func setupCameraDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "front")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := range 6 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "001.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return root
}

type fakeIdentifier struct {
	result identify.Result
	err    error
}

func (i *fakeIdentifier) Identify(ctx context.Context, frame *capture.Frame) (identify.Result, error) {
	return i.result, i.err
}

func (i *fakeIdentifier) Strategy() string { return "fake" }

// fakeBackend implements every backend dependency of the handlers.
type fakeBackend struct {
	mu         sync.Mutex
	workers    []backend.Worker
	uploads    int
	recorded   []backend.WorkerID
	recordErr  error
	listErr    error
	excel      []byte
	excelErr   error
	lastUpdate backend.WorkerUpdate
}

func (b *fakeBackend) UploadImage(ctx context.Context, dataURL string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads++
	return fmt.Sprintf("https://cdn/%d.png", b.uploads), nil
}

func (b *fakeBackend) CreateWorker(ctx context.Context, w backend.NewWorker) (*backend.Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	worker := backend.Worker{
		ID:           backend.WorkerID(fmt.Sprint(len(b.workers) + 100)),
		Name:         w.Name,
		Phone:        w.Phone,
		Village:      w.Village,
		PerDaySalary: float64(w.Salary),
		Images:       w.Images,
	}
	b.workers = append(b.workers, worker)
	return &worker, nil
}

func (b *fakeBackend) ListWorkers(ctx context.Context) ([]backend.Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]backend.Worker(nil), b.workers...), nil
}

func (b *fakeBackend) GetWorker(ctx context.Context, id backend.WorkerID) (*backend.Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.workers {
		if b.workers[i].ID == id {
			w := b.workers[i]
			return &w, nil
		}
	}
	return nil, &backend.APIError{Status: http.StatusNotFound, Message: "Worker not found"}
}

func (b *fakeBackend) UpdateWorker(ctx context.Context, id backend.WorkerID, u backend.WorkerUpdate) (*backend.Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.workers {
		if b.workers[i].ID == id {
			b.lastUpdate = u
			b.workers[i].Name = u.Name
			b.workers[i].Phone = u.Phone
			b.workers[i].Village = u.Village
			b.workers[i].PerDaySalary = u.PerDaySalary
			b.workers[i].Images = u.Images
			w := b.workers[i]
			return &w, nil
		}
	}
	return nil, &backend.APIError{Status: http.StatusNotFound, Message: "Worker not found"}
}

func (b *fakeBackend) DeleteWorker(ctx context.Context, id backend.WorkerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.workers {
		if b.workers[i].ID == id {
			b.workers = append(b.workers[:i], b.workers[i+1:]...)
			return nil
		}
	}
	return &backend.APIError{Status: http.StatusNotFound, Message: "Worker not found"}
}

func (b *fakeBackend) RecordAttendance(ctx context.Context, id backend.WorkerID, imageURL string) (*backend.AttendanceResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recordErr != nil {
		return nil, b.recordErr
	}
	b.recorded = append(b.recorded, id)
	return &backend.AttendanceResponse{Message: "Attendance marked"}, nil
}

func (b *fakeBackend) DownloadExcel(ctx context.Context, month, year int, w io.Writer) (int64, error) {
	if b.excelErr != nil {
		return 0, b.excelErr
	}
	n, err := w.Write(b.excel)
	return int64(n), err
}

type testKiosk struct {
	camera     *camera.Manager
	flow       *attendance.Flow
	registry   *registry.Registry
	backend    *fakeBackend
	identifier *fakeIdentifier
}

func newTestKiosk(t *testing.T, root string) *testKiosk {
	t.Helper()
	log := logging.Discard()

	cam := camera.NewManager(camera.NewDirPlatform(root, false), camera.WithLogger(log))
	cam.EnumerateDevices(context.Background())
	t.Cleanup(func() { cam.Close() })

	b := &fakeBackend{}
	id := &fakeIdentifier{result: identify.NoMatch("")}
	return &testKiosk{
		camera:     cam,
		flow:       attendance.NewFlow(cam, id, b, 0, log),
		registry:   registry.New(b, 0, log),
		backend:    b,
		identifier: id,
	}
}

// serve runs a single handler with an optional JSON body.
func serve(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeResponse[map[string]string](t, rec)["error"]
}
