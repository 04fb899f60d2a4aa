package handlers

import (
	"net/http"
	"testing"

	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
)

func startCamera(t *testing.T, k *testKiosk) {
	t.Helper()
	h := NewCameraHandler(k.camera, k.flow, logging.Discard())
	if rec := serve(t, h.Start, http.MethodPost, "/api/v1/camera/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAttendanceHandler_MarkAttendance(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	matched := identify.Matched(backend.Worker{ID: "7", Name: "Ramesh"}, 0)
	matched.ImageURL = "https://cdn/identify.png"
	k.identifier.result = matched
	h := NewAttendanceHandler(k.flow, logging.Discard())

	startCamera(t, k)

	rec := serve(t, h.Capture, http.MethodPost, "/api/v1/attendance/capture?identify=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture: %d %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse[IdentifyResponse](t, rec)
	if !resp.Result.Matched || resp.State.State != attendance.Identified || resp.State.Worker.Name != "Ramesh" {
		t.Fatalf("unexpected identify response %+v", resp)
	}

	rec = serve(t, h.Frame, http.MethodGet, "/api/v1/attendance/frame", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("frame: unexpected response %d", rec.Code)
	}

	rec = serve(t, h.Confirm, http.MethodPost, "/api/v1/attendance/confirm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}
	confirm := decodeResponse[ConfirmResponse](t, rec)
	if confirm.Worker.ID != "7" || confirm.State.State != attendance.Idle || confirm.State.CameraActive {
		t.Errorf("unexpected confirm response %+v", confirm)
	}
	if len(k.backend.recorded) != 1 || k.backend.uploads != 0 {
		t.Errorf("expected one record reusing the image, got records=%v uploads=%d", k.backend.recorded, k.backend.uploads)
	}

	transitions := decodeResponse[[]attendance.Transition](t, serve(t, h.Transitions, http.MethodGet, "/api/v1/attendance/transitions", nil))
	if len(transitions) != 5 || transitions[4].To != attendance.Idle {
		t.Errorf("unexpected transitions %+v", transitions)
	}
}

func TestAttendanceHandler_NotRecognized(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	h := NewAttendanceHandler(k.flow, logging.Discard())
	startCamera(t, k)

	if rec := serve(t, h.Capture, http.MethodPost, "/api/v1/attendance/capture", nil); rec.Code != http.StatusOK {
		t.Fatalf("capture: %d %s", rec.Code, rec.Body.String())
	}
	rec := serve(t, h.Identify, http.MethodPost, "/api/v1/attendance/identify", nil)
	resp := decodeResponse[IdentifyResponse](t, rec)
	if resp.Result.Matched || resp.State.State != attendance.NotRecognized {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.State.Message != backend.DefaultNotRecognizedMessage {
		t.Errorf("expected default message, got %q", resp.State.Message)
	}

	rec = serve(t, h.Confirm, http.MethodPost, "/api/v1/attendance/confirm", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("confirm without match: expected 409, got %d", rec.Code)
	}
	if len(k.backend.recorded) != 0 {
		t.Error("attendance must not be recorded")
	}
}

func TestAttendanceHandler_CaptureWithoutCamera(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	h := NewAttendanceHandler(k.flow, logging.Discard())

	rec := serve(t, h.Capture, http.MethodPost, "/api/v1/attendance/capture", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if rec := serve(t, h.Frame, http.MethodGet, "/api/v1/attendance/frame", nil); rec.Code != http.StatusNotFound {
		t.Errorf("frame: expected 404, got %d", rec.Code)
	}
}

func TestAttendanceHandler_RecordFailure(t *testing.T) {
	k := newTestKiosk(t, setupCameraDir(t))
	k.identifier.result = identify.Matched(backend.Worker{ID: "7", Name: "Ramesh"}, 0.1)
	k.backend.recordErr = &backend.APIError{Status: 400, Message: "Attendance already marked today"}
	h := NewAttendanceHandler(k.flow, logging.Discard())
	startCamera(t, k)

	serve(t, h.Capture, http.MethodPost, "/api/v1/attendance/capture?identify=true", nil)
	rec := serve(t, h.Confirm, http.MethodPost, "/api/v1/attendance/confirm", nil)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if k.flow.State() != attendance.Identified {
		t.Errorf("expected flow to stay Identified, got %s", k.flow.State())
	}
	if k.backend.uploads != 1 {
		t.Errorf("expected the frame to be uploaded once, got %d", k.backend.uploads)
	}
}
