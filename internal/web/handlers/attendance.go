package handlers

import (
	"net/http"

	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/sirupsen/logrus"
)

// AttendanceHandler drives the mark-attendance flow.
type AttendanceHandler struct {
	flow *attendance.Flow
	log  logrus.FieldLogger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(flow *attendance.Flow, log logrus.FieldLogger) *AttendanceHandler {
	return &AttendanceHandler{flow: flow, log: log}
}

// IdentifyResponse is the flow state after an identification attempt.
type IdentifyResponse struct {
	Result identify.Result     `json:"result"`
	State  attendance.Snapshot `json:"state"`
}

// ConfirmResponse is the flow state after attendance was recorded.
type ConfirmResponse struct {
	Worker *backend.Worker     `json:"worker"`
	State  attendance.Snapshot `json:"state"`
}

// State returns the current flow snapshot.
func (h *AttendanceHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.flow.Snapshot())
}

// Capture takes a still from the camera. With ?identify=true the frame is identified too.
func (h *AttendanceHandler) Capture(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("identify") == "true" {
		h.identify(w, r, true)
		return
	}
	if _, err := h.flow.Capture(); err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, h.flow.Snapshot())
}

// Identify resolves the captured frame.
func (h *AttendanceHandler) Identify(w http.ResponseWriter, r *http.Request) {
	h.identify(w, r, false)
}

func (h *AttendanceHandler) identify(w http.ResponseWriter, r *http.Request, captureFirst bool) {
	var (
		result identify.Result
		err    error
	)
	if captureFirst {
		result, err = h.flow.CaptureAndIdentify(r.Context())
	} else {
		result, err = h.flow.Identify(r.Context())
	}
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, IdentifyResponse{Result: result, State: h.flow.Snapshot()})
}

// Confirm records attendance for the identified worker.
func (h *AttendanceHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	worker, err := h.flow.Confirm(r.Context())
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ConfirmResponse{Worker: worker, State: h.flow.Snapshot()})
}

// Frame returns the captured frame as PNG.
func (h *AttendanceHandler) Frame(w http.ResponseWriter, r *http.Request) {
	frame := h.flow.Frame()
	if frame == nil {
		respondError(w, http.StatusNotFound, "no frame captured")
		return
	}
	writeFrame(w, frame)
}

// Transitions returns the visited states.
func (h *AttendanceHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.flow.Transitions())
}
