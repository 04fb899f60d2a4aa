package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/sirupsen/logrus"
)

// CameraInfo is the read side of the camera manager.
type CameraInfo interface {
	capture.Source
	Capabilities() camera.Capabilities
	EnumerateDevices(ctx context.Context) camera.Capabilities
	CurrentIndex() int
}

// CameraHandler exposes the kiosk camera. Start, switch and stop go through the
// attendance flow so its state follows the camera.
type CameraHandler struct {
	camera CameraInfo
	flow   *attendance.Flow
	log    logrus.FieldLogger
}

// NewCameraHandler creates a new camera handler
func NewCameraHandler(cam CameraInfo, flow *attendance.Flow, log logrus.FieldLogger) *CameraHandler {
	return &CameraHandler{camera: cam, flow: flow, log: log}
}

// CameraStateResponse represents the camera state in API responses.
type CameraStateResponse struct {
	Active       bool                `json:"active"`
	DeviceIndex  int                 `json:"device_index"`
	Capabilities camera.Capabilities `json:"capabilities"`
}

func (h *CameraHandler) state() CameraStateResponse {
	return CameraStateResponse{
		Active:       h.camera.IsActive(),
		DeviceIndex:  h.camera.CurrentIndex(),
		Capabilities: h.camera.Capabilities(),
	}
}

// State returns the camera state and enumerated devices.
func (h *CameraHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.state())
}

// RefreshDevices re-enumerates the capture devices.
func (h *CameraHandler) RefreshDevices(w http.ResponseWriter, r *http.Request) {
	h.camera.EnumerateDevices(r.Context())
	respondJSON(w, http.StatusOK, h.state())
}

// StartRequest selects the device to start.
type StartRequest struct {
	DeviceIndex int `json:"device_index"`
}

// Start starts the camera at the requested device index (0 when omitted).
func (h *CameraHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.DeviceIndex < 0 {
		respondError(w, http.StatusBadRequest, "device_index must not be negative")
		return
	}
	if err := h.flow.StartCamera(r.Context(), req.DeviceIndex); err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, h.state())
}

// Switch moves to the next camera.
func (h *CameraHandler) Switch(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.SwitchCamera(r.Context()); err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, h.state())
}

// Stop stops the camera. Stopping an inactive camera is not an error.
func (h *CameraHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.flow.StopCamera()
	respondJSON(w, http.StatusOK, h.state())
}

// Preview returns the image currently on the camera surface as PNG.
func (h *CameraHandler) Preview(w http.ResponseWriter, r *http.Request) {
	frame, err := capture.Capture(h.camera)
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	writeFrame(w, frame)
}

func writeFrame(w http.ResponseWriter, frame *capture.Frame) {
	w.Header().Set("Content-Type", frame.MIME())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(frame.Bytes())
}
