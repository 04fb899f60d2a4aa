package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/constants"
	"github.com/kozaktomas/worker-attendance/internal/registry"
	"github.com/sirupsen/logrus"
)

// WorkersHandler handles worker registration and editing.
type WorkersHandler struct {
	registry *registry.Registry
	camera   capture.Source
	log      logrus.FieldLogger
}

// NewWorkersHandler creates a new workers handler
func NewWorkersHandler(reg *registry.Registry, cam capture.Source, log logrus.FieldLogger) *WorkersHandler {
	return &WorkersHandler{registry: reg, camera: cam, log: log}
}

// CreateWorkerRequest is the registration form. Images are data URLs; with
// from_camera a still is taken from the running camera instead.
type CreateWorkerRequest struct {
	Name              string   `json:"name"`
	Phone             string   `json:"phone"`
	Village           string   `json:"village"`
	Salary            int      `json:"salary"`
	Images            []string `json:"images"`
	CaptureFromCamera bool     `json:"from_camera"`
}

// List returns every worker, filtered by ?q= when given.
func (h *WorkersHandler) List(w http.ResponseWriter, r *http.Request) {
	workers, err := h.registry.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	if workers == nil {
		workers = []backend.Worker{}
	}
	respondJSON(w, http.StatusOK, workers)
}

// Create registers a worker.
func (h *WorkersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Images) > constants.MaxEnrollImages {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d images are accepted", constants.MaxEnrollImages))
		return
	}

	frames := make([]*capture.Frame, 0, len(req.Images)+1)
	for i, img := range req.Images {
		frame, err := capture.ParseDataURL(img)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("image %d: %v", i+1, err))
			return
		}
		frames = append(frames, frame)
	}
	if req.CaptureFromCamera {
		frame, err := capture.Capture(h.camera)
		if err != nil {
			respondFailure(w, r, h.log, err)
			return
		}
		frames = append(frames, frame)
	}

	form := registry.Form{Name: req.Name, Phone: req.Phone, Village: req.Village, Salary: req.Salary}
	worker, err := h.registry.Register(r.Context(), form, frames)
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, worker)
}

// Update replaces a worker's editable fields.
func (h *WorkersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := backend.WorkerID(chi.URLParam(r, "id"))

	var req backend.WorkerUpdate
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	worker, err := h.registry.Update(r.Context(), id, req)
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, worker)
}

// AddPhoto appends a still from the running camera to the worker's reference photos.
func (h *WorkersHandler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	id := backend.WorkerID(chi.URLParam(r, "id"))

	frame, err := capture.Capture(h.camera)
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	worker, err := h.registry.AddPhotos(r.Context(), id, []*capture.Frame{frame})
	if err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, worker)
}

// Delete removes a worker.
func (h *WorkersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := backend.WorkerID(chi.URLParam(r, "id"))
	if err := h.registry.Delete(r.Context(), id); err != nil {
		respondFailure(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
