package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/kozaktomas/worker-attendance/internal/registry"
	"github.com/sirupsen/logrus"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps err to a status code, logs it with the request id and sends it.
func respondFailure(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	status := statusForError(err)
	entry := log.WithFields(logging.Fields{
		"request_id": chiMiddleware.GetReqID(r.Context()),
		"path":       sanitizeForLog(r.URL.Path),
		"status":     status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	respondError(w, status, err.Error())
}

// statusForError maps the sentinel errors of the core packages to HTTP status codes.
func statusForError(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, registry.ErrValidation), errors.Is(err, capture.ErrInvalidDataURL):
		return http.StatusBadRequest
	case errors.Is(err, camera.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, camera.ErrSessionInactive),
		errors.Is(err, attendance.ErrInvalidTransition),
		errors.Is(err, attendance.ErrNothingToConfirm),
		errors.Is(err, attendance.ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		return http.StatusNotFound
	case errors.As(err, &apiErr),
		errors.Is(err, backend.ErrMalformedResponse),
		errors.Is(err, identify.ErrUploadFailed),
		errors.Is(err, identify.ErrIdentificationFailed),
		errors.Is(err, attendance.ErrAttendanceRecordFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when it is missing.
func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
