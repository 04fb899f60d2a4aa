package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/worker-attendance/internal/web/handlers"
	"github.com/kozaktomas/worker-attendance/internal/web/middleware"
	"github.com/kozaktomas/worker-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	cameraHandler := handlers.NewCameraHandler(s.deps.Camera, s.deps.Flow, s.log)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Flow, s.log)
	workersHandler := handlers.NewWorkersHandler(s.deps.Registry, s.deps.Camera, s.log)
	reportsHandler := handlers.NewReportsHandler(s.deps.Registry, s.deps.Reports, s.log)
	eventsHandler := handlers.NewEventsHandler(s.deps.Flow, middleware.CheckOrigin(s.config.Web.AllowedOrigins), s.log)

	s.router.Route("/api/v1", func(api chi.Router) {
		// Long-lived, so outside the request timeout.
		api.Get("/attendance/events", eventsHandler.Stream)

		api.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(s.requestTimeout))

			r.Get("/health", handlers.HealthCheck)

			// Camera
			r.Get("/camera", cameraHandler.State)
			r.Post("/camera/devices/refresh", cameraHandler.RefreshDevices)
			r.Post("/camera/start", cameraHandler.Start)
			r.Post("/camera/switch", cameraHandler.Switch)
			r.Post("/camera/stop", cameraHandler.Stop)
			r.Get("/camera/preview", cameraHandler.Preview)

			// Attendance flow
			r.Get("/attendance", attendanceHandler.State)
			r.Get("/attendance/transitions", attendanceHandler.Transitions)
			r.Get("/attendance/frame", attendanceHandler.Frame)
			r.Post("/attendance/capture", attendanceHandler.Capture)
			r.Post("/attendance/identify", attendanceHandler.Identify)
			r.Post("/attendance/confirm", attendanceHandler.Confirm)

			// Workers
			r.Get("/workers", workersHandler.List)
			r.Post("/workers", workersHandler.Create)
			r.Put("/workers/{id}", workersHandler.Update)
			r.Post("/workers/{id}/photos", workersHandler.AddPhoto)
			r.Delete("/workers/{id}", workersHandler.Delete)

			// Reports
			r.Get("/reports/summary", reportsHandler.Summary)
			r.Get("/reports/excel", reportsHandler.Excel)
		})
	})

	// Kiosk page
	s.router.With(middleware.SecurityHeaders()).Get("/*", s.serveKiosk)
}

// serveKiosk serves the embedded kiosk page and its assets.
func (s *Server) serveKiosk(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err != nil {
		// Unknown non-asset paths fall back to the page itself.
		if strings.HasPrefix(path, "/assets/") {
			http.NotFound(w, r)
			return
		}
		path = "/index.html"
		if f, err = fs.Open(path); err != nil {
			http.Error(w, "kiosk page not available", http.StatusNotFound)
			return
		}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(path, ".html"):
		contentType = "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".css"):
		contentType = "text/css; charset=utf-8"
	case strings.HasSuffix(path, ".js"):
		contentType = "application/javascript; charset=utf-8"
	case strings.HasSuffix(path, ".svg"):
		contentType = "image/svg+xml"
	case strings.HasSuffix(path, ".png"):
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
