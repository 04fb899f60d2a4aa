package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/config"
	"github.com/kozaktomas/worker-attendance/internal/constants"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/kozaktomas/worker-attendance/internal/registry"
	"github.com/kozaktomas/worker-attendance/internal/report"
	"github.com/kozaktomas/worker-attendance/internal/web/handlers"
	"github.com/kozaktomas/worker-attendance/internal/web/middleware"
	"github.com/sirupsen/logrus"
)

// Deps are the components the kiosk server exposes.
type Deps struct {
	Camera   handlers.CameraInfo
	Flow     *attendance.Flow
	Registry *registry.Registry
	Reports  report.Downloader
}

// Server represents the web server
type Server struct {
	config         *config.Config
	deps           Deps
	router         *chi.Mux
	httpServer     *http.Server
	requestTimeout time.Duration
	log            logrus.FieldLogger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Default()
	}
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
		log:    log,
	}

	timeout := cfg.Web.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	s.requestTimeout = timeout

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestSize(constants.MaxRequestBodyBytes))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	// No WriteTimeout: the events websocket is long-lived. API routes are bounded
	// by the Timeout middleware instead.
	s.httpServer = &http.Server{
		Addr:        cfg.Web.Addr(),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops the camera and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	if s.deps.Flow != nil {
		s.deps.Flow.StopCamera()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
