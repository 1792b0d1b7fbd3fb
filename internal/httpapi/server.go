// Package httpapi exposes the daemon's job control surface over HTTP:
// job creation, progress polling, pause/resume/cancel, the completed-import
// log and a health endpoint.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openvectors/vecimport/internal/manager"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/status"
)

// Options wires a Server.
type Options struct {
	Queue     *queue.Service
	Manager   *manager.Manager
	Collector *status.Collector
	Logger    *slog.Logger

	// WatchInterval is how often /watch sockets poll for progress changes;
	// zero means 500ms.
	WatchInterval time.Duration
}

// Server handles the HTTP control surface.
type Server struct {
	svc        *queue.Service
	mgr        *manager.Manager
	collector  *status.Collector
	logger     *slog.Logger
	watchEvery time.Duration
}

// New builds a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	watchEvery := opts.WatchInterval
	if watchEvery <= 0 {
		watchEvery = 500 * time.Millisecond
	}
	return &Server{
		svc:        opts.Queue,
		mgr:        opts.Manager,
		collector:  opts.Collector,
		logger:     logger,
		watchEvery: watchEvery,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.createJob)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.getProgress)
			r.Get("/metadata", s.getMetadata)
			r.Get("/watch", s.watchJob)
			r.Post("/pause", s.controlJob(s.mgr.Pause))
			r.Post("/resume", s.controlJob(s.mgr.Resume))
			r.Post("/cancel", s.controlJob(s.mgr.Cancel))
		})
		r.Get("/imports", s.listImports)
	})
	r.Get("/healthz", s.healthz)

	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		s.logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
