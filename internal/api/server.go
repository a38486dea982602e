package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/stuwilkins/hkl/internal/auth"
	"github.com/stuwilkins/hkl/internal/health"
	"github.com/stuwilkins/hkl/internal/httputil"
	"github.com/stuwilkins/hkl/internal/metrics"
	"github.com/stuwilkins/hkl/internal/persist"
	"github.com/stuwilkins/hkl/internal/scan"
	"github.com/stuwilkins/hkl/internal/session"
	"github.com/stuwilkins/hkl/internal/stream"
)

// Deps are the components the HTTP layer drives.
type Deps struct {
	Session       *session.Session
	Scans         *scan.WorkerPool
	Store         *persist.Store  // nil disables the snapshot routes
	Stream        *stream.Handler // nil disables the stream route
	Web           fs.FS           // static status page served at /, optional
	MaxScanPoints int             // default 1000
	TrustProxy    bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	ready      atomic.Bool
}

// NewServer creates a configured HTTP server. It reports not ready until
// SetReady is called.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	if deps.MaxScanPoints <= 0 {
		deps.MaxScanPoints = 1000
	}
	s := &Server{logger: logger}
	h := &handlers{deps: deps, logger: logger}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.readiness))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/geometry", h.getGeometry)
	mux.HandleFunc("PUT /api/v1/geometry", h.putGeometry)
	mux.HandleFunc("GET /api/v1/geometry/text", h.getGeometryText)

	mux.HandleFunc("GET /api/v1/sample", h.getSample)
	mux.HandleFunc("PUT /api/v1/sample", h.putSample)
	mux.HandleFunc("POST /api/v1/sample/reflections", h.addReflection)
	mux.HandleFunc("POST /api/v1/sample/ub", h.computeUB)

	mux.HandleFunc("GET /api/v1/engines", h.listEngines)
	mux.HandleFunc("GET /api/v1/engines/{name}", h.getEngine)
	mux.HandleFunc("PUT /api/v1/engines/{name}/mode", h.selectMode)
	mux.HandleFunc("PUT /api/v1/engines/{name}/parameters", h.setParameters)
	mux.HandleFunc("POST /api/v1/engines/{name}/initialize", h.initialize)
	mux.HandleFunc("POST /api/v1/engines/{name}/set", h.set)
	mux.HandleFunc("POST /api/v1/engines/{name}/solve", h.solve)

	mux.HandleFunc("POST /api/v1/scan", h.scan)

	if deps.Store != nil {
		mux.HandleFunc("GET /api/v1/snapshots", h.listSnapshots)
		mux.HandleFunc("POST /api/v1/snapshots", h.saveSnapshot)
		mux.HandleFunc("POST /api/v1/snapshots/restore", h.restoreSnapshot)
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/pseudo", deps.Stream.HandlePseudo)
	}
	if deps.Web != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Web))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// SetReady flips the readiness probe.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) readiness() error {
	if !s.ready.Load() {
		return errors.New("starting")
	}
	return nil
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the logging middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
