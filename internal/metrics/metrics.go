package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkl_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hkl_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	engineSetTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkl_engine_set_total",
			Help: "Pseudo-axis set requests by engine, mode and outcome.",
		},
		[]string{"engine", "mode", "outcome"},
	)

	engineSolutions = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hkl_engine_solutions",
			Help:    "Number of geometries returned by a successful set.",
			Buckets: []float64{1, 2, 4, 8, 16},
		},
		[]string{"engine"},
	)

	scanPointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkl_scan_points_total",
			Help: "Scan points evaluated, by outcome.",
		},
		[]string{"outcome"},
	)

	scanWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hkl_scan_workers",
		Help: "Configured scan worker count.",
	})

	snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkl_snapshots_total",
			Help: "Session snapshots written, by outcome.",
		},
		[]string{"outcome"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkl_stream_connections_total",
			Help: "SSE connect and disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hkl_streams_active",
		Help: "Currently open SSE streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hkl_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hkl_stream_bytes_total",
		Help: "Bytes written to SSE streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkl_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		engineSetTotal,
		engineSolutions,
		scanPointsTotal,
		scanWorkers,
		snapshotsTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSet records the outcome of an engine set. solutions is ignored
// unless outcome is "ok".
func ObserveSet(engine, mode, outcome string, solutions int) {
	engineSetTotal.WithLabelValues(engine, mode, outcome).Inc()
	if outcome == "ok" {
		engineSolutions.WithLabelValues(engine).Observe(float64(solutions))
	}
}

func AddScanPoints(ok, failed int) {
	scanPointsTotal.WithLabelValues("ok").Add(float64(ok))
	scanPointsTotal.WithLabelValues("error").Add(float64(failed))
}

func SetScanWorkers(n int)           { scanWorkers.Set(float64(n)) }
func IncSnapshots(outcome string)    { snapshotsTotal.WithLabelValues(outcome).Inc() }
func IncStreamConnections(ev string) { streamConnectionsTotal.WithLabelValues(ev).Inc() }
func IncStreamsActive()              { streamsActive.Inc() }
func DecStreamsActive()              { streamsActive.Dec() }
func IncStreamMessages()             { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)         { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string)  { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are recorded under their own path label.
var knownRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/geometry":           true,
	"/api/v1/geometry/text":      true,
	"/api/v1/sample":             true,
	"/api/v1/sample/reflections": true,
	"/api/v1/sample/ub":          true,
	"/api/v1/engines":            true,
	"/api/v1/scan":               true,
	"/api/v1/snapshots":          true,
	"/api/v1/snapshots/restore":  true,
	"/api/v1/stream/pseudo":      true,
}

// engineActions are the sub-resources of a single engine.
var engineActions = map[string]bool{
	"mode":       true,
	"parameters": true,
	"initialize": true,
	"set":        true,
	"solve":      true,
}

// normalizeRoute maps a request path onto a bounded set of labels so that
// engine names and bot traffic cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	rest, ok := strings.CutPrefix(path, "/api/v1/engines/")
	if !ok || rest == "" {
		return "other"
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		return "/api/v1/engines/{name}"
	case len(parts) == 2 && engineActions[parts[1]]:
		return "/api/v1/engines/{name}/" + parts[1]
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE handlers working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
