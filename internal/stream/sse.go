// Package stream implements Server-Sent Events (SSE) streaming of the
// session's pseudo-axis values. Clients connect via GET /api/v1/stream/pseudo
// and receive a message every time the session changes.
//
// SSE message format:
//
//	data: {"type":"pseudo","version":7,"t":"...","axes":[...],"engines":[{"name":"hkl","values":[0,0,1]}]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","geometry_type":"E4CV","axes":["omega",...],"engines":["hkl",...]}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
package stream

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stuwilkins/hkl/internal/httputil"
	"github.com/stuwilkins/hkl/internal/metrics"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/session"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	Interval           time.Duration // Change polling interval (default: 200ms).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from proxy headers.
}

// Handler manages SSE streaming connections.
type Handler struct {
	session *session.Session
	config  Config
	gate    *admission
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(sess *session.Session, config Config, logger *slog.Logger) *Handler {
	if config.Interval <= 0 {
		config.Interval = 200 * time.Millisecond
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		session: sess,
		config:  config,
		gate:    newAdmission(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
}

// HandlePseudo serves the SSE pseudo-axis stream.
// GET /api/v1/stream/pseudo?interval_ms=200&engines=hkl,psi
func (h *Handler) HandlePseudo(w http.ResponseWriter, r *http.Request) {
	interval := h.config.Interval
	if v := r.URL.Query().Get("interval_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 50 || n > 10000 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid interval_ms parameter, must be 50-10000")
			return
		}
		interval = time.Duration(n) * time.Millisecond
	}

	var filter map[string]bool
	if v := r.URL.Query().Get("engines"); v != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter[name] = true
			}
		}
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	leave, ok := h.gate.admit(ip)
	if !ok {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.gate.count(ip),
			"open_streams", h.gate.total(),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		leave()
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", interval.Milliseconds(),
	)

	rc := http.NewResponseController(w)
	sub := &subscriber{
		w:       w,
		flusher: flusher,
		rc:      rc,
		logger:  h.logger,
		filter:  filter,
	}

	defer func() {
		leave()
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"frames", sub.frames,
			"bytes", sub.bytes,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := sub.frame("retry: ", []byte(strconv.Itoa(3000+rand.Intn(4000)))); err != nil {
		return
	}

	age := h.session.AgeSeconds()
	var meta metadataMessage
	_ = h.session.View(func(l *pseudo.EngineList) error {
		meta = buildMetadataMessage(l, age)
		return nil
	})
	if err := sub.event(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		if sub.stale(h.session) {
			if err := sub.push(h.session); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)
		}

		select {
		case <-ctx.Done():
			return

		case <-ticker.C:

		case <-keepaliveTicker.C:
			if err := sub.keepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildMetadataMessage describes the session's geometry and engines.
func buildMetadataMessage(l *pseudo.EngineList, age float64) metadataMessage {
	return metadataMessage{
		Type:         "metadata",
		GeometryType: l.Geometry().Type,
		Axes:         l.Geometry().AxisNames(),
		Engines:      l.Names(),
		AgeSeconds:   int(age),
	}
}

// buildPseudoMessage recomputes the selected engines. Engines that cannot
// be evaluated in the current configuration carry their error instead of
// values.
func buildPseudoMessage(l *pseudo.EngineList, version uint64, ts time.Time, filter map[string]bool) pseudoMessage {
	msg := pseudoMessage{
		Type:    "pseudo",
		Version: version,
		T:       ts.UTC().Format(time.RFC3339Nano),
		Axes:    l.Geometry().Values(),
	}
	for _, e := range l.Engines() {
		if filter != nil && !filter[e.Name()] {
			continue
		}
		p := enginePayload{Name: e.Name(), Mode: e.Mode().Name()}
		if vals, err := e.Get(); err != nil {
			p.Error = err.Error()
		} else {
			p.Values = vals
		}
		msg.Engines = append(msg.Engines, p)
	}
	return msg
}

// SSE message payload types.

type metadataMessage struct {
	Type         string   `json:"type"`
	GeometryType string   `json:"geometry_type"`
	Axes         []string `json:"axes"`
	Engines      []string `json:"engines"`
	AgeSeconds   int      `json:"age_seconds"`
}

type pseudoMessage struct {
	Type    string          `json:"type"`
	Version uint64          `json:"version"`
	T       string          `json:"t"`
	Axes    []float64       `json:"axes"`
	Engines []enginePayload `json:"engines"`
}

type enginePayload struct {
	Name   string    `json:"name"`
	Mode   string    `json:"mode"`
	Values []float64 `json:"values,omitempty"`
	Error  string    `json:"error,omitempty"`
}
