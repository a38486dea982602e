package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stuwilkins/hkl/internal/metrics"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/session"
)

// writeWindow is how long a single frame may take to reach the client.
const writeWindow = 30 * time.Second

// subscriber writes the SSE frames of one connection and remembers the
// session version it last delivered.
type subscriber struct {
	w       io.Writer
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger
	filter  map[string]bool

	delivered bool
	seen      uint64
	frames    int64
	bytes     int64
}

// frame writes "<field><payload>\n\n" and flushes it.
func (s *subscriber) frame(field string, payload []byte) error {
	if err := s.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		s.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprintf(s.w, "%s%s\n\n", field, payload)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	s.flusher.Flush()
	s.bytes += int64(n)
	metrics.AddStreamBytes(int64(n))
	return nil
}

// event sends v as a "data:" frame.
func (s *subscriber) event(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.IncStreamErrors("marshal_error")
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := s.frame("data: ", data); err != nil {
		return err
	}
	s.frames++
	metrics.IncStreamMessages()
	return nil
}

// keepalive sends an SSE comment, ":\n\n".
func (s *subscriber) keepalive() error {
	return s.frame(":", nil)
}

// stale reports whether the session moved past what the client has.
func (s *subscriber) stale(sess *session.Session) bool {
	return !s.delivered || sess.Version() != s.seen
}

// push sends the session's current pseudo-axes.
func (s *subscriber) push(sess *session.Session) error {
	var msg pseudoMessage
	_ = sess.View(func(l *pseudo.EngineList) error {
		s.seen = sess.Version()
		msg = buildPseudoMessage(l, s.seen, time.Now(), s.filter)
		return nil
	})
	if err := s.event(msg); err != nil {
		return err
	}
	s.delivered = true
	return nil
}
