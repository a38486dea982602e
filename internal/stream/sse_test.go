package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
	"github.com/stuwilkins/hkl/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// testList is an E4CV at omega=30°, tth=60°, which reads hkl (0,0,1).
func testList(t *testing.T) *pseudo.EngineList {
	t.Helper()
	g, err := geometry.New("E4CV")
	if err != nil {
		t.Fatal(err)
	}
	d := math.Pi / 180
	if err := g.SetValues(30*d, 0, 0, 60*d); err != nil {
		t.Fatal(err)
	}
	l, err := pseudo.NewEngineList(g, detector.New0D(), sample.New("test"))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		Interval:           50 * time.Millisecond,
		KeepaliveInterval:  30 * time.Second,
	}
}

// TestBuildPseudoMessage verifies the pseudo payload structure.
func TestBuildPseudoMessage(t *testing.T) {
	l := testList(t)
	ts := time.Date(2026, 2, 6, 4, 0, 0, 0, time.UTC)

	msg := buildPseudoMessage(l, 7, ts, nil)
	if msg.Type != "pseudo" {
		t.Errorf("type = %q, want %q", msg.Type, "pseudo")
	}
	if msg.Version != 7 {
		t.Errorf("version = %d, want 7", msg.Version)
	}
	if msg.T != "2026-02-06T04:00:00Z" {
		t.Errorf("t = %q, want %q", msg.T, "2026-02-06T04:00:00Z")
	}
	if len(msg.Axes) != 4 {
		t.Errorf("axes = %v, want 4 values", msg.Axes)
	}
	if len(msg.Engines) != 3 {
		t.Fatalf("engine count = %d, want 3", len(msg.Engines))
	}
	hkl := msg.Engines[0]
	if hkl.Name != "hkl" || hkl.Mode != "bissector" {
		t.Errorf("engine[0] = %s/%s, want hkl/bissector", hkl.Name, hkl.Mode)
	}
	want := []float64{0, 0, 1}
	for i, v := range hkl.Values {
		if math.Abs(v-want[i]) > 1e-9 {
			t.Errorf("hkl[%d] = %v, want %v", i, v, want[i])
		}
	}

	msg = buildPseudoMessage(l, 7, ts, map[string]bool{"q": true})
	if len(msg.Engines) != 1 || msg.Engines[0].Name != "q" {
		t.Errorf("filtered engines = %+v, want only q", msg.Engines)
	}
}

// TestBuildPseudoMessageError verifies that degenerate engines report an
// error rather than values.
func TestBuildPseudoMessageError(t *testing.T) {
	g, err := geometry.New("E4CV")
	if err != nil {
		t.Fatal(err)
	}
	l, err := pseudo.NewEngineList(g, detector.New0D(), sample.New("test"))
	if err != nil {
		t.Fatal(err)
	}

	msg := buildPseudoMessage(l, 0, time.Now(), map[string]bool{"psi": true})
	if len(msg.Engines) != 1 {
		t.Fatalf("engine count = %d, want 1", len(msg.Engines))
	}
	if msg.Engines[0].Error == "" || msg.Engines[0].Values != nil {
		t.Errorf("psi at Q=0 = %+v, want error only", msg.Engines[0])
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"values"`) {
		t.Errorf("values should be omitted on error: %s", data)
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	handler := NewHandler(session.New(testList(t)), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/pseudo", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandlePseudo(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	var types []string
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		types = append(types, msg["type"].(string))
		if msg["type"] == "metadata" && msg["geometry_type"] != "E4CV" {
			t.Errorf("geometry_type = %v, want E4CV", msg["geometry_type"])
		}
	}

	// Unchanged sessions are sent once, not on every tick.
	if len(types) != 2 || types[0] != "metadata" || types[1] != "pseudo" {
		t.Errorf("message types = %v, want [metadata pseudo]", types)
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

// TestAdmission verifies per-IP concurrent stream limits.
func TestAdmission(t *testing.T) {
	gate := newAdmission(3, 0)

	var leaves []func()
	for i := 0; i < 3; i++ {
		leave, ok := gate.admit("10.0.0.1")
		if !ok {
			t.Fatalf("admit %d should succeed", i+1)
		}
		leaves = append(leaves, leave)
	}
	if _, ok := gate.admit("10.0.0.1"); ok {
		t.Error("admit beyond limit should fail")
	}
	if _, ok := gate.admit("10.0.0.2"); !ok {
		t.Error("different IP should not be rate limited")
	}

	// Leaving twice frees one slot only.
	leaves[0]()
	leaves[0]()
	if c := gate.count("10.0.0.1"); c != 2 {
		t.Errorf("count = %d, want 2", c)
	}
	if _, ok := gate.admit("10.0.0.1"); !ok {
		t.Error("admit after leave should succeed")
	}
	if n := gate.total(); n != 4 {
		t.Errorf("total = %d, want 4", n)
	}
}

func TestAdmissionGlobalCap(t *testing.T) {
	gate := newAdmission(5, 2)
	_, okA := gate.admit("a")
	_, okB := gate.admit("b")
	if !okA || !okB {
		t.Fatal("first two admits should succeed")
	}
	if _, ok := gate.admit("c"); ok {
		t.Error("admit beyond global cap should fail")
	}
}

// TestAdmissionConcurrent verifies admission thread safety.
func TestAdmissionConcurrent(t *testing.T) {
	gate := newAdmission(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if leave, ok := gate.admit("10.0.0.1"); ok {
				defer leave()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := gate.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all left = %d, want 0", c)
	}
	if n := gate.total(); n != 0 {
		t.Errorf("total after all left = %d, want 0", n)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	handler := NewHandler(session.New(testList(t)), cfg, testLogger())

	// Hold the first connection open.
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/pseudo", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandlePseudo(w, req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/pseudo", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandlePseudo(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad interval values.
func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(session.New(testList(t)), testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"interval too small", "?interval_ms=10"},
		{"interval too large", "?interval_ms=20000"},
		{"interval non-numeric", "?interval_ms=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/pseudo"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandlePseudo(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestStreamFollowsSession verifies that a change to the session reaches an
// open stream.
func TestStreamFollowsSession(t *testing.T) {
	sess := session.New(testList(t))
	handler := NewHandler(sess, testConfig(), testLogger())

	srv := httptest.NewServer(http.HandlerFunc(handler.HandlePseudo))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"?engines=q", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var versions []uint64
	for scanner.Scan() && len(versions) < 2 {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var msg pseudoMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "pseudo" {
			continue
		}
		versions = append(versions, msg.Version)
		if len(versions) == 1 {
			if err := sess.Do(func(l *pseudo.EngineList) error {
				return l.Geometry().SetAxisValue("tth", 0.5)
			}); err != nil {
				t.Fatal(err)
			}
		}
	}

	if len(versions) != 2 || versions[0] != 0 || versions[1] != 1 {
		t.Errorf("versions = %v, want [0 1]", versions)
	}
}
