package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "too many points", "max_points", 100, 7, "ignored")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "too many points" {
		t.Errorf("error = %v", body["error"])
	}
	if body["max_points"].(float64) != 100 {
		t.Errorf("max_points = %v, want 100", body["max_points"])
	}
	if len(body) != 2 {
		t.Errorf("body = %v, want 2 fields", body)
	}
}
