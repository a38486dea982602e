package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		check      error
		wantStatus int
		wantBody   string
	}{
		{"ready", nil, http.StatusOK, "ready\n"},
		{"not ready", errors.New("no geometry"), http.StatusServiceUnavailable, "not ready: no geometry\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Readyz(func() error { return tt.check })(w, httptest.NewRequest("GET", "/readyz", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
