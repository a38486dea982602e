package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		cfg        Config
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"disabled", Config{}, "POST", "/api/v1/engines/hkl/set", "", http.StatusOK},
		{"probe exempt", Config{Enabled: true, Token: "s3cret"}, "GET", "/readyz", "", http.StatusOK},
		{"metrics exempt", Config{Enabled: true, Token: "s3cret"}, "GET", "/metrics", "", http.StatusOK},
		{"missing token", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/engines", "", http.StatusUnauthorized},
		{"wrong token", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/engines", "Bearer nope", http.StatusUnauthorized},
		{"no bearer prefix", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/engines", "s3cret", http.StatusUnauthorized},
		{"valid token", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/engines/hkl/set", "Bearer s3cret", http.StatusOK},
		{"public read engine", Config{Enabled: true, Token: "s3cret", PublicRead: true}, "GET", "/api/v1/engines/hkl", "", http.StatusOK},
		{"public read list", Config{Enabled: true, Token: "s3cret", PublicRead: true}, "GET", "/api/v1/geometry", "", http.StatusOK},
		{"public read blocks writes", Config{Enabled: true, Token: "s3cret", PublicRead: true}, "PUT", "/api/v1/geometry", "", http.StatusUnauthorized},
		{"public read blocks actions", Config{Enabled: true, Token: "s3cret", PublicRead: true}, "GET", "/api/v1/engines/hkl/mode", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Middleware(tt.cfg)(ok).ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
