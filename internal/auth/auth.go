package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/stuwilkins/hkl/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled    bool
	Token      string
	PublicRead bool // GET requests on state endpoints skip the token check
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// readOnlyPaths may be read without a token when Config.PublicRead is set.
var readOnlyPaths = map[string]bool{
	"/":                     true,
	"/api/v1/geometry":      true,
	"/api/v1/geometry/text": true,
	"/api/v1/engines":       true,
	"/api/v1/stream/pseudo": true,
}

// isExempt returns true if the request is exempt from auth.
func isExempt(cfg Config, r *http.Request) bool {
	if exemptPaths[r.URL.Path] {
		return true
	}
	if !cfg.PublicRead || r.Method != http.MethodGet {
		return false
	}
	if readOnlyPaths[r.URL.Path] {
		return true
	}
	// Single engine reads: /api/v1/engines/{name}.
	name, ok := strings.CutPrefix(r.URL.Path, "/api/v1/engines/")
	return ok && name != "" && !strings.Contains(name, "/")
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")

			if header == "" || token == header || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hkl"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
