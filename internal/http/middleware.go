package http

import (
	"net/http"
	"strings"
)

// The API serves JSON only, so scripts, frames and embedding are locked out
// wholesale. Swagger UI is the one exception: it inlines scripts and styles.
const (
	apiCSP     = "default-src 'none'"
	swaggerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"
)

// SecurityHeaders stamps baseline security headers on every response.
// Responses carry credentials and tokens, so caching is disabled outright.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")

		csp := apiCSP
		if strings.HasPrefix(r.URL.Path, "/swagger/") {
			csp = swaggerCSP
		}
		h.Set("Content-Security-Policy", csp)

		next.ServeHTTP(w, r)
	})
}
