// internal/middleware/security.go
//
// Security-header middleware for the JSON settings API.
//
// Injects headers on every response:
//
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • X-Frame-Options           –  responses are never framed
//   • Content-Security-Policy   –  API responses load nothing
//   • Referrer-Policy           –  no Referer leaves the API
//   • Cache-Control             –  resolved configuration is never cached
//
// Notes
// -----
// • Headers are set before next.ServeHTTP, since JSON handlers write the
//   body in one call and headers added afterwards would be lost.  A handler
//   may still overwrite any of them.
package middleware

import "net/http"

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	const (
		nosn  = "nosniff"
		xfo   = "DENY"
		csp   = "default-src 'none'; frame-ancestors 'none'"
		refer = "no-referrer"
		cache = "no-store"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", nosn)
		h.Set("X-Frame-Options", xfo)
		h.Set("Content-Security-Policy", csp)
		h.Set("Referrer-Policy", refer)
		h.Set("Cache-Control", cache)
		next.ServeHTTP(w, r)
	})
}
