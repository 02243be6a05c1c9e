// internal/middleware/security.go
//
// Security-header middleware.
//
// Injects headers suited to a JSON API on every response:
//
//   • Strict-Transport-Security  –  forces HTTPS (2 years + preload)
//   • Content-Security-Policy   –  nothing may load; nothing may frame us
//   • X-Frame-Options           –  click-jacking defence
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • Referrer-Policy           –  drops path/query from Referer
//
// Notes
// -----
// • Headers are set before next runs, and only when the handler has not
//   chosen its own value; proxied handlers write their status immediately,
//   so setting afterwards would be too late.
// • HSTS is omitted outside production so local HTTP keeps working.

package middleware

import "net/http"

// Security returns the security-header middleware.  hsts adds
// Strict-Transport-Security.
func Security(hsts bool) func(http.Handler) http.Handler {
	const (
		hstsValue = "max-age=63072000; includeSubDomains; preload"
		csp       = "default-src 'none'; frame-ancestors 'none'"
		xfo       = "DENY"
		nosn      = "nosniff"
		refer     = "strict-origin-when-cross-origin"
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			setDefault := func(k, v string) {
				if h.Get(k) == "" {
					h.Set(k, v)
				}
			}
			if hsts {
				setDefault("Strict-Transport-Security", hstsValue)
			}
			setDefault("Content-Security-Policy", csp)
			setDefault("X-Frame-Options", xfo)
			setDefault("X-Content-Type-Options", nosn)
			setDefault("Referrer-Policy", refer)

			next.ServeHTTP(w, r)
		})
	}
}
