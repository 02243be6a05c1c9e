// internal/proxy/respond.go
//
// Response helpers shared by the route handler and the router.
//
// Notes
// -----
// • Session replies and mutating calls are never cacheable.
// • Path params are percent-decoded before validation, so a check sees
//   the same value the backend will.

package proxy

import (
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// setNoCache writes the full set of anti-caching headers.
func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("encode response", "err", err)
	}
}

// pathParam returns a decoded path segment.  chi hands back the raw form
// when the request carried escapes; url.URL re-escapes on the way out.
func pathParam(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
