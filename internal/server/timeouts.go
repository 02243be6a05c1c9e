// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
// Production hardening recommends:
//
//   • ReadHeaderTimeout – abort slow-loris headers (5 s)
//   • ReadTimeout       – cap upload time for media posts (60 s)
//   • WriteTimeout      – cap total response time (90 s)
//   • IdleTimeout       – close keep-alives on idle clients (60 s)
//
// backend.timeout defaults to 0, which leaves WriteTimeout as the only
// deadline on a proxied call: a backend slower than 90 s ends in a reset
// rather than an envelope.  Set backend.timeout below WriteTimeout to get a
// 500/503 envelope instead.

package server

import (
	"net/http"
	"time"
)

// Timeouts applied by New.
const (
	ReadHeaderTimeout = 5 * time.Second
	ReadTimeout       = 60 * time.Second
	WriteTimeout      = 90 * time.Second
	IdleTimeout       = 60 * time.Second
	ShutdownTimeout   = 15 * time.Second
)

// New constructs an *http.Server with sensible defaults.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}
}
