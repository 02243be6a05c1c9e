// internal/middleware/accesslog.go
//
// One structured log line per request.
//
// Context
// -------
// Sits after chi's RequestID and requestinfo's enricher.  Logged fields:
// request id, method, path, status, bytes, duration, client IP, country,
// device, and bot flag.  Headers are never logged wholesale; Cookie,
// Authorization, and X-CSRF-Token stay out of the log.

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/requestinfo"
)

// AccessLog logs every request through log.
func AccessLog(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"req_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"dur_ms", time.Since(start).Milliseconds(),
			}
			if info := requestinfo.FromContext(r.Context()); info != nil {
				fields = append(fields,
					"ip", info.IP.String(),
					"country", info.Country,
					"device", info.UA.Device,
					"bot", info.UA.IsBot,
				)
			}

			switch {
			case status >= 500:
				log.Errorw("request", fields...)
			case status >= 400:
				log.Warnw("request", fields...)
			default:
				log.Infow("request", fields...)
			}
		})
	}
}
