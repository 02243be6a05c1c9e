// internal/proxy/router.go
//
// Mounts the route table on a chi router.
//
// Context
// -------
// NewRouter is the only place routes meet middleware.  Staff routes are
// wrapped in acl.RequireRole; every route gets JSON panic recovery.  Chi's
// own 404 and 405 answers are replaced with failure envelopes so the browser
// never has to parse plain text from this tier.

package proxy

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/acl"
	"github.com/yanizio/gazette/internal/backend"
	"github.com/yanizio/gazette/internal/envelope"
)

// Options tune NewRouter.
type Options struct {
	Log        *zap.SugaredLogger
	Production bool
	// Verifier backs the staff role gate.  Nil uses the backend verify
	// endpoint through the same Doer.
	Verifier acl.Verifier
	// Routes overrides the table; nil means Routes().
	Routes []Route
}

// NewRouter builds the proxy route set.
func NewRouter(be backend.Doer, opt Options) chi.Router {
	if opt.Log == nil {
		opt.Log = zap.S()
	}
	if opt.Verifier == nil {
		opt.Verifier = acl.NewVerifier(be)
	}
	routes := opt.Routes
	if routes == nil {
		routes = Routes()
	}

	r := chi.NewRouter()
	r.Use(Recover(opt.Log))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope.NewFailure("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope.NewFailure("Method not allowed"))
	})

	for _, rt := range routes {
		var h http.Handler = NewHandler(rt, be, opt.Log, opt.Production)
		if len(rt.Roles) > 0 {
			h = acl.RequireRole(opt.Verifier, rt.Roles...)(h)
		}
		for _, m := range rt.Methods {
			r.Method(m, rt.Pattern, h)
		}
	}
	return r
}

// Recover turns a handler panic into a 500 failure envelope.
func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Errorw("panic serving request",
						"path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError,
						envelope.NewFailure("Internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
