// internal/proxy/handler.go
//
// Generic forwarding handler built from one Route.
//
// Context
// -------
// Request path:
//
//   1. Validate chi URL params against Route.Params (400 on failure).
//   2. Buffer the body so the backend sees a Content-Length.
//   3. Forward method, query, and allow-listed headers via backend.Doer.
//
// Response path:
//
//   • Every Set-Cookie is relayed, split when folded.
//   • Session routes are normalized into their envelope.
//   • Resource routes relay a 2xx body verbatim; non-2xx bodies are reduced
//     to a Failure envelope with the backend's own message.
//   • Transport failure is 500, or 503 on public read routes.
//
// Notes
// -----
// • Cookie values are never logged.
// • Logout routes always answer 200.

package proxy

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/backend"
	"github.com/yanizio/gazette/internal/envelope"
	"github.com/yanizio/gazette/internal/metrics"
	"github.com/yanizio/gazette/internal/relay"
)

const maxInboundBody = 32 << 20

var validate = validator.New()

// Handler forwards one Route to the backend.
type Handler struct {
	route     Route
	backend   backend.Doer
	log       *zap.SugaredLogger
	crossSite bool
}

// NewHandler builds the handler for rt.  production enables the cross-site
// cookie rewrite on routes that ask for it.
func NewHandler(rt Route, be backend.Doer, log *zap.SugaredLogger, production bool) *Handler {
	if log == nil {
		log = zap.S()
	}
	return &Handler{
		route:     rt,
		backend:   be,
		log:       log.With("route", rt.Name),
		crossSite: production && rt.CrossSite,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if name, ok := h.invalidParam(r); !ok {
		h.fail(w, r, http.StatusBadRequest, "Invalid "+name)
		return
	}

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody && bodyAllowed(r.Method) {
		buf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInboundBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				h.fail(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			h.fail(w, r, http.StatusBadRequest, "Unable to read request body")
			return
		}
		if len(buf) > 0 {
			body = bytes.NewReader(buf)
		}
	}

	var extra http.Header
	if ct := r.Header.Get("Content-Type"); ct != "" {
		// multipart boundaries must reach the backend untouched
		extra = http.Header{"Content-Type": {ct}}
	}

	start := time.Now()
	resp, err := h.backend.Do(r.Context(), backend.Request{
		Method:   r.Method,
		Path:     h.upstreamPath(r),
		RawQuery: r.URL.RawQuery,
		Body:     body,
		Inbound:  r,
		Header:   extra,
	})
	metrics.UpstreamDuration.WithLabelValues(h.route.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues(h.route.Name).Inc()
		h.log.Errorw("backend request failed", "method", r.Method, "err", err)
		h.unreachable(w, r)
		return
	}

	if h.crossSite {
		relay.RelayCookiesWith(resp.Response, w.Header(), relay.ForceCrossSite)
	} else {
		relay.RelayCookies(resp.Response, w.Header())
	}

	switch h.route.Kind {
	case KindAdminSession:
		res := envelope.DecodeAdmin(resp.StatusCode, resp.Header, resp.Payload)
		status := resp.StatusCode
		if h.route.AlwaysOK {
			status, res = http.StatusOK, loggedOutAdmin(res)
		}
		h.json(w, r, status, res)
	case KindClientSession:
		res := envelope.DecodeClient(resp.StatusCode, resp.Header, resp.Payload)
		status := resp.StatusCode
		if h.route.AlwaysOK {
			status, res = http.StatusOK, loggedOutClient(res)
		}
		h.json(w, r, status, res)
	default:
		if !resp.OK() {
			h.log.Infow("backend rejected request",
				"method", r.Method, "status", resp.StatusCode)
			h.json(w, r, resp.StatusCode,
				envelope.NewFailure(envelope.ExtractMessage(resp.StatusCode, resp.Payload)))
			return
		}
		h.raw(w, r, resp)
	}
}

/*──────────────────────────── request helpers ──────────────────────────────*/

// invalidParam returns the first URL param that fails its rule.
func (h *Handler) invalidParam(r *http.Request) (string, bool) {
	for name, rule := range h.route.Params {
		if err := validate.Var(pathParam(chi.URLParam(r, name)), rule); err != nil {
			return name, false
		}
	}
	return "", true
}

// upstreamPath substitutes {param} placeholders with URL params.
func (h *Handler) upstreamPath(r *http.Request) string {
	p := h.route.Upstream
	for name := range h.route.Params {
		p = strings.ReplaceAll(p, "{"+name+"}", pathParam(chi.URLParam(r, name)))
	}
	return p
}

func bodyAllowed(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

/*──────────────────────────── response helpers ─────────────────────────────*/

// noCache marks responses that must never be stored by the browser or an
// intermediary.
func (h *Handler) noCache(r *http.Request) bool {
	return h.route.Kind.session() || mutating(r.Method)
}

func (h *Handler) json(w http.ResponseWriter, r *http.Request, status int, v any) {
	if h.noCache(r) {
		setNoCache(w.Header())
	}
	writeJSON(w, status, v)
	metrics.ProxyRequestsTotal.WithLabelValues(h.route.Name, strconv.Itoa(status)).Inc()
}

func (h *Handler) raw(w http.ResponseWriter, r *http.Request, resp *backend.Response) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	if h.noCache(r) {
		setNoCache(w.Header())
	} else if cc := resp.Header.Get("Cache-Control"); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Payload)
	metrics.ProxyRequestsTotal.WithLabelValues(h.route.Name, strconv.Itoa(resp.StatusCode)).Inc()
}

// fail writes the route's failure envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	switch h.route.Kind {
	case KindAdminSession:
		h.json(w, r, status, envelope.AdminFailure(msg))
	case KindClientSession:
		h.json(w, r, status, envelope.ClientFailure(msg))
	default:
		h.json(w, r, status, envelope.NewFailure(msg))
	}
}

func (h *Handler) unreachable(w http.ResponseWriter, r *http.Request) {
	switch {
	case h.route.AlwaysOK && h.route.Kind == KindAdminSession:
		h.json(w, r, http.StatusOK, loggedOutAdmin(envelope.AdminSessionResult{}))
	case h.route.AlwaysOK && h.route.Kind == KindClientSession:
		h.json(w, r, http.StatusOK, loggedOutClient(envelope.ClientSessionResult{}))
	case h.route.Kind == KindPublicRead:
		h.fail(w, r, http.StatusServiceUnavailable, envelope.MsgUnreachable)
	default:
		h.fail(w, r, http.StatusInternalServerError, envelope.MsgUnreachable)
	}
}

// loggedOutAdmin turns any logout outcome into a successful, identity-free
// envelope.
func loggedOutAdmin(in envelope.AdminSessionResult) envelope.AdminSessionResult {
	msg := in.Message
	if !in.Success || msg == "" {
		msg = envelope.MsgLoggedOut
	}
	return envelope.AdminSessionResult{Success: true, Message: msg}
}

func loggedOutClient(in envelope.ClientSessionResult) envelope.ClientSessionResult {
	msg := in.Message
	if !in.Success || msg == "" {
		msg = envelope.MsgLoggedOut
	}
	return envelope.ClientSessionResult{Success: true, Message: msg}
}
