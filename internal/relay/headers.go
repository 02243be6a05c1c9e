// internal/relay/headers.go
//
// Outbound header construction for backend calls.
//
// Context
// -------
// Every proxy route rebuilds the backend request's headers from scratch.
// Only a fixed allow-list travels from the browser to the backend, so a
// hostile client cannot smuggle arbitrary headers (Host, X-Original-URL,
// hop-by-hop values) through the proxy tier.
//
// Notes
// -----
// • Values are copied verbatim and in order.  Multiple Cookie lines
//   (HTTP/2 splits them) all survive.
// • Nothing in this file logs header values.

package relay

import "net/http"

// Header names used across the relay and proxy packages.
const (
	HeaderCookie        = "Cookie"
	HeaderAuthorization = "Authorization"
	HeaderUserAgent     = "User-Agent"
	HeaderCSRFToken     = "X-Csrf-Token"
	HeaderForwardedFor  = "X-Forwarded-For"
	HeaderRealIP        = "X-Real-Ip"
	HeaderSetCookie     = "Set-Cookie"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"

	contentTypeJSON = "application/json"
)

// allowList is the complete set of inbound headers relayed to the backend.
var allowList = [...]string{
	HeaderCookie,
	HeaderAuthorization,
	HeaderUserAgent,
	HeaderCSRFToken,
	HeaderForwardedFor,
	HeaderRealIP,
}

// BuildHeaders returns a fresh header set for a backend request.  The
// allow-listed headers of r are copied, JSON Content-Type and Accept
// defaults are set, and extra is applied last so callers can override any
// of them (multipart uploads pass their own Content-Type this way).  r may
// be nil for calls that do not originate from a browser request.
func BuildHeaders(r *http.Request, extra http.Header) http.Header {
	out := make(http.Header, len(allowList)+2+len(extra))
	out.Set(HeaderContentType, contentTypeJSON)
	out.Set(HeaderAccept, contentTypeJSON)

	if r != nil {
		for _, name := range allowList {
			if vals := r.Header.Values(name); len(vals) > 0 {
				out[name] = append([]string(nil), vals...)
			}
		}
	}

	for name, vals := range extra {
		key := http.CanonicalHeaderKey(name)
		if len(vals) == 0 {
			delete(out, key)
			continue
		}
		out[key] = append([]string(nil), vals...)
	}
	return out
}
