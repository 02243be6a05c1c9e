// internal/relay/cookies.go
//
// Set-Cookie relay from backend responses to browser responses.
//
// Context
// -------
// Go's net/http keeps repeated Set-Cookie lines as a genuine list, which is
// what we read first.  Some intermediaries (and some backends running on
// other runtimes) fold several cookies into one comma-joined value.  A
// naive split on "," would cut `Expires=Wed, 21 Oct 2015 …` in half, so the
// splitter only breaks on a comma that is followed by a cookie-name token
// and "=".
//
// Known limit: a cookie *value* containing ", name=" is indistinguishable
// from a fold and will be split.  Backends should not emit such values.

package relay

import (
	"net/http"
	"strings"
)

// RelayCookies appends every cookie found in resp's Set-Cookie header(s)
// to dst, preserving order, and returns how many were relayed.  A response
// without Set-Cookie is a no-op.
func RelayCookies(resp *http.Response, dst http.Header) int {
	return RelayCookiesWith(resp, dst, nil)
}

// RelayCookiesWith is RelayCookies with an optional per-cookie rewrite.
func RelayCookiesWith(resp *http.Response, dst http.Header, rewrite func(string) string) int {
	if resp == nil {
		return 0
	}
	n := 0
	for _, c := range SetCookieValues(resp.Header) {
		if rewrite != nil {
			c = rewrite(c)
		}
		dst.Add(HeaderSetCookie, c)
		n++
	}
	return n
}

// SetCookieValues returns the individual cookie strings carried by h,
// splitting any folded values.
func SetCookieValues(h http.Header) []string {
	raw := h.Values(HeaderSetCookie)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, SplitSetCookie(v)...)
	}
	return out
}

// SplitSetCookie splits a comma-folded Set-Cookie value into its cookies.
// Segments are trimmed; empty segments are dropped.
func SplitSetCookie(joined string) []string {
	var out []string
	start := 0
	for i := 0; i < len(joined); i++ {
		if joined[i] != ',' || !startsCookie(joined[i+1:]) {
			continue
		}
		if seg := strings.TrimSpace(joined[start:i]); seg != "" {
			out = append(out, seg)
		}
		start = i + 1
	}
	if seg := strings.TrimSpace(joined[start:]); seg != "" {
		out = append(out, seg)
	}
	return out
}

// startsCookie reports whether s begins (after blanks) with `token=`.
func startsCookie(s string) bool {
	s = strings.TrimLeft(s, " \t")
	n := 0
	for n < len(s) && isTokenChar(s[n]) {
		n++
	}
	return n > 0 && n < len(s) && s[n] == '='
}

// isTokenChar implements the RFC 7230 tchar set.
func isTokenChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", b) >= 0
}

// ForceCrossSite rewrites a Set-Cookie string so the browser will send it
// on cross-site requests: any SameSite and Secure attributes are dropped and
// `SameSite=None; Secure` is appended.
func ForceCrossSite(cookie string) string {
	parts := strings.Split(cookie, ";")
	kept := make([]string, 0, len(parts)+2)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i > 0 {
			name, _, _ := strings.Cut(p, "=")
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "samesite", "secure":
				continue
			}
		}
		kept = append(kept, p)
	}
	kept = append(kept, "SameSite=None", "Secure")
	return strings.Join(kept, "; ")
}
