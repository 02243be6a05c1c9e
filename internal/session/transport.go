// internal/session/transport.go
//
// HTTP plumbing shared by the Admin and Client holders.
//
// Context
// -------
// A holder plays the part of one browser tab talking to the proxy tier.  It
// owns a cookie jar so Set-Cookie values relayed by the proxy come back on
// the next call exactly as a browser would send them.  Holders never look
// inside those cookies.
//
// Notes
// -----
// • The jar uses the public-suffix list so a proxy on a shared registrable
//   domain cannot plant cookies for its siblings.
// • Transport failures are returned as errors; every HTTP status is a reply.

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Proxy-tier paths used by the holders.
const (
	AdminLoginPath  = "/admin/auth/login"
	AdminLogoutPath = "/admin/auth/logout"
	AdminVerifyPath = "/admin/auth/verify"

	ClientVerifyPath    = "/client/auth/verify"
	ClientAnonymousPath = "/client/auth/anonymous"
	ClientLoginPath     = "/client/auth/login"
	ClientLogoutPath    = "/client/auth/logout"
	ClientRegisterPath  = "/client/auth/register"

	headerCSRF = "X-CSRF-Token"
	maxReply   = 4 << 20
)

// Options configure a holder.  The zero value is usable.
type Options struct {
	// HTTPClient is copied; a cookie jar is added when it has none.
	HTTPClient *http.Client
	Log        *zap.SugaredLogger
	// LoginPath and DeniedPath are the Authorize redirect targets.
	LoginPath  string
	DeniedPath string
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = zap.S()
	}
	if o.LoginPath == "" {
		o.LoginPath = "/admin/login"
	}
	if o.DeniedPath == "" {
		o.DeniedPath = "/admin"
	}
	return o
}

type transport struct {
	base *url.URL
	http *http.Client
}

type reply struct {
	status int
	header http.Header
	body   []byte
}

func newTransport(baseURL string, hc *http.Client) (*transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("session base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("session base url %q: scheme and host required", baseURL)
	}

	var c http.Client
	if hc != nil {
		c = *hc
	}
	if c.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.Jar = jar
	}
	return &transport{base: u, http: &c}, nil
}

// newRequest targets path on the proxy tier, attaching csrf when non-empty.
func (t *transport) newRequest(ctx context.Context, method, path string, body io.Reader, csrf string) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("request path %q: %w", path, err)
	}
	u := *t.base
	u.Path = t.base.Path + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf != "" {
		req.Header.Set(headerCSRF, csrf)
	}
	return req, nil
}

// call sends an optional JSON payload and reads the whole reply.
func (t *transport) call(ctx context.Context, method, path string, payload any, csrf string) (*reply, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := t.newRequest(ctx, method, path, body, csrf)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxReply))
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", path, err)
	}
	return &reply{status: resp.StatusCode, header: resp.Header, body: b}, nil
}

/*──────────────────────────── listeners ────────────────────────────────────*/

// listeners is a registry of change callbacks keyed by a handle.
type listeners[T any] struct {
	next int
	fns  map[int]func(T)
}

func (l *listeners[T]) add(fn func(T)) int {
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	l.next++
	l.fns[l.next] = fn
	return l.next
}

func (l *listeners[T]) remove(id int) { delete(l.fns, id) }

// snapshot copies the callbacks so they can run outside the holder lock.
func (l *listeners[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		out = append(out, fn)
	}
	return out
}
