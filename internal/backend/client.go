// internal/backend/client.go
//
// HTTP client for the upstream news API.
//
// Context
// -------
// One Client is built at startup from Config.BackendBaseURL and shared by
// every proxy route and by the role gate, so the process can never talk to
// two different backends at once.
//
// Notes
// -----
// • Redirects are not followed.  A 302 that carries Set-Cookie must reach
//   the browser intact.
// • Outbound headers come from relay.BuildHeaders; the configured API key
//   is added as an override and never read from the browser.
// • Timeout 0 keeps net/http's default (no client-side deadline); session
//   routes rely on that.

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yanizio/gazette/internal/config"
	"github.com/yanizio/gazette/internal/relay"
)

// ErrUnreachable wraps every transport-level failure.
var ErrUnreachable = errors.New("backend unreachable")

const (
	headerAPIKey = "X-Api-Key"
	maxBodyBytes = 32 << 20
)

// Client talks to the backend.  Safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	apiKey string
}

// New returns a Client rooted at baseURL.
func New(baseURL string, timeout time.Duration, apiKey string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q: scheme and host required", baseURL)
	}
	return &Client{
		base:   u,
		apiKey: apiKey,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// FromConfig builds the process-wide Client from cfg.
func FromConfig(cfg *config.Config) (*Client, error) {
	return New(cfg.BackendBaseURL(), cfg.Backend.Timeout, cfg.Backend.APIKey)
}

// BaseURL returns the resolved backend root.
func (c *Client) BaseURL() string { return c.base.String() }

// Request describes one backend call.
type Request struct {
	Method   string
	Path     string        // backend path, params already substituted
	RawQuery string        // forwarded verbatim
	Body     io.Reader     // nil for no body
	Inbound  *http.Request // source of relayed headers; may be nil
	Header   http.Header   // overrides applied after the allow-list
}

// Response is a backend reply with its body fully read.
type Response struct {
	*http.Response
	Payload []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Do performs req.  Transport failures are wrapped in ErrUnreachable; any
// HTTP status, including 5xx, is returned as a Response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u := *c.base
	u.Path = singleJoiningSlash(c.base.Path, req.Path)
	u.RawQuery = req.RawQuery

	out, err := http.NewRequestWithContext(ctx, req.Method, u.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}

	extra := req.Header
	if c.apiKey != "" {
		extra = extra.Clone()
		if extra == nil {
			extra = http.Header{}
		}
		extra.Set(headerAPIKey, c.apiKey)
	}
	out.Header = relay.BuildHeaders(req.Inbound, extra)

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(payload))
	return &Response{Response: resp, Payload: payload}, nil
}

// singleJoiningSlash joins two URL paths with a single slash.
func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
