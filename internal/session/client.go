// internal/session/client.go
//
// Reader (client) session holder.
//
// Context
// -------
// A reader always ends up with some session: when the very first check
// finds none, the holder provisions an anonymous one.  That happens at most
// once per holder, and the rule lives in the transition table below rather
// than in a flag:
//
//	Uninitialized ─▶ Provisioning ─▶ Anonymous | Authenticated | Error
//	Uninitialized ─▶ Anonymous | Authenticated | Error
//	(any settled)  ─▶ Anonymous | Authenticated | NoSession | Error
//
// Provisioning is reachable from Uninitialized only, so a 401 on any later
// check lands in NoSession instead of looping back into provisioning.
//
// Notes
// -----
// • Unlike the admin holder, a transport failure on the initial check is
//   answered by provisioning, not by failing closed.
// • Logout clears local state whatever the wire says.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/gazette/internal/envelope"
)

// ClientState is a point in the reader session state machine.
type ClientState int

const (
	ClientUninitialized ClientState = iota
	ClientProvisioning
	ClientAnonymous
	ClientAuthenticated
	ClientNoSession
	ClientError
)

func (s ClientState) String() string {
	switch s {
	case ClientProvisioning:
		return "provisioning"
	case ClientAnonymous:
		return "anonymous"
	case ClientAuthenticated:
		return "authenticated"
	case ClientNoSession:
		return "no_session"
	case ClientError:
		return "error"
	}
	return "uninitialized"
}

// ErrTransition reports a move the state table forbids.
var ErrTransition = errors.New("session: transition not allowed")

var settled = []ClientState{ClientAnonymous, ClientAuthenticated, ClientNoSession, ClientError}

// clientTransitions lists the permitted targets of every state.
var clientTransitions = map[ClientState][]ClientState{
	ClientUninitialized: {ClientProvisioning, ClientAnonymous, ClientAuthenticated, ClientNoSession, ClientError},
	ClientProvisioning:  {ClientAnonymous, ClientAuthenticated, ClientNoSession, ClientError},
	ClientAnonymous:     settled,
	ClientAuthenticated: settled,
	ClientNoSession:     settled,
	ClientError:         settled,
}

// CanTransition reports whether the table permits from → to.
func CanTransition(from, to ClientState) bool {
	for _, s := range clientTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ClientSnapshot is a copy of the holder's state.
type ClientSnapshot struct {
	State           ClientState
	ClientID        string
	IsAuthenticated bool
	IsAnonymous     bool
	IsLoading       bool
	Error           string
	CSRFToken       string
}

// Client holds one reader session against the proxy tier.
type Client struct {
	t   *transport
	log *zap.SugaredLogger

	initOnce sync.Once
	sf       singleflight.Group

	mu       sync.Mutex
	state    ClientState
	clientID string
	csrf     string
	errMsg   string
	gen      uint64
	closed   bool
	subs     listeners[ClientSnapshot]
}

// NewClient returns a holder for the proxy tier at baseURL.
func NewClient(baseURL string, opt Options) (*Client, error) {
	opt = opt.withDefaults()
	t, err := newTransport(baseURL, opt.HTTPClient)
	if err != nil {
		return nil, err
	}
	return &Client{t: t, log: opt.Log}, nil
}

// Init performs the initial check, provisioning an anonymous session when
// none exists.  Only the first call does any work.
func (c *Client) Init(ctx context.Context) ClientSnapshot {
	c.initOnce.Do(func() { c.CheckSession(ctx, true) })
	return c.Snapshot()
}

// Snapshot returns the current state.  Safe before Init.
func (c *Client) Snapshot() ClientSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() ClientSnapshot {
	return ClientSnapshot{
		State:           c.state,
		ClientID:        c.clientID,
		IsAuthenticated: c.state == ClientAuthenticated,
		IsAnonymous:     c.state == ClientAnonymous,
		IsLoading:       c.state == ClientUninitialized || c.state == ClientProvisioning,
		Error:           c.errMsg,
		CSRFToken:       c.csrf,
	}
}

// OnChange registers fn to run after every state change.
func (c *Client) OnChange(fn func(ClientSnapshot)) func() {
	c.mu.Lock()
	id := c.subs.add(fn)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.subs.remove(id)
		c.mu.Unlock()
	}
}

// Close discards replies of operations still in flight.
func (c *Client) Close() {
	c.mu.Lock()
	c.gen++
	c.closed = true
	c.mu.Unlock()
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// supersede starts a new generation so replies of calls already in flight
// are dropped.
func (c *Client) supersede() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

// CheckSession asks the client verify route.  initial marks the first
// check of the holder's life; only then may a 401 or a transport failure
// trigger anonymous provisioning.
func (c *Client) CheckSession(ctx context.Context, initial bool) ClientSnapshot {
	v, _, _ := c.sf.Do(fmt.Sprintf("check:%t", initial), func() (any, error) {
		gen := c.generation()
		rep, err := c.t.call(ctx, http.MethodGet, ClientVerifyPath, nil, "")
		if err != nil {
			c.log.Warnw("client session check failed", "initial", initial, "err", err)
			if initial && c.autoProvision(ctx, gen) {
				return c.Snapshot(), nil
			}
			return c.fail(gen, envelope.MsgUnreachable, false), nil
		}

		if rep.status == http.StatusUnauthorized {
			if initial && c.autoProvision(ctx, gen) {
				return c.Snapshot(), nil
			}
			return c.apply(gen, ClientNoSession, envelope.ClientSessionResult{}), nil
		}

		res := envelope.DecodeClient(rep.status, rep.header, rep.body)
		if !res.Success {
			return c.fail(gen, res.Text(), true), nil
		}
		return c.apply(gen, stateOf(res), res), nil
	})
	return v.(ClientSnapshot)
}

// RefreshSession re-checks without ever provisioning.
func (c *Client) RefreshSession(ctx context.Context) ClientSnapshot {
	return c.CheckSession(ctx, false)
}

// autoProvision moves to Provisioning and provisions.  It reports false,
// without touching the network, when the table forbids the move.
func (c *Client) autoProvision(ctx context.Context, gen uint64) bool {
	c.mu.Lock()
	if c.gen != gen || !CanTransition(c.state, ClientProvisioning) {
		c.mu.Unlock()
		return false
	}
	c.state = ClientProvisioning
	c.mu.Unlock()

	c.provision(ctx, gen)
	return true
}

// CreateAnonymousSession asks the backend for a fresh anonymous session
// and applies it.  It never fails loudly; the result says whether a
// session was obtained.
func (c *Client) CreateAnonymousSession(ctx context.Context) bool {
	return c.provision(ctx, c.generation())
}

func (c *Client) provision(ctx context.Context, gen uint64) bool {
	rep, err := c.t.call(ctx, http.MethodPost, ClientAnonymousPath, nil, "")
	if err != nil {
		c.log.Warnw("anonymous session provisioning failed", "err", err)
		c.fail(gen, envelope.MsgUnreachable, true)
		return false
	}
	res := envelope.DecodeClient(rep.status, rep.header, rep.body)
	if !res.Success {
		c.fail(gen, res.Text(), true)
		return false
	}
	st := stateOf(res)
	if st == ClientNoSession {
		// a success without a client id is no session at all
		c.fail(gen, envelope.MsgInvalidResponse, true)
		return false
	}
	c.apply(gen, st, res)
	return true
}

// Login posts reader credentials.
func (c *Client) Login(ctx context.Context, identifier, password string) envelope.ClientSessionResult {
	return c.authCall(ctx, ClientLoginPath, map[string]string{
		"identifier": identifier,
		"password":   password,
	})
}

// Registration is the payload for Register.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Register creates a reader account; on success the session is upgraded
// in place.
func (c *Client) Register(ctx context.Context, reg Registration) envelope.ClientSessionResult {
	return c.authCall(ctx, ClientRegisterPath, reg)
}

// authCall posts payload and applies the reply.  A rejected attempt keeps
// the existing session (an anonymous reader stays anonymous) and records
// the backend's message.
func (c *Client) authCall(ctx context.Context, path string, payload any) envelope.ClientSessionResult {
	gen := c.generation()
	rep, err := c.t.call(ctx, http.MethodPost, path, payload, c.Snapshot().CSRFToken)
	if err != nil {
		c.log.Warnw("client auth call failed", "path", path, "err", err)
		c.note(gen, envelope.MsgUnreachable)
		return envelope.ClientFailure(envelope.MsgUnreachable)
	}
	res := envelope.DecodeClient(rep.status, rep.header, rep.body)
	if !res.Success {
		c.note(gen, res.Text())
		return res
	}
	c.apply(gen, stateOf(res), res)
	return res
}

// Logout posts to the reader logout route and always clears local state.
// A check or provisioning still in flight cannot restore the session.
func (c *Client) Logout(ctx context.Context) envelope.ClientSessionResult {
	gen := c.supersede()
	res := envelope.ClientSessionResult{Success: true, Message: envelope.MsgLoggedOut}

	rep, err := c.t.call(ctx, http.MethodPost, ClientLogoutPath, nil, c.Snapshot().CSRFToken)
	switch {
	case err != nil:
		c.log.Warnw("client logout failed, clearing anyway", "err", err)
	case !envelope.OK(rep.status):
		c.log.Infow("client logout rejected, clearing anyway", "status", rep.status)
	}

	c.apply(gen, ClientNoSession, envelope.ClientSessionResult{})
	return res
}

/*──────────────────────────── state application ────────────────────────────*/

func stateOf(res envelope.ClientSessionResult) ClientState {
	switch {
	case res.IsAuthenticated:
		return ClientAuthenticated
	case res.IsAnonymous:
		return ClientAnonymous
	}
	return ClientNoSession
}

// apply installs st with the identity from res.  Moves the table forbids
// are logged and dropped.
func (c *Client) apply(gen uint64, st ClientState, res envelope.ClientSessionResult) ClientSnapshot {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	if !CanTransition(c.state, st) {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.log.Errorw("client session transition rejected",
			"from", snap.State.String(), "to", st.String(), "err", ErrTransition)
		return snap
	}
	c.state = st
	c.errMsg = ""
	if st == ClientAnonymous || st == ClientAuthenticated {
		c.clientID, c.csrf = res.ClientID, res.CSRFToken
	} else {
		c.clientID, c.csrf = "", ""
	}
	return c.publishLocked()
}

// fail moves to Error.  clear drops the identity; otherwise the last known
// session is kept for a later retry.
func (c *Client) fail(gen uint64, msg string, clear bool) ClientSnapshot {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.state = ClientError
	c.errMsg = msg
	if clear {
		c.clientID, c.csrf = "", ""
	}
	return c.publishLocked()
}

// note records an error message without changing state.
func (c *Client) note(gen uint64, msg string) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.errMsg = msg
	c.publishLocked()
}

// publishLocked snapshots, unlocks, and notifies listeners.
func (c *Client) publishLocked() ClientSnapshot {
	snap := c.snapshotLocked()
	fns := c.subs.snapshot()
	c.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
	return snap
}

/*──────────────────────────── outbound calls ───────────────────────────────*/

// NewRequest builds a request to the proxy tier carrying the CSRF token.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	c.mu.Lock()
	csrf, closed := c.csrf, c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return c.t.newRequest(ctx, method, path, body, csrf)
}

// Do sends req with the holder's cookie jar.
func (c *Client) Do(req *http.Request) (*http.Response, error) { return c.t.http.Do(req) }
