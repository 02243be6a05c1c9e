// internal/session/admin.go
//
// Admin session holder.
//
// Context
// -------
// State machine:
//
//	Unknown ──Init──▶ Checking ──▶ Authenticated
//	                            ├─▶ Unauthenticated
//	                            └─▶ Error
//
// After the first check any of the three terminal states may follow any
// other.  The holder fails closed: an Error state never carries a user or
// a CSRF token.
//
// Concurrency
// -----------
// All state sits behind mu.  Concurrent CheckSession calls share one
// in-flight request (singleflight).  Other operations are last-write-wins.
// Close bumps the generation so replies that land afterwards are dropped.

package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/gazette/internal/acl"
	"github.com/yanizio/gazette/internal/auth"
	"github.com/yanizio/gazette/internal/envelope"
)

// AdminState is a point in the admin session state machine.
type AdminState int

const (
	AdminUnknown AdminState = iota
	AdminChecking
	AdminAuthenticated
	AdminUnauthenticated
	AdminError
)

func (s AdminState) String() string {
	switch s {
	case AdminChecking:
		return "checking"
	case AdminAuthenticated:
		return "authenticated"
	case AdminUnauthenticated:
		return "unauthenticated"
	case AdminError:
		return "error"
	}
	return "unknown"
}

// AdminSnapshot is a copy of the holder's state.
type AdminSnapshot struct {
	State           AdminState
	User            *auth.AdminIdentity
	IsAuthenticated bool
	IsLoading       bool
	Error           string
	CSRFToken       string
}

// Admin holds one staff session against the proxy tier.
type Admin struct {
	t   *transport
	log *zap.SugaredLogger
	opt Options

	initOnce sync.Once
	sf       singleflight.Group

	mu     sync.Mutex
	state  AdminState
	user   *auth.AdminIdentity
	csrf   string
	errMsg string
	gen    uint64
	closed bool
	subs   listeners[AdminSnapshot]
}

// NewAdmin returns a holder for the proxy tier at baseURL.
func NewAdmin(baseURL string, opt Options) (*Admin, error) {
	opt = opt.withDefaults()
	t, err := newTransport(baseURL, opt.HTTPClient)
	if err != nil {
		return nil, err
	}
	return &Admin{t: t, log: opt.Log, opt: opt}, nil
}

// Init performs the initial session check.  Only the first call does any
// work; later calls return the current snapshot.
func (a *Admin) Init(ctx context.Context) AdminSnapshot {
	a.initOnce.Do(func() {
		a.mu.Lock()
		if a.state == AdminUnknown {
			a.state = AdminChecking
		}
		a.mu.Unlock()
		a.CheckSession(ctx)
	})
	return a.Snapshot()
}

// Snapshot returns the current state.  Safe before Init.
func (a *Admin) Snapshot() AdminSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Admin) snapshotLocked() AdminSnapshot {
	return AdminSnapshot{
		State:           a.state,
		User:            a.user,
		IsAuthenticated: a.state == AdminAuthenticated,
		IsLoading:       a.state == AdminUnknown || a.state == AdminChecking,
		Error:           a.errMsg,
		CSRFToken:       a.csrf,
	}
}

// OnChange registers fn to run after every state change.  The returned
// func unregisters it.
func (a *Admin) OnChange(fn func(AdminSnapshot)) func() {
	a.mu.Lock()
	id := a.subs.add(fn)
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		a.subs.remove(id)
		a.mu.Unlock()
	}
}

// Close discards replies of operations still in flight.
func (a *Admin) Close() {
	a.mu.Lock()
	a.gen++
	a.closed = true
	a.mu.Unlock()
}

func (a *Admin) generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

// CheckSession asks the verify route and applies the outcome:
//
//   - 2xx, authenticated with a user  → Authenticated
//   - 401, or authenticated=false     → Unauthenticated, no error
//     (even when the body also says success=false)
//   - anything else                   → Error, identity cleared
func (a *Admin) CheckSession(ctx context.Context) AdminSnapshot {
	v, _, _ := a.sf.Do("check", func() (any, error) {
		gen := a.generation()
		rep, err := a.t.call(ctx, http.MethodGet, AdminVerifyPath, nil, "")
		if err != nil {
			a.log.Warnw("admin session check failed", "err", err)
			return a.apply(gen, AdminError, nil, "", envelope.MsgUnreachable), nil
		}

		res := envelope.DecodeAdmin(rep.status, rep.header, rep.body)
		switch {
		case res.Authenticated:
			return a.apply(gen, AdminAuthenticated, res.User, res.CSRFToken, ""), nil
		case rep.status == http.StatusUnauthorized, res.SignedOut, res.Success:
			return a.apply(gen, AdminUnauthenticated, nil, "", ""), nil
		default:
			return a.apply(gen, AdminError, nil, "", res.Text()), nil
		}
	})
	return v.(AdminSnapshot)
}

// RefreshSession re-runs CheckSession.
func (a *Admin) RefreshSession(ctx context.Context) AdminSnapshot {
	return a.CheckSession(ctx)
}

// Login posts credentials and applies the reply with the CheckSession
// rules.  The normalized envelope is always returned so callers can show
// the backend's own message.
func (a *Admin) Login(ctx context.Context, identifier, password string) envelope.AdminSessionResult {
	gen := a.generation()
	rep, err := a.t.call(ctx, http.MethodPost, AdminLoginPath, map[string]string{
		"identifier": identifier,
		"password":   password,
	}, "")
	if err != nil {
		a.log.Warnw("admin login failed", "err", err)
		a.apply(gen, AdminError, nil, "", envelope.MsgUnreachable)
		return envelope.AdminFailure(envelope.MsgUnreachable)
	}

	res := envelope.DecodeAdmin(rep.status, rep.header, rep.body)
	switch {
	case res.Authenticated:
		a.apply(gen, AdminAuthenticated, res.User, res.CSRFToken, "")
	case rep.status == http.StatusUnauthorized, rep.status == http.StatusForbidden, res.SignedOut, res.Success:
		a.apply(gen, AdminUnauthenticated, nil, "", res.Text())
	default:
		a.apply(gen, AdminError, nil, "", res.Text())
	}
	return res
}

// Logout posts to the logout route.  Local identity, CSRF token, and error
// are cleared whatever happens on the wire.
func (a *Admin) Logout(ctx context.Context) envelope.AdminSessionResult {
	gen := a.generation()
	csrf := a.Snapshot().CSRFToken

	res := envelope.AdminSessionResult{Success: true, Message: envelope.MsgLoggedOut}
	rep, err := a.t.call(ctx, http.MethodPost, AdminLogoutPath, nil, csrf)
	switch {
	case err != nil:
		a.log.Warnw("admin logout failed, clearing anyway", "err", err)
	case !envelope.OK(rep.status):
		a.log.Infow("admin logout rejected, clearing anyway", "status", rep.status)
	default:
		if got := envelope.DecodeAdmin(rep.status, rep.header, rep.body); got.Success && got.Message != "" {
			res.Message = got.Message
		}
	}

	a.apply(gen, AdminUnauthenticated, nil, "", "")
	return res
}

// apply installs a new state unless the holder moved on since gen.
func (a *Admin) apply(gen uint64, st AdminState, user *auth.AdminIdentity, csrf, errMsg string) AdminSnapshot {
	a.mu.Lock()
	if a.gen != gen || a.closed {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap
	}
	if st != AdminAuthenticated {
		user, csrf = nil, ""
	}
	a.state, a.user, a.csrf, a.errMsg = st, user, csrf, errMsg
	snap := a.snapshotLocked()
	fns := a.subs.snapshot()
	a.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return snap
}

/*──────────────────────────── role-gated UI ────────────────────────────────*/

// Decision is the outcome of Authorize.
type Decision struct {
	Granted  bool
	Pending  bool   // still loading; render nothing yet
	Redirect string // where to send the user when not granted
	Message  string // denial text, names the role
}

// Authorize decides whether the current staff member may see a page
// restricted to roles.  No roles means any staff role.
func (a *Admin) Authorize(roles ...auth.Role) Decision {
	snap := a.Snapshot()
	if snap.IsLoading {
		return Decision{Pending: true}
	}
	outcome, msg := acl.Decide(snap.User, roles)
	switch outcome {
	case acl.Granted:
		return Decision{Granted: true}
	case acl.Unauthenticated:
		return Decision{Redirect: a.opt.LoginPath, Message: msg}
	}
	return Decision{Redirect: a.opt.DeniedPath, Message: msg}
}

/*──────────────────────────── outbound calls ───────────────────────────────*/

// ErrClosed is returned by NewRequest after Close.
var ErrClosed = errors.New("session: holder closed")

// NewRequest builds a request to the proxy tier carrying the current CSRF
// token.  Send it with Do so the session cookies ride along.
func (a *Admin) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	a.mu.Lock()
	csrf, closed := a.csrf, a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return a.t.newRequest(ctx, method, path, body, csrf)
}

// Do sends req with the holder's cookie jar.
func (a *Admin) Do(req *http.Request) (*http.Response, error) { return a.t.http.Do(req) }
