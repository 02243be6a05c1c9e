// internal/envelope/admin.go
//
// Admin session envelope.
//
// Context
// -------
// Verify, login, and logout replies for staff sessions.  DecodeAdmin folds
// `user`/`admin`/`data.user` and `authenticated`/`isAuthenticated` into one
// AdminSessionResult.
//
// Notes
// -----
// • authenticated is true only when success is true and a user is present.
// • An explicit authenticated=false is kept as SignedOut so callers can
//   tell "no session" apart from a broken reply.

package envelope

import (
	"encoding/json"
	"net/http"

	"github.com/yanizio/gazette/internal/auth"
)

// AdminSessionResult is the canonical admin session envelope.
type AdminSessionResult struct {
	Success       bool
	Authenticated bool
	User          *auth.AdminIdentity
	CSRFToken     string
	Error         string
	Message       string

	// SignedOut is set when the backend answered with an explicit
	// authenticated=false, whatever it put in success.  It is never
	// serialized.
	SignedOut bool
}

// Text returns the most specific human-readable text on the envelope.
func (r AdminSessionResult) Text() string { return firstString(r.Error, r.Message) }

type adminJSON struct {
	Success       bool                `json:"success"`
	Authenticated bool                `json:"authenticated"`
	User          *auth.AdminIdentity `json:"user"`
	CSRFToken     *string             `json:"csrf_token"`
	Error         *string             `json:"error"`
	Message       *string             `json:"message"`
}

// MarshalJSON renders empty strings as null.
func (r AdminSessionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(adminJSON{
		Success:       r.Success,
		Authenticated: r.Authenticated,
		User:          r.User,
		CSRFToken:     nullable(r.CSRFToken),
		Error:         nullable(r.Error),
		Message:       nullable(r.Message),
	})
}

// adminWire is every shape we accept from a backend or from our own routes.
type adminWire struct {
	Success         *bool               `json:"success"`
	Authenticated   *bool               `json:"authenticated"`
	IsAuthenticated *bool               `json:"isAuthenticated"`
	User            *auth.AdminIdentity `json:"user"`
	Admin           *auth.AdminIdentity `json:"admin"`
	Data            *struct {
		User      *auth.AdminIdentity `json:"user"`
		Admin     *auth.AdminIdentity `json:"admin"`
		CSRFToken text                `json:"csrf_token"`
	} `json:"data"`
	CSRFToken      text `json:"csrf_token"`
	CSRFTokenCamel text `json:"csrfToken"`
	Error          text `json:"error"`
	Message        text `json:"message"`
}

// AdminFailure builds a failed envelope carrying msg.
func AdminFailure(msg string) AdminSessionResult {
	return AdminSessionResult{Error: msg, Message: msg}
}

// DecodeAdmin normalizes a backend (or proxy) response into an
// AdminSessionResult.  It never returns an error: a body that does not
// parse becomes a failure envelope.
func DecodeAdmin(status int, h http.Header, body []byte) AdminSessionResult {
	var w adminWire
	if err := json.Unmarshal(body, &w); err != nil {
		if OK(status) {
			return AdminFailure(MsgInvalidResponse)
		}
		return AdminFailure(StatusMessage(status))
	}

	res := AdminSessionResult{
		Error:   string(w.Error),
		Message: string(w.Message),
	}

	user := w.User
	if user == nil {
		user = w.Admin
	}
	csrf := firstString(w.CSRFToken, w.CSRFTokenCamel)
	if w.Data != nil {
		if user == nil {
			user = w.Data.User
		}
		if user == nil {
			user = w.Data.Admin
		}
		if csrf == "" {
			csrf = string(w.Data.CSRFToken)
		}
	}
	if csrf == "" && h != nil {
		csrf = h.Get("X-Csrf-Token")
	}

	success, set := firstBool(w.Success)
	if !set {
		success = OK(status)
	}
	if !OK(status) {
		success = false
	}
	authed, set := firstBool(w.Authenticated, w.IsAuthenticated)
	if !set {
		authed = user != nil
	}

	res.Success = success
	res.SignedOut = set && !authed && (OK(status) || status == http.StatusUnauthorized)
	res.Authenticated = success && authed && user != nil
	if res.Authenticated {
		res.User = user
	}
	if success {
		res.CSRFToken = csrf
	}
	if !success && res.Error == "" {
		res.Error = res.Message
		if res.Error == "" {
			res.Error = StatusMessage(status)
			if OK(status) {
				res.Error = MsgInvalidResponse
			}
		}
	}
	return res
}
