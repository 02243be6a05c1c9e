// internal/envelope/client.go
//
// Reader session envelope.
//
// Context
// -------
// Verify, anonymous, login, register, and logout replies for reader
// sessions.  Client ids arrive as strings or numbers and under either
// `client_id` or `clientId`.
//
// Notes
// -----
// • isAuthenticated and isAnonymous are never both true.
// • When the backend omits isAnonymous, a client id without authentication
//   means anonymous.

package envelope

import (
	"encoding/json"
	"net/http"

	"github.com/yanizio/gazette/internal/auth"
)

// ClientSessionResult is the canonical reader session envelope.
// IsAuthenticated and IsAnonymous are never both true.
type ClientSessionResult struct {
	Success         bool
	IsAuthenticated bool
	IsAnonymous     bool
	ClientID        string
	CSRFToken       string
	Error           string
	Message         string
}

// Text returns the most specific human-readable text on the envelope.
func (r ClientSessionResult) Text() string { return firstString(r.Error, r.Message) }

type clientJSON struct {
	Success         bool    `json:"success"`
	IsAuthenticated bool    `json:"isAuthenticated"`
	IsAnonymous     bool    `json:"isAnonymous"`
	ClientID        *string `json:"client_id"`
	CSRFToken       *string `json:"csrf_token"`
	Error           *string `json:"error"`
	Message         *string `json:"message"`
}

// MarshalJSON renders empty strings as null.
func (r ClientSessionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(clientJSON{
		Success:         r.Success,
		IsAuthenticated: r.IsAuthenticated,
		IsAnonymous:     r.IsAnonymous,
		ClientID:        nullable(r.ClientID),
		CSRFToken:       nullable(r.CSRFToken),
		Error:           nullable(r.Error),
		Message:         nullable(r.Message),
	})
}

type clientWire struct {
	Success         *bool   `json:"success"`
	IsAuthenticated *bool   `json:"isAuthenticated"`
	Authenticated   *bool   `json:"authenticated"`
	IsAnonymous     *bool   `json:"isAnonymous"`
	Anonymous       *bool   `json:"is_anonymous"`
	ClientID        auth.ID `json:"client_id"`
	ClientIDCamel   auth.ID `json:"clientId"`
	Data            *struct {
		ClientID  auth.ID `json:"client_id"`
		CSRFToken text    `json:"csrf_token"`
	} `json:"data"`
	CSRFToken      text `json:"csrf_token"`
	CSRFTokenCamel text `json:"csrfToken"`
	Error          text `json:"error"`
	Message        text `json:"message"`
}

// ClientFailure builds a failed envelope carrying msg.
func ClientFailure(msg string) ClientSessionResult {
	return ClientSessionResult{Error: msg, Message: msg}
}

// DecodeClient normalizes a backend (or proxy) response into a
// ClientSessionResult.  It never returns an error.
func DecodeClient(status int, h http.Header, body []byte) ClientSessionResult {
	var w clientWire
	if err := json.Unmarshal(body, &w); err != nil {
		if OK(status) {
			return ClientFailure(MsgInvalidResponse)
		}
		return ClientFailure(StatusMessage(status))
	}

	res := ClientSessionResult{
		Error:   string(w.Error),
		Message: string(w.Message),
	}

	id := firstString(w.ClientID, w.ClientIDCamel)
	csrf := firstString(w.CSRFToken, w.CSRFTokenCamel)
	if w.Data != nil {
		if id == "" {
			id = string(w.Data.ClientID)
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

	res.Success = success
	if success {
		authed, _ := firstBool(w.IsAuthenticated, w.Authenticated)
		anon, set := firstBool(w.IsAnonymous, w.Anonymous)
		if !set {
			anon = !authed && id != ""
		}
		res.IsAuthenticated = authed
		res.IsAnonymous = anon && !authed
		res.ClientID = id
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
