// internal/envelope/envelope.go
//
// Session and error envelopes exchanged with the browser.
//
// Context
// -------
// Backends are loose about field names (`authenticated` vs
// `isAuthenticated`, `user` vs `admin`, `client_id` vs `clientId`).  We
// normalize once, immediately after the network call, into two explicit
// result types so the rest of the code never branches on shape.
//
// Invariants enforced by the decoders:
//
//   • success=false ⇒ identity is null and the CSRF token is dropped.
//   • An unparseable body is a failure envelope, never an error value.
//   • A non-2xx status is never success, whatever the body claims.
//   • Failure text prefers the backend's own error/message; when there is
//     none, a message naming the HTTP status is synthesized.

package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fallback texts.
const (
	MsgInvalidResponse = "Invalid response from server"
	MsgUnreachable     = "Unable to reach the server.  Please try again."
	MsgLoggedOut       = "Logged out"
)

// StatusMessage synthesizes failure text for a status without a body.
func StatusMessage(status int) string {
	return fmt.Sprintf("Request failed with status %d", status)
}

// OK reports whether status is 2xx.
func OK(status int) bool { return status >= 200 && status < 300 }

// nullable maps "" to JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

/*──────────────────────────── tolerant scalars ─────────────────────────────*/

// text accepts a JSON string, an object with a "message" field, or null.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	case b[0] == '{':
		var o struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(b, &o); err != nil {
			return err
		}
		*t = text(o.Message)
	default:
		*t = text(b)
	}
	return nil
}

func firstBool(vals ...*bool) (bool, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return false, false
}

func firstString[T ~string](vals ...T) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

/*──────────────────────────── generic failure ──────────────────────────────*/

// Failure is the envelope for non-session routes that failed.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewFailure builds a Failure carrying msg in both text fields.
func NewFailure(msg string) Failure {
	return Failure{Error: msg, Message: msg}
}

// ExtractMessage pulls error text from a backend body, falling back to a
// synthesized status message.
func ExtractMessage(status int, body []byte) string {
	var w struct {
		Error   text `json:"error"`
		Message text `json:"message"`
		Detail  text `json:"detail"`
	}
	if err := json.Unmarshal(body, &w); err == nil {
		if s := firstString(w.Message, w.Error, w.Detail); s != "" {
			return s
		}
	}
	return StatusMessage(status)
}
