// internal/acl/gate.go
//
// Chi middleware that admits staff by role.
//
// Context
// -------
// Admin resource routes sit behind RequireRole.  For each request the gate
// replays the caller's cookies against the backend verify endpoint, decides
// on the returned identity, and either forwards with the identity attached
// (auth.WithAdmin) or answers with a JSON failure envelope:
//
//   • 401  no valid admin session
//   • 403  session valid, role not admitted (message names the role)
//   • 503  verify could not be completed
//
// Notes
// -----
// • Fail closed.  Any doubt about the session is a refusal.
// • The backend re-checks authorization on the forwarded call; the gate
//   only spares it obviously doomed requests.

package acl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/auth"
	"github.com/yanizio/gazette/internal/backend"
	"github.com/yanizio/gazette/internal/envelope"
	"github.com/yanizio/gazette/internal/metrics"
)

// VerifyPath is the backend admin verify endpoint.
const VerifyPath = "/api/admin/auth/verify"

// Verifier resolves the admin session carried by an inbound request.
type Verifier interface {
	VerifyAdmin(ctx context.Context, r *http.Request) (envelope.AdminSessionResult, error)
}

// BackendVerifier asks the backend verify endpoint.
type BackendVerifier struct {
	be backend.Doer
}

// NewVerifier returns a Verifier backed by be.
func NewVerifier(be backend.Doer) *BackendVerifier { return &BackendVerifier{be: be} }

// VerifyAdmin returns the normalized verify envelope.  A transport failure
// or a 5xx from the backend is an error; 401/403 are ordinary results.
func (v *BackendVerifier) VerifyAdmin(ctx context.Context, r *http.Request) (envelope.AdminSessionResult, error) {
	resp, err := v.be.Do(ctx, backend.Request{
		Method:  http.MethodGet,
		Path:    VerifyPath,
		Inbound: r,
	})
	if err != nil {
		return envelope.AdminSessionResult{}, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return envelope.AdminSessionResult{}, fmt.Errorf("admin verify: status %d", resp.StatusCode)
	}
	return envelope.DecodeAdmin(resp.StatusCode, resp.Header, resp.Payload), nil
}

// RequireRole admits requests whose admin session holds ANY of roles.
// With no roles every staff role is admitted.
func RequireRole(v Verifier, roles ...auth.Role) func(http.Handler) http.Handler {
	if v == nil {
		panic("acl.RequireRole: nil verifier")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := v.VerifyAdmin(r.Context(), r)
			if err != nil {
				metrics.RoleGateDecisionsTotal.WithLabelValues(string(Failed)).Inc()
				zap.S().Errorw("role gate verify", "path", r.URL.Path, "err", err)
				deny(w, http.StatusServiceUnavailable, envelope.MsgUnreachable)
				return
			}

			var id *auth.AdminIdentity
			if res.Authenticated {
				id = res.User
			}
			outcome, msg := Decide(id, roles)
			metrics.RoleGateDecisionsTotal.WithLabelValues(string(outcome)).Inc()

			switch outcome {
			case Granted:
				next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context(), id)))
			case Unauthenticated:
				if t := res.Text(); t != "" {
					msg = t
				}
				deny(w, http.StatusUnauthorized, msg)
			default:
				zap.S().Infow("role gate denied",
					"path", r.URL.Path, "admin_id", id.AdminID, "role", id.Role)
				deny(w, http.StatusForbidden, msg)
			}
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope.NewFailure(msg))
}
