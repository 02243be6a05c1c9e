// internal/auth/context.go
//
// Staff identity as reported by the backend, plus request-context helpers.
//
// Usage
// -----
//     // The role gate attaches the verified identity.
//     ctx = auth.WithAdmin(ctx, id)
//
//     // Downstream handlers read it back.
//     id, ok := auth.Admin(ctx)
//
// Notes
// -----
// • The identity is an immutable read value per verify/login response.  The
//   proxy tier never edits it and never treats Role as the only authority;
//   the backend enforces its own checks.
// • Fields the proxy does not interpret (ids, permissions) are decoded
//   loosely so a backend schema change never makes the envelope unreadable.

package auth

import (
	"bytes"
	"context"
	"encoding/json"
)

// Role is a staff role name as issued by the backend.
type Role string

const (
	RoleEditor     Role = "editor"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// StaffRoles lists every role allowed into the admin dashboard.
var StaffRoles = []Role{RoleEditor, RoleModerator, RoleAdmin, RoleSuperAdmin}

// Known reports whether r is one of the staff roles.
func (r Role) Known() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// AdminIdentity is the staff member bound to an admin session.
type AdminIdentity struct {
	AdminID     ID              `json:"admin_id"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Permissions json.RawMessage `json:"permissions,omitempty"`
	Status      string          `json:"status"`
	LastLogin   string          `json:"last_login,omitempty"`
}

// ID is a backend identifier that may arrive as a JSON number or string.
type ID string

// UnmarshalJSON accepts a string, a number, or null.
func (i *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*i = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = ID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*i = ID(n.String())
	}
	return nil
}

// MarshalJSON writes digit-only ids as numbers, anything else as a string.
func (i ID) MarshalJSON() ([]byte, error) {
	if i == "" {
		return []byte("null"), nil
	}
	for _, c := range []byte(i) {
		if c < '0' || c > '9' {
			return json.Marshal(string(i))
		}
	}
	return []byte(i), nil
}

// DisplayName joins first and last name, falling back to the email.
func (a *AdminIdentity) DisplayName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return a.FirstName + " " + a.LastName
	case a.FirstName != "":
		return a.FirstName
	}
	return a.Email
}

// adminKey is unexported to avoid context-key collisions.
type adminKey struct{}

// WithAdmin returns a new context carrying id.
func WithAdmin(ctx context.Context, id *AdminIdentity) context.Context {
	return context.WithValue(ctx, adminKey{}, id)
}

// Admin extracts the identity stored by WithAdmin.
func Admin(ctx context.Context) (*AdminIdentity, bool) {
	id, ok := ctx.Value(adminKey{}).(*AdminIdentity)
	return id, ok && id != nil
}
