// internal/acl/decide.go
//
// Role decisions for staff sessions.
//
// Context
// -------
// Both the server-side role gate and the admin session holder need the
// same answer to one question: given the identity the backend reported,
// may this staff member use a surface restricted to a set of roles?
// Decide is that answer; callers map the Outcome onto HTTP statuses or
// redirects.
//
// Notes
// -----
// • An empty allow-list admits every known staff role.
// • A role the proxy has never heard of is denied, even with an empty
//   allow-list.

package acl

import (
	"fmt"
	"strings"

	"github.com/yanizio/gazette/internal/auth"
)

// Outcome is the result of a role decision.
type Outcome string

const (
	Granted         Outcome = "granted"
	Denied          Outcome = "denied"
	Unauthenticated Outcome = "unauthenticated"
	Failed          Outcome = "error"
)

// Decide checks id against allowed.  msg is empty when access is granted.
func Decide(id *auth.AdminIdentity, allowed []auth.Role) (Outcome, string) {
	if id == nil {
		return Unauthenticated, "Authentication required"
	}
	if len(allowed) == 0 {
		if id.Role.Known() {
			return Granted, ""
		}
		return Denied, DeniedMessage(id.Role, auth.StaffRoles)
	}
	for _, r := range allowed {
		if id.Role == r {
			return Granted, ""
		}
	}
	return Denied, DeniedMessage(id.Role, allowed)
}

// DeniedMessage names both the caller's role and the roles that would
// have been admitted.
func DeniedMessage(have auth.Role, allowed []auth.Role) string {
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	if have == "" {
		have = "none"
	}
	return fmt.Sprintf("Access denied: role %q is not permitted here (requires %s)",
		have, strings.Join(names, " or "))
}
