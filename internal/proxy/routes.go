// internal/proxy/routes.go
//
// Declarative route table for the proxy tier.
//
// Context
// -------
// Every browser-facing endpoint is one Route value: where it is mounted,
// which backend path it forwards to, how its path params are validated, and
// which envelope it speaks.  Handlers are built from these values; no route
// carries state of its own.
//
// Notes
// -----
// • Param rules are go-playground/validator tags applied to chi URL params.
// • Staff routes list the roles the role gate admits.  The backend still
//   enforces authorization on its side.

package proxy

import (
	"net/http"

	"github.com/yanizio/gazette/internal/auth"
)

// Kind selects the envelope and error policy of a route.
type Kind int

const (
	// KindResource relays the backend body verbatim.
	KindResource Kind = iota
	// KindPublicRead is a read-only public route; transport failures
	// surface as 503 instead of 500.
	KindPublicRead
	// KindAdminSession normalizes to envelope.AdminSessionResult.
	KindAdminSession
	// KindClientSession normalizes to envelope.ClientSessionResult.
	KindClientSession
)

func (k Kind) session() bool { return k == KindAdminSession || k == KindClientSession }

// Param validation rules.  Values are checked after percent-decoding, so a
// slug may never be a dot segment.
const (
	ruleID   = "required,number,max=19"
	ruleSlug = "required,max=200,excludesall=/?#,ne=.,ne=.."
)

// Route describes one proxied endpoint.
type Route struct {
	Name      string            // metrics and log label
	Pattern   string            // chi pattern
	Methods   []string          // allowed methods
	Upstream  string            // backend path, {param} placeholders
	Kind      Kind              // envelope and error policy
	Params    map[string]string // URL param -> validator rule
	AlwaysOK  bool              // logout: browser always sees 200
	CrossSite bool              // force SameSite=None; Secure in production
	Roles     []auth.Role       // staff gate; empty means no gate
}

var (
	get      = []string{http.MethodGet}
	post     = []string{http.MethodPost}
	getPost  = []string{http.MethodGet, http.MethodPost}
	getPut   = []string{http.MethodGet, http.MethodPut}
	putDel   = []string{http.MethodPut, http.MethodDelete}
	crud     = []string{http.MethodGet, http.MethodPut, http.MethodDelete}
	onlyDel  = []string{http.MethodDelete}
	idParam  = map[string]string{"id": ruleID}
	slugOnly = map[string]string{"slug": ruleSlug}

	adminRoles = []auth.Role{auth.RoleAdmin, auth.RoleSuperAdmin}
)

// Routes returns the full route table.
func Routes() []Route {
	staff := auth.StaffRoles
	return []Route{
		// Admin session.
		{Name: "admin_login", Pattern: "/admin/auth/login", Methods: post, Upstream: "/api/admin/auth/login", Kind: KindAdminSession},
		{Name: "admin_logout", Pattern: "/admin/auth/logout", Methods: post, Upstream: "/api/admin/auth/logout", Kind: KindAdminSession, AlwaysOK: true},
		{Name: "admin_verify", Pattern: "/admin/auth/verify", Methods: get, Upstream: "/api/admin/auth/verify", Kind: KindAdminSession},

		// Client session.
		{Name: "client_verify", Pattern: "/client/auth/verify", Methods: getPost, Upstream: "/api/client/auth/verify", Kind: KindClientSession, CrossSite: true},
		{Name: "client_verify_alias", Pattern: "/verify", Methods: getPost, Upstream: "/api/client/auth/verify", Kind: KindClientSession, CrossSite: true},
		{Name: "client_anonymous", Pattern: "/client/auth/anonymous", Methods: post, Upstream: "/api/client/auth/anonymous", Kind: KindClientSession, CrossSite: true},
		{Name: "client_login", Pattern: "/client/auth/login", Methods: post, Upstream: "/api/client/auth/login", Kind: KindClientSession, CrossSite: true},
		{Name: "client_logout", Pattern: "/client/auth/logout", Methods: post, Upstream: "/api/client/auth/logout", Kind: KindClientSession, CrossSite: true, AlwaysOK: true},
		{Name: "client_register", Pattern: "/client/auth/register", Methods: post, Upstream: "/api/client/auth/register", Kind: KindClientSession, CrossSite: true},

		// Reader resources.
		{Name: "client_profile", Pattern: "/client/profile", Methods: getPut, Upstream: "/api/client/profile"},
		{Name: "client_bookmarks", Pattern: "/client/bookmarks", Methods: getPost, Upstream: "/api/client/bookmarks"},
		{Name: "client_bookmark", Pattern: "/client/bookmarks/{id}", Methods: onlyDel, Upstream: "/api/client/bookmarks/{id}", Params: idParam},

		// Public content.
		{Name: "articles", Pattern: "/articles", Methods: get, Upstream: "/api/articles", Kind: KindPublicRead},
		{Name: "article", Pattern: "/articles/{slug}", Methods: get, Upstream: "/api/articles/{slug}", Kind: KindPublicRead, Params: slugOnly},
		{Name: "article_comments", Pattern: "/articles/{slug}/comments", Methods: getPost, Upstream: "/api/articles/{slug}/comments", Params: slugOnly},
		{Name: "categories", Pattern: "/categories", Methods: get, Upstream: "/api/categories", Kind: KindPublicRead},
		{Name: "category", Pattern: "/categories/{slug}", Methods: get, Upstream: "/api/categories/{slug}", Kind: KindPublicRead, Params: slugOnly},
		{Name: "category_articles", Pattern: "/categories/{slug}/articles", Methods: get, Upstream: "/api/categories/{slug}/articles", Kind: KindPublicRead, Params: slugOnly},

		// Admin resources.
		{Name: "admin_articles", Pattern: "/admin/articles", Methods: getPost, Upstream: "/api/admin/articles", Roles: staff},
		{Name: "admin_article", Pattern: "/admin/articles/{id}", Methods: crud, Upstream: "/api/admin/articles/{id}", Params: idParam, Roles: staff},
		{Name: "admin_categories", Pattern: "/admin/categories", Methods: getPost, Upstream: "/api/admin/categories", Roles: staff},
		{Name: "admin_category", Pattern: "/admin/categories/{id}", Methods: putDel, Upstream: "/api/admin/categories/{id}", Params: idParam, Roles: staff},
		{Name: "admin_media", Pattern: "/admin/media", Methods: post, Upstream: "/api/admin/media", Roles: staff},
		{Name: "admin_users", Pattern: "/admin/users", Methods: getPost, Upstream: "/api/admin/users", Roles: adminRoles},
		{Name: "admin_user", Pattern: "/admin/users/{id}", Methods: crud, Upstream: "/api/admin/users/{id}", Params: idParam, Roles: adminRoles},
		{Name: "admin_stats", Pattern: "/admin/stats", Methods: get, Upstream: "/api/admin/stats", Roles: staff},
	}
}
