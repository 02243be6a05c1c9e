package acl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/gazette/internal/auth"
	"github.com/yanizio/gazette/internal/backend"
	"github.com/yanizio/gazette/internal/envelope"
)

type stubVerifier struct {
	res envelope.AdminSessionResult
	err error
}

func (s stubVerifier) VerifyAdmin(context.Context, *http.Request) (envelope.AdminSessionResult, error) {
	return s.res, s.err
}

func authed(role auth.Role) envelope.AdminSessionResult {
	return envelope.AdminSessionResult{
		Success:       true,
		Authenticated: true,
		User:          &auth.AdminIdentity{AdminID: "7", Email: "ed@example.com", Role: role},
	}
}

func serve(t *testing.T, v Verifier, roles ...auth.Role) (*httptest.ResponseRecorder, *auth.AdminIdentity) {
	t.Helper()
	var seen *auth.AdminIdentity
	h := RequireRole(v, roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.Admin(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	return rec, seen
}

func TestRequireRole_Granted(t *testing.T) {
	rec, seen := serve(t, stubVerifier{res: authed(auth.RoleAdmin)}, auth.RoleAdmin, auth.RoleSuperAdmin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, auth.ID("7"), seen.AdminID)
}

func TestRequireRole_DeniedNamesRole(t *testing.T) {
	rec, seen := serve(t, stubVerifier{res: authed(auth.RoleEditor)}, auth.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, seen)
	assert.Contains(t, rec.Body.String(), "admin")
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	res := envelope.AdminFailure("Session expired")
	rec, _ := serve(t, stubVerifier{res: res})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session expired")
}

func TestRequireRole_VerifyErrorFailsClosed(t *testing.T) {
	rec, seen := serve(t, stubVerifier{err: errors.New("dial tcp: refused")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, seen)
}

func TestRequireRole_EmptyListAdmitsStaff(t *testing.T) {
	rec, _ := serve(t, stubVerifier{res: authed(auth.RoleModerator)})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, stubVerifier{res: authed("intern")})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecide(t *testing.T) {
	out, msg := Decide(nil, nil)
	assert.Equal(t, Unauthenticated, out)
	assert.NotEmpty(t, msg)

	out, msg = Decide(&auth.AdminIdentity{Role: auth.RoleEditor}, []auth.Role{auth.RoleSuperAdmin})
	assert.Equal(t, Denied, out)
	assert.Contains(t, msg, `"editor"`)
	assert.Contains(t, msg, "super_admin")

	out, msg = Decide(&auth.AdminIdentity{Role: auth.RoleSuperAdmin}, []auth.Role{auth.RoleSuperAdmin})
	assert.Equal(t, Granted, out)
	assert.Empty(t, msg)

	out, _ = Decide(&auth.AdminIdentity{Role: auth.RoleModerator}, nil)
	assert.Equal(t, Granted, out)

	out, msg = Decide(&auth.AdminIdentity{Role: "subscriber"}, nil)
	assert.Equal(t, Denied, out)
	assert.Contains(t, msg, "subscriber")
}

func TestBackendVerifier(t *testing.T) {
	var gotCookie string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, VerifyPath, r.URL.Path)
		gotCookie = r.Header.Get("Cookie")
		if gotCookie == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Not authenticated"}`))
			return
		}
		if gotCookie == "admin_session=boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"authenticated":true,"user":{"admin_id":3,"role":"editor"}}`))
	}))
	defer upstream.Close()

	be, err := backend.New(upstream.URL, 0, "")
	require.NoError(t, err)
	v := NewVerifier(be)

	in := httptest.NewRequest(http.MethodGet, "/admin/articles", nil)
	in.Header.Set("Cookie", "admin_session=ok")
	res, err := v.VerifyAdmin(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, auth.RoleEditor, res.User.Role)
	assert.Equal(t, "admin_session=ok", gotCookie)

	res, err = v.VerifyAdmin(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, "Not authenticated", res.Text())

	in.Header.Set("Cookie", "admin_session=boom")
	_, err = v.VerifyAdmin(context.Background(), in)
	assert.Error(t, err)
}
