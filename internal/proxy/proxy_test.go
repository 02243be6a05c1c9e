package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/auth"
	"github.com/yanizio/gazette/internal/backend"
	"github.com/yanizio/gazette/internal/envelope"
)

/*──────────────────────────── fixtures ─────────────────────────────────────*/

type grantAll struct{ role auth.Role }

func (g grantAll) VerifyAdmin(context.Context, *http.Request) (envelope.AdminSessionResult, error) {
	return envelope.AdminSessionResult{
		Success:       true,
		Authenticated: true,
		User:          &auth.AdminIdentity{AdminID: "1", Role: g.role},
	}, nil
}

type fixture struct {
	upstream *httptest.Server
	hits     atomic.Int32
	last     atomic.Pointer[http.Request]
	lastBody atomic.Pointer[string]
	router   http.Handler
}

func newFixture(t *testing.T, production bool, fn http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		s := string(b)
		f.lastBody.Store(&s)
		f.last.Store(r)
		fn(w, r)
	}))
	t.Cleanup(f.upstream.Close)

	be, err := backend.New(f.upstream.URL, 0, "")
	require.NoError(t, err)
	f.router = NewRouter(be, Options{
		Log:        zap.NewNop().Sugar(),
		Production: production,
		Verifier:   grantAll{role: auth.RoleEditor},
	})
	return f
}

// deadRouter points at a backend that refuses connections.
func deadRouter(t *testing.T) http.Handler {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	be, err := backend.New(base, 0, "")
	require.NoError(t, err)
	return NewRouter(be, Options{Log: zap.NewNop().Sugar(), Verifier: grantAll{role: auth.RoleAdmin}})
}

func do(h http.Handler, method, target string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

/*──────────────────────────── cookie relay ─────────────────────────────────*/

func TestCookiesRelayedIndividually(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "admin_session=abc; Path=/; HttpOnly")
		w.Header().Add("Set-Cookie", "csrf=tok; Path=/")
		_, _ = w.Write([]byte(`{"success":true,"authenticated":true,"user":{"admin_id":9,"role":"admin"},"csrf_token":"tok"}`))
	})

	rec := do(f.router, http.MethodPost, "/admin/auth/login",
		strings.NewReader(`{"email":"a@b.c","password":"pw"}`), map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"admin_session=abc; Path=/; HttpOnly", "csrf=tok; Path=/"},
		rec.Result().Header.Values("Set-Cookie"))
	assert.Equal(t, `{"email":"a@b.c","password":"pw"}`, *f.lastBody.Load())
}

func TestFoldedCookiesAreSplit(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie",
			"a=1; Expires=Wed, 21 Oct 2026 07:28:00 GMT; Path=/, b=2; Path=/, c=3")
		_, _ = w.Write([]byte(`[]`))
	})

	rec := do(f.router, http.MethodGet, "/articles", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	got := rec.Result().Header.Values("Set-Cookie")
	require.Len(t, got, 3)
	assert.Equal(t, "a=1; Expires=Wed, 21 Oct 2026 07:28:00 GMT; Path=/", got[0])
	assert.Equal(t, "c=3", got[2])
}

func TestInboundCookieForwarded(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"isAuthenticated":false,"isAnonymous":true,"client_id":"c-1"}`))
	})

	do(f.router, http.MethodGet, "/client/auth/verify", nil, map[string]string{
		"Cookie":       "client_session=xyz",
		"X-CSRF-Token": "t1",
		"X-Evil":       "1",
	})
	last := f.last.Load()
	require.NotNil(t, last)
	assert.Equal(t, "client_session=xyz", last.Header.Get("Cookie"))
	assert.Equal(t, "t1", last.Header.Get("X-Csrf-Token"))
	assert.Empty(t, last.Header.Get("X-Evil"))
	assert.Equal(t, "/api/client/auth/verify", last.URL.Path)
}

func TestCrossSiteRewriteOnlyInProduction(t *testing.T) {
	upstream := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "client_session=s; Path=/; SameSite=Lax")
		_, _ = w.Write([]byte(`{"success":true,"isAnonymous":true,"client_id":"c-2"}`))
	}

	prod := newFixture(t, true, upstream)
	rec := do(prod.router, http.MethodPost, "/verify", strings.NewReader(`{}`), nil)
	assert.Equal(t, "client_session=s; Path=/; SameSite=None; Secure", rec.Header().Get("Set-Cookie"))

	dev := newFixture(t, false, upstream)
	rec = do(dev.router, http.MethodPost, "/client/auth/verify", strings.NewReader(`{}`), nil)
	assert.Equal(t, "client_session=s; Path=/; SameSite=Lax", rec.Header().Get("Set-Cookie"))

	// admin cookies are never rewritten
	prodAdmin := newFixture(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "admin_session=s; Path=/; SameSite=Strict")
		_, _ = w.Write([]byte(`{"success":true,"authenticated":false}`))
	})
	rec = do(prodAdmin.router, http.MethodGet, "/admin/auth/verify", nil, nil)
	assert.Equal(t, "admin_session=s; Path=/; SameSite=Strict", rec.Header().Get("Set-Cookie"))
}

/*──────────────────────────── envelopes ────────────────────────────────────*/

func TestAdminVerifyNormalized(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"isAuthenticated":true,"admin":{"admin_id":4,"email":"e@x.y","role":"moderator"},"csrfToken":"c"}`))
	})

	rec := do(f.router, http.MethodGet, "/admin/auth/verify", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, true, m["authenticated"])
	assert.Equal(t, "c", m["csrf_token"])
	user := m["user"].(map[string]any)
	assert.Equal(t, "moderator", user["role"])
	assert.Nil(t, m["error"])

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
}

func TestAdminLoginFailurePropagatesStatus(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"Invalid credentials","user":{"admin_id":1}}`))
	})

	rec := do(f.router, http.MethodPost, "/admin/auth/login", strings.NewReader(`{}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, false, m["success"])
	assert.Nil(t, m["user"])
	assert.Nil(t, m["csrf_token"])
	assert.Equal(t, "Invalid credentials", m["error"])
}

func TestLogoutAlwaysOK(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "admin_session=; Max-Age=0; Path=/")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"db down"}`))
	})

	rec := do(f.router, http.MethodPost, "/admin/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, false, m["authenticated"])
	assert.Equal(t, envelope.MsgLoggedOut, m["message"])
	assert.Equal(t, "admin_session=; Max-Age=0; Path=/", rec.Header().Get("Set-Cookie"))

	rec = do(f.router, http.MethodPost, "/client/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	m = decode(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, false, m["isAuthenticated"])

	dead := deadRouter(t)
	assert.Equal(t, http.StatusOK, do(dead, http.MethodPost, "/admin/auth/logout", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(dead, http.MethodPost, "/client/auth/logout", nil, nil).Code)
}

func TestResourceErrorMessageExtracted(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"Slug already taken"}`))
	})

	rec := do(f.router, http.MethodPost, "/admin/articles", strings.NewReader(`{"slug":"x"}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, false, m["success"])
	assert.Equal(t, "Slug already taken", m["message"])
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	g := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec = do(g.router, http.MethodGet, "/categories", nil, nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, envelope.StatusMessage(http.StatusTeapot), decode(t, rec)["error"])
}

func TestResourceBodyRelayedVerbatim(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=60")
		_, _ = w.Write([]byte(`{"items":[{"slug":"hello"}],"total":1}`))
	})

	rec := do(f.router, http.MethodGet, "/categories/world/articles?page=2&limit=10", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"items":[{"slug":"hello"}],"total":1}`, rec.Body.String())
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	last := f.last.Load()
	assert.Equal(t, "/api/categories/world/articles", last.URL.Path)
	assert.Equal(t, "page=2&limit=10", last.URL.RawQuery)
}

/*──────────────────────────── transport failure ────────────────────────────*/

func TestUnreachableStatusByRouteKind(t *testing.T) {
	dead := deadRouter(t)

	rec := do(dead, http.MethodGet, "/articles/some-story", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, envelope.MsgUnreachable, decode(t, rec)["message"])

	rec = do(dead, http.MethodGet, "/client/profile", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(dead, http.MethodGet, "/admin/auth/verify", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, false, m["authenticated"])
	assert.Nil(t, m["user"])
}

/*──────────────────────────── validation and gating ────────────────────────*/

func TestInvalidParamsRejectedBeforeBackend(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := do(f.router, http.MethodDelete, "/admin/articles/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid id", decode(t, rec)["error"])

	rec = do(f.router, http.MethodDelete, "/client/bookmarks/12x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, path := range []string{
		"/articles/%2e%2e/comments",
		"/categories/%2E%2E/articles",
		"/articles/%2e",
	} {
		rec = do(f.router, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "Invalid slug", decode(t, rec)["error"], path)
	}
	assert.Zero(t, f.hits.Load())

	rec = do(f.router, http.MethodDelete, "/client/bookmarks/12", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/api/client/bookmarks/12", f.last.Load().URL.Path)
}

func TestRoleGate(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	// editor may list articles but not users
	assert.Equal(t, http.StatusOK, do(f.router, http.MethodGet, "/admin/articles", nil, nil).Code)

	rec := do(f.router, http.MethodGet, "/admin/users", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "admin")
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestMultipartContentTypeForwarded(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"/m/1.png"}`))
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "1.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("PNGDATA"))
	require.NoError(t, mw.Close())

	rec := do(f.router, http.MethodPost, "/admin/media", &buf,
		map[string]string{"Content-Type": mw.FormDataContentType()})
	assert.Equal(t, http.StatusCreated, rec.Code)

	last := f.last.Load()
	assert.Equal(t, mw.FormDataContentType(), last.Header.Get("Content-Type"))
	assert.Contains(t, *f.lastBody.Load(), "PNGDATA")
}

func TestMethodNotAllowedIsJSON(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(f.router, http.MethodDelete, "/articles", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])

	rec = do(f.router, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(h, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestRouteTableIsConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, rt := range Routes() {
		assert.False(t, seen[rt.Name], "duplicate route name %s", rt.Name)
		seen[rt.Name] = true
		assert.NotEmpty(t, rt.Methods, rt.Name)
		assert.True(t, strings.HasPrefix(rt.Upstream, "/api/"), rt.Name)
		for p := range rt.Params {
			assert.Contains(t, rt.Pattern, "{"+p+"}", rt.Name)
			assert.Contains(t, rt.Upstream, "{"+p+"}", rt.Name)
		}
		if rt.AlwaysOK {
			assert.True(t, rt.Kind.session(), rt.Name)
		}
	}
}
