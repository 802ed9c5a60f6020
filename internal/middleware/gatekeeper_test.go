package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/testutil"
	"crm-dashboard/internal/tokenstore"
)

type seen struct {
	called  bool
	headers http.Header
	id      *Identity
}

func gatekept(t *testing.T) (http.Handler, *seen) {
	t.Helper()

	cfg := DefaultGatekeeperConfig(NewTokenVerifier(testutil.TestSecret), tokenstore.CookieOptions{})
	s := &seen{}
	h := Gatekeeper(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.headers = r.Header.Clone()
		s.id, _ = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, s
}

func pageRequest(path, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: tokenstore.AccessTokenName, Value: token})
	}
	return req
}

func clearedCookies(rr *httptest.ResponseRecorder) bool {
	access, refresh := false, false
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 && c.Name == tokenstore.AccessTokenName {
			access = true
		}
		if c.MaxAge < 0 && c.Name == tokenstore.RefreshTokenName {
			refresh = true
		}
	}
	return access && refresh
}

func TestClassify(t *testing.T) {
	cfg := DefaultGatekeeperConfig(nil, tokenstore.CookieOptions{})

	tests := []struct {
		path string
		want RouteClass
	}{
		{"/auth/login", RoutePublic},
		{"/auth/register", RoutePublic},
		{"/dashboard/dashboard", RouteProtected},
		{"/profile", RouteProtected},
		{"/orders/12", RouteProtected},
		{"/payments", RouteProtected},
		{"/broadcast", RouteProtected},
		{"/ws/deals", RouteProtected},
		{"/admin/users", RouteAdmin},
		{"/", RouteOpen},
		{"/about", RouteOpen},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Classify(tt.path))
		})
	}
}

func TestGatekeeper(t *testing.T) {
	user := testutil.NewTestUser()
	admin := testutil.NewTestUser(testutil.WithRole(domain.RoleAdmin))
	valid := testutil.SignAccessToken(user)
	adminToken := testutil.SignAccessToken(admin)
	expired := testutil.SignAccessToken(user, testutil.WithTokenExpired())

	tests := []struct {
		name         string
		path         string
		token        string
		wantCalled   bool
		wantLocation string
		wantCleared  bool
	}{
		{"public_without_token", "/auth/login", "", true, "", false},
		{"public_with_valid_token", "/auth/login", valid, false, "/dashboard/dashboard", false},
		{"public_with_invalid_token", "/auth/register", expired, true, "", true},
		{"protected_without_token", "/dashboard/dashboard", "", false, "/auth/login", false},
		{"protected_with_invalid_token", "/profile", expired, false, "/auth/login", true},
		{"protected_with_valid_token", "/dashboard/dashboard", valid, true, "", false},
		{"admin_without_token", "/admin", "", false, "/auth/login", false},
		{"admin_as_user", "/admin/users", valid, false, "/dashboard/dashboard", false},
		{"admin_as_admin", "/admin/users", adminToken, true, "", false},
		{"root_without_token", "/", "", false, "/auth/login", false},
		{"root_with_token", "/", valid, false, "/dashboard/dashboard", false},
		{"open_route", "/about", "", true, "", false},
		{"api_is_skipped", "/api/deals", "", true, "", false},
		{"static_is_skipped", "/static/app.js", expired, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s := gatekept(t)
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, pageRequest(tt.path, tt.token))

			assert.Equal(t, tt.wantCalled, s.called)
			if tt.wantLocation != "" {
				assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
				assert.Equal(t, tt.wantLocation, rr.Header().Get("Location"))
			}
			assert.Equal(t, tt.wantCleared, clearedCookies(rr))
		})
	}
}

func TestGatekeeper_InjectsIdentity(t *testing.T) {
	user := testutil.NewTestUser(testutil.WithRole(domain.RoleManager))
	h, s := gatekept(t)

	req := pageRequest("/dashboard/dashboard", testutil.SignAccessToken(user))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, s.called)
	assert.Equal(t, user.ID, s.headers.Get(HeaderUserID))
	assert.Equal(t, user.Email, s.headers.Get(HeaderUserEmail))
	assert.Equal(t, "manager", s.headers.Get(HeaderUserRole))
	require.NotNil(t, s.id)
	assert.Equal(t, user.ID, s.id.UserID)
}

func TestGatekeeper_StripsSpoofedHeaders(t *testing.T) {
	h, s := gatekept(t)

	req := pageRequest("/about", "")
	req.Header.Set(HeaderUserID, "spoofed")
	req.Header.Set(HeaderUserRole, "admin")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, s.called)
	assert.Empty(t, s.headers.Get(HeaderUserID))
	assert.Empty(t, s.headers.Get(HeaderUserRole))
	assert.Nil(t, s.id)
}
