package tokenstore

import (
	"net/http"
	"sync"

	"crm-dashboard/internal/domain"
)

// CookieStore is the trusted variant: tokens arrive as request cookies and are
// written back as HttpOnly Set-Cookie headers on the response.
// Writes made during the request shadow the incoming cookies.
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions

	mu      sync.Mutex
	written map[string]string
}

// NewCookieStore binds a store to one request/response exchange
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	return &CookieStore{
		w:       w,
		r:       r,
		opts:    opts,
		written: make(map[string]string, 2),
	}
}

// SetTokens stores both tokens of pair
func (s *CookieStore) SetTokens(pair domain.TokenPair) {
	if s == nil || s.w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	http.SetCookie(s.w, newCookie(AccessTokenName, pair.AccessToken, AccessTokenMaxAge, true, s.opts))
	http.SetCookie(s.w, newCookie(RefreshTokenName, pair.RefreshToken, RefreshTokenMaxAge, true, s.opts))
	s.written[AccessTokenName] = pair.AccessToken
	s.written[RefreshTokenName] = pair.RefreshToken
}

// AccessToken returns the stored access token or ""
func (s *CookieStore) AccessToken() string {
	return s.get(AccessTokenName)
}

// RefreshToken returns the stored refresh token or ""
func (s *CookieStore) RefreshToken() string {
	return s.get(RefreshTokenName)
}

// RemoveTokens deletes both tokens
func (s *CookieStore) RemoveTokens() {
	if s == nil || s.w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	http.SetCookie(s.w, newCookie(AccessTokenName, "", -1, true, s.opts))
	http.SetCookie(s.w, newCookie(RefreshTokenName, "", -1, true, s.opts))
	s.written[AccessTokenName] = ""
	s.written[RefreshTokenName] = ""
}

func (s *CookieStore) get(name string) string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.written[name]; ok {
		return v
	}
	if s.r == nil {
		return ""
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// ClearCookies expires both token cookies on w
func ClearCookies(w http.ResponseWriter, opts CookieOptions) {
	NewCookieStore(w, nil, opts).RemoveTokens()
}
