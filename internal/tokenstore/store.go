// Package tokenstore persists the access/refresh token pair.
//
// Two implementations share the Store capability: CookieStore writes HttpOnly
// cookies from a trusted server context, ClientStore keeps script-writable
// cookies in a file shared by every client process of the same user.
// Neither validates token contents.
package tokenstore

import (
	"net/http"

	"crm-dashboard/internal/domain"
)

// Cookie names
const (
	AccessTokenName  = "access_token"
	RefreshTokenName = "refresh_token"
)

// Cookie max ages (in seconds)
const (
	AccessTokenMaxAge  = 15 * 60
	RefreshTokenMaxAge = 7 * 24 * 60 * 60
)

// Store is a key-value facade over the two token cookies.
// Implementations are safe to call without a backing storage context:
// reads return "" and writes are no-ops.
type Store interface {
	SetTokens(pair domain.TokenPair)
	AccessToken() string
	RefreshToken() string
	RemoveTokens()
}

// CookieOptions are the attributes shared by both token cookies
type CookieOptions struct {
	// Secure is set in production
	Secure bool
	Domain string
}

func newCookie(name, value string, maxAge int, httpOnly bool, opts CookieOptions) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		Secure:   opts.Secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
}
