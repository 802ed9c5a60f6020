package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

var (
	ErrMissingToken = errors.New("missing CSRF token")
	ErrInvalidToken = errors.New("invalid CSRF token")
)

// Double-submit names: the cookie is readable by page scripts, which echo it in the header.
const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
	csrfCookieTTL  = 12 * time.Hour
)

// TokenManager issues and checks double-submit CSRF tokens.
// Nothing is stored server-side: a request is valid when the submitted
// token matches the cookie the browser sent with it.
type TokenManager struct {
	size   int
	secure bool
}

// NewTokenManager creates a manager. secure marks the cookie Secure.
func NewTokenManager(secure bool) *TokenManager {
	return &TokenManager{size: 32, secure: secure}
}

// Generate creates a cryptographically secure random token as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, tm.size)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares the cookie token with the submitted one in constant time
func (tm *TokenManager) Verify(cookieToken, submitted string) error {
	if cookieToken == "" || submitted == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Cookie wraps token in the script-readable csrf cookie
func (tm *TokenManager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfCookieTTL.Seconds()),
		Secure:   tm.secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	}
}
