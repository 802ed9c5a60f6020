package domain

import "time"

const (
	// AccessTokenTTL is the intended lifetime of an access token
	AccessTokenTTL = 15 * time.Minute
	// RefreshTokenTTL is the intended lifetime of a refresh token
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenPair holds the two opaque bearer tokens. They are always written and cleared together.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both halves of the pair are present
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Credentials is the body of the login and register calls
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login, register and refresh. Refresh may omit the user.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
}

// Tokens extracts the token pair from the response
func (r *AuthResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// RefreshRequest is the body of the refresh call
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
