package apiclient

import (
	"context"
	"net/http"

	"crm-dashboard/internal/domain"
)

// AuthService wraps the /auth endpoints
type AuthService struct {
	c *Client
}

// Login exchanges credentials for a token pair. A 401 here is a wrong password,
// so the call never enters token recovery.
func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := s.c.Do(WithoutRecovery(ctx), http.MethodPost, "/auth/login", nil, creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its first token pair
func (s *AuthService) Register(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := s.c.Do(WithoutRecovery(ctx), http.MethodPost, "/auth/register", nil, creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates the token pair
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	body := domain.RefreshRequest{RefreshToken: refreshToken}
	if err := s.c.Do(ctx, http.MethodPost, refreshPath, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session server-side
func (s *AuthService) Logout(ctx context.Context) error {
	return s.c.Do(WithoutRecovery(ctx), http.MethodPost, "/auth/logout", nil, nil, nil)
}

// Profile returns the identity behind the current access token
func (s *AuthService) Profile(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := s.c.Do(ctx, http.MethodGet, "/auth/profile", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
