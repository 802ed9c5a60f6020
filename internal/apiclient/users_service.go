package apiclient

import (
	"context"
	"net/http"

	"crm-dashboard/internal/domain"
)

// UsersService wraps /users/profile
type UsersService struct {
	c *Client
}

func (s *UsersService) Profile(ctx context.Context) (*domain.UserProfile, error) {
	var out domain.UserProfile
	if err := s.c.Do(ctx, http.MethodGet, "/users/profile", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UsersService) UpdateProfile(ctx context.Context, update domain.UpdateUserProfile) (*domain.UserProfile, error) {
	var out domain.UserProfile
	if err := s.c.Do(ctx, http.MethodPatch, "/users/profile", nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
