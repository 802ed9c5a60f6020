package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"crm-dashboard/internal/domain"
)

// TestSecret signs access tokens in tests
const TestSecret = "test-secret-at-least-32-characters-long"

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID      string
	Email   string
	Role    domain.Role
	Name    string
	Surname string
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:   nextID("user"),
		Role: domain.RoleUser,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.ID + "@example.com"
	}

	return &domain.User{
		ID:       o.ID,
		Email:    o.Email,
		Role:     o.Role,
		Name:     o.Name,
		Surname:  o.Surname,
		IsActive: true,
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithRole sets the role
func WithRole(role domain.Role) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Role = role
	}
}

// WithName sets name and surname
func WithName(name, surname string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Name = name
		o.Surname = surname
	}
}

// NewTestTokenPair returns a distinct opaque token pair
func NewTestTokenPair() domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  nextID("access"),
		RefreshToken: nextID("refresh"),
	}
}

// NewAuthResponse wraps a fresh token pair and user the way the API does
func NewAuthResponse(user *domain.User) *domain.AuthResponse {
	pair := NewTestTokenPair()
	return &domain.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}
}

// TokenOptions allows customizing signed access tokens
type TokenOptions struct {
	Secret    string
	Method    jwt.SigningMethod
	ExpiresAt time.Time
}

// WithTokenSecret signs with a different secret
func WithTokenSecret(secret string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Secret = secret
	}
}

// WithTokenExpired issues a token that expired an hour ago
func WithTokenExpired() func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.ExpiresAt = time.Now().Add(-time.Hour)
	}
}

// WithSigningMethod overrides HS256
func WithSigningMethod(m jwt.SigningMethod) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Method = m
	}
}

// SignAccessToken issues a JWT carrying the claims the API embeds
// in its access tokens (sub, email, role).
func SignAccessToken(user *domain.User, opts ...func(*TokenOptions)) string {
	o := &TokenOptions{
		Secret:    TestSecret,
		Method:    jwt.SigningMethodHS256,
		ExpiresAt: time.Now().Add(domain.AccessTokenTTL),
	}
	for _, opt := range opts {
		opt(o)
	}

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"jti":   nextID("jti"),
		"iat":   time.Now().Unix(),
		"exp":   o.ExpiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(o.Method, claims).SignedString([]byte(o.Secret))
	if err != nil {
		panic(fmt.Sprintf("sign test token: %v", err))
	}
	return signed
}

// DealOptions allows customizing deal fixture creation
type DealOptions struct {
	ID      int
	Title   string
	StageID string
}

var dealCounter atomic.Int64

// NewTestDeal creates a deal record with sensible defaults
func NewTestDeal(opts ...func(*DealOptions)) *domain.DealDetails {
	id := int(dealCounter.Add(1))
	o := &DealOptions{
		ID:      id,
		Title:   fmt.Sprintf("Deal %d", id),
		StageID: "NEW",
	}
	for _, opt := range opts {
		opt(o)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	return &domain.DealDetails{
		ID:         o.ID,
		Title:      o.Title,
		DateCreate: now,
		DateModify: now,
		StageID:    o.StageID,
		CurrencyID: "USD",
		Opened:     true,
		TypeID:     "SALE",
	}
}

// WithDealTitle sets the deal title
func WithDealTitle(title string) func(*DealOptions) {
	return func(o *DealOptions) {
		o.Title = title
	}
}

// WithDealID sets the deal ID
func WithDealID(id int) func(*DealOptions) {
	return func(o *DealOptions) {
		o.ID = id
	}
}
