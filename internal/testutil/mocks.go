// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the crm-dashboard application.
package testutil

import (
	"context"
	"errors"
	"sync"

	"crm-dashboard/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: api unavailable")
)

// MockAuthAPI implements the session's view of the /auth endpoints
type MockAuthAPI struct {
	mu sync.Mutex

	// Function overrides - set these to customize behavior
	LoginFunc    func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
	RegisterFunc func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (*domain.AuthResponse, error)
	LogoutFunc   func(ctx context.Context) error
	ProfileFunc  func(ctx context.Context) (*domain.User, error)

	calls map[string]int
}

// NewMockAuthAPI creates a MockAuthAPI whose calls fail until overridden
func NewMockAuthAPI() *MockAuthAPI {
	return &MockAuthAPI{calls: make(map[string]int)}
}

func (m *MockAuthAPI) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method ran
func (m *MockAuthAPI) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls counts every network call the mock served
func (m *MockAuthAPI) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockAuthAPI) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Register(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, creds)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	m.record("Refresh")
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Logout(ctx context.Context) error {
	m.record("Logout")
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockAuthAPI) Profile(ctx context.Context) (*domain.User, error) {
	m.record("Profile")
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx)
	}
	return nil, ErrMockNotImplemented
}

// MockStore is an in-memory token store that counts writes
type MockStore struct {
	mu      sync.Mutex
	pair    domain.TokenPair
	Sets    int
	Removes int
}

// NewMockStore creates a store holding pair
func NewMockStore(pair domain.TokenPair) *MockStore {
	return &MockStore{pair: pair}
}

func (s *MockStore) SetTokens(pair domain.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.Sets++
}

func (s *MockStore) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair.AccessToken
}

func (s *MockStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair.RefreshToken
}

func (s *MockStore) RemoveTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = domain.TokenPair{}
	s.Removes++
}

// Pair returns the stored tokens
func (s *MockStore) Pair() domain.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair
}

// RecordingNavigator collects navigation signals
type RecordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

// Paths returns every path navigated to, oldest first
func (n *RecordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// Last returns the most recent path or ""
func (n *RecordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}
