package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crm-dashboard/internal/domain"
)

// clientCookie is one persisted cookie. Expired entries read as absent.
type clientCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure,omitempty"`
	SameSite string    `json:"same_site"`
}

type cookieFile struct {
	Cookies []clientCookie `json:"cookies"`
}

// ClientStore is the script-writable variant. Cookies are kept in a JSON file so
// every process of the same user sees the last write on its next read.
// With an empty path the cookies live in memory only.
type ClientStore struct {
	path string
	opts CookieOptions
	now  func() time.Time

	mu     sync.Mutex
	memory map[string]clientCookie
}

// NewClientStore opens a store over path. The file is created on first write.
func NewClientStore(path string, opts CookieOptions) *ClientStore {
	return &ClientStore{
		path:   path,
		opts:   opts,
		now:    time.Now,
		memory: make(map[string]clientCookie, 2),
	}
}

// SetTokens stores both tokens of pair
func (s *ClientStore) SetTokens(pair domain.TokenPair) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.write(map[string]clientCookie{
		AccessTokenName:  s.cookie(AccessTokenName, pair.AccessToken, now.Add(AccessTokenMaxAge*time.Second)),
		RefreshTokenName: s.cookie(RefreshTokenName, pair.RefreshToken, now.Add(RefreshTokenMaxAge*time.Second)),
	})
}

// AccessToken returns the stored access token or ""
func (s *ClientStore) AccessToken() string {
	return s.get(AccessTokenName)
}

// RefreshToken returns the stored refresh token or ""
func (s *ClientStore) RefreshToken() string {
	return s.get(RefreshTokenName)
}

// RemoveTokens deletes both tokens
func (s *ClientStore) RemoveTokens() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.write(map[string]clientCookie{})
}

func (s *ClientStore) cookie(name, value string, expires time.Time) clientCookie {
	return clientCookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		Secure:   s.opts.Secure,
		SameSite: "lax",
	}
}

func (s *ClientStore) get(name string) string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.read()[name]
	if !ok || !s.now().Before(c.Expires) {
		return ""
	}
	return c.Value
}

// read must be called with mu held
func (s *ClientStore) read() map[string]clientCookie {
	if s.path == "" {
		return s.memory
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to read token file",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		return map[string]clientCookie{}
	}

	var f cookieFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("ignoring malformed token file",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return map[string]clientCookie{}
	}

	cookies := make(map[string]clientCookie, len(f.Cookies))
	for _, c := range f.Cookies {
		cookies[c.Name] = c
	}
	return cookies
}

// write replaces the whole cookie set; must be called with mu held
func (s *ClientStore) write(cookies map[string]clientCookie) {
	if s.path == "" {
		s.memory = cookies
		return
	}
	if err := s.persist(cookies); err != nil {
		slog.Error("failed to write token file",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
	}
}

func (s *ClientStore) persist(cookies map[string]clientCookie) error {
	f := cookieFile{Cookies: make([]clientCookie, 0, len(cookies))}
	for _, name := range []string{AccessTokenName, RefreshTokenName} {
		if c, ok := cookies[name]; ok {
			f.Cookies = append(f.Cookies, c)
		}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	// rename keeps readers in other processes from seeing half a pair
	return os.Rename(tmp.Name(), s.path)
}
