package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-dashboard/internal/domain"
)

// Cookie names, mirrored here so testutil stays below the packages it tests
const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	csrfCookie    = "csrf_token"
	csrfHeader    = "X-CSRF-Token"
	testCSRF      = "0000000000000000000000000000000000000000000000000000000000000000"
)

// NewJSONRequest creates a request with a JSON body. State-changing
// requests carry a matching CSRF cookie and header.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		req.AddCookie(&http.Cookie{Name: csrfCookie, Value: testCSRF})
		req.Header.Set(csrfHeader, testCSRF)
	}
	return req
}

// WithTokens attaches the session cookies a browser would send
func WithTokens(req *http.Request, pair domain.TokenPair) *http.Request {
	if pair.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: accessCookie, Value: pair.AccessToken})
	}
	if pair.RefreshToken != "" {
		req.AddCookie(&http.Cookie{Name: refreshCookie, Value: pair.RefreshToken})
	}
	return req
}

// ResponseCookie returns the named Set-Cookie of the response, or nil
func ResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

// ResponseTokens returns the token pair the response wrote, last write wins
func ResponseTokens(w *httptest.ResponseRecorder) domain.TokenPair {
	var pair domain.TokenPair
	if c := ResponseCookie(w, accessCookie); c != nil && c.MaxAge >= 0 {
		pair.AccessToken = c.Value
	}
	if c := ResponseCookie(w, refreshCookie); c != nil && c.MaxAge >= 0 {
		pair.RefreshToken = c.Value
	}
	return pair
}

// AssertTokensSet fails unless the response stored both tokens as HttpOnly cookies
func AssertTokensSet(t *testing.T, w *httptest.ResponseRecorder) domain.TokenPair {
	t.Helper()

	for _, name := range []string{accessCookie, refreshCookie} {
		c := ResponseCookie(w, name)
		require.NotNil(t, c, "cookie %q not set", name)
		assert.NotEmpty(t, c.Value, "cookie %q empty", name)
		assert.True(t, c.HttpOnly, "cookie %q must be HttpOnly", name)
	}
	return ResponseTokens(w)
}

// AssertTokensCleared fails unless the response expired both token cookies
func AssertTokensCleared(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()

	for _, name := range []string{accessCookie, refreshCookie} {
		c := ResponseCookie(w, name)
		require.NotNil(t, c, "cookie %q not cleared", name)
		assert.Less(t, c.MaxAge, 0, "cookie %q still alive", name)
	}
}

// AssertRedirect fails unless the response is a temporary redirect to location
func AssertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, location, w.Header().Get("Location"))
}

// AssertJSONError fails unless the response carries status and {"error": msg}
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	assert.Equal(t, msg, body.Error)
}

// DecodeJSON decodes the response body into T
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// Eventually waits for cond, for hub and pump goroutines
func Eventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}
