// Package apiclient talks to the remote CRM API.
//
// Every call goes through an auth round-tripper that attaches the stored
// access token and, on a 401, asks the session for a refresh and resends the
// request once. A circuit breaker sits below it so an unreachable API fails fast.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/tokenstore"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "crm-dashboard"
	refreshPath      = "/auth/refresh"
)

// Config configures a Client
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:5000/api
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Policy    RetryPolicy
	Breaker   BreakerSettings
}

// Client is a JSON client for the CRM API bound to one token store
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	auth      *authTransport
	breaker   *Breaker

	Auth  *AuthService
	Deals *DealsService
	Users *UsersService
}

// New builds a client. base is the transport used for the wire; nil selects
// http.DefaultTransport. A *Breaker passed as base is used as the client's
// breaker instead of being wrapped, so request-scoped clients of one server
// share failure counts.
func New(cfg Config, store tokenstore.Store, base http.RoundTripper) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: must be absolute http(s)", cfg.BaseURL)
	}

	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Policy.MaxAttempts == 0 && cfg.Policy.ShouldRetry == nil {
		cfg.Policy = DefaultRetryPolicy()
	}

	breaker, shared := base.(*Breaker)
	if !shared {
		breaker = NewBreaker(u.Host, base, cfg.Breaker)
	}
	auth := &authTransport{
		base:        breaker,
		store:       store,
		policy:      cfg.Policy,
		refreshPath: u.Path + refreshPath,
	}

	c := &Client{
		baseURL:   u.String(),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Transport: auth, Timeout: cfg.Timeout},
		auth:      auth,
		breaker:   breaker,
	}
	c.Auth = &AuthService{c: c}
	c.Deals = &DealsService{c: c}
	c.Users = &UsersService{c: c}
	return c, nil
}

// SetRecovery connects the 401 protocol to a session. Without one, 401s pass through.
func (c *Client) SetRecovery(r Recovery) {
	c.auth.setRecovery(r)
}

// Available reports whether the circuit breaker lets calls through
func (c *Client) Available() bool {
	return c.breaker.Available()
}

// Do sends a JSON request and decodes a JSON response into out (nil discards it).
// Non-2xx responses come back as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.UpstreamRequestDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	observability.UpstreamRequestDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= http.StatusBadRequest {
		return parseError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	requestID := observability.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-Id", requestID)

	return req, nil
}
