// Package handler serves the dashboard's JSON API, pages and live feed.
//
// Each API request gets its own Session Coordinator over a cookie-backed
// token store, so the browser's HttpOnly cookies are the only session state.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/middleware"
	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/session"
	"crm-dashboard/internal/tokenstore"
	"crm-dashboard/internal/validation"
)

// Sessions opens request-scoped sessions against the CRM API
type Sessions struct {
	api      apiclient.Config
	cookies  tokenstore.CookieOptions
	wire     http.RoundTripper
	verifier *middleware.TokenVerifier
}

// NewSessions creates the factory. wire is shared by every request; pass an
// *apiclient.Breaker so failures are counted across requests.
func NewSessions(api apiclient.Config, cookies tokenstore.CookieOptions, wire http.RoundTripper, verifier *middleware.TokenVerifier) *Sessions {
	return &Sessions{api: api, cookies: cookies, wire: wire, verifier: verifier}
}

// navigation remembers the last path the coordinator asked for
type navigation struct {
	mu   sync.Mutex
	path string
}

func (n *navigation) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func (n *navigation) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

type requestSession struct {
	coord  *session.Coordinator
	client *apiclient.Client
	store  *tokenstore.CookieStore
	nav    *navigation
}

func (s *Sessions) open(w http.ResponseWriter, r *http.Request) (*requestSession, error) {
	store := tokenstore.NewCookieStore(w, r, s.cookies)
	nav := &navigation{}

	coord, client, err := session.Wire(s.api, store, nav, s.wire)
	if err != nil {
		return nil, err
	}
	return &requestSession{coord: coord, client: client, store: store, nav: nav}, nil
}

// actorID names the user behind the current access token, if it verifies
func (s *Sessions) actorID(rs *requestSession) string {
	if s.verifier == nil {
		return ""
	}
	id, err := s.verifier.Verify(rs.store.AccessToken())
	if err != nil {
		return ""
	}
	return id.UserID
}

type errorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeValidation(w http.ResponseWriter, errs validation.Errors) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Validation failed", Fields: errs})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeUpstreamError maps a CRM API failure onto the dashboard's response.
// An unrecoverable 401 has already ended the session and cleared the cookies.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, rs *requestSession, err error) {
	log := observability.FromContext(r.Context())

	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, domain.ErrDealNotFound):
		writeError(w, http.StatusNotFound, "Deal not found")
	case errors.Is(err, apiclient.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Redirect: rs.nav.last()})
	case errors.Is(err, apiclient.ErrCircuitOpen):
		log.Warn("CRM API circuit open")
		writeError(w, http.StatusServiceUnavailable, "CRM API unavailable")
	case errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError:
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		writeError(w, apiErr.StatusCode, msg)
	default:
		log.Error("CRM API request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "Upstream request failed")
	}
}
