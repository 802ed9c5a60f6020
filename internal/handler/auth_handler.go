package handler

import (
	"net/http"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/session"
	"crm-dashboard/internal/validation"
)

// AuthHandler drives the session coordinator for the browser
type AuthHandler struct {
	sessions *Sessions
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sessions *Sessions) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// AuthResponse is the outcome of a login, register, logout or refresh
type AuthResponse struct {
	Success  bool         `json:"success"`
	Error    string       `json:"error,omitempty"`
	User     *domain.User `json:"user,omitempty"`
	Redirect string       `json:"redirect,omitempty"`
}

// SessionResponse describes the current session
type SessionResponse struct {
	State           string       `json:"state"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	User            *domain.User `json:"user,omitempty"`
	Redirect        string       `json:"redirect,omitempty"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form validation.LoginForm
	if !decode(w, r, &form) {
		return
	}
	if errs := validation.ValidateStruct(form); errs != nil {
		writeValidation(w, errs)
		return
	}

	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	creds := form.Credentials()
	h.respond(w, rs, rs.coord.Login(r.Context(), creds.Email, creds.Password), http.StatusOK, http.StatusUnauthorized)
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var form validation.RegisterForm
	if !decode(w, r, &form) {
		return
	}
	if errs := validation.ValidateStruct(form); errs != nil {
		writeValidation(w, errs)
		return
	}

	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	creds := form.Credentials()
	h.respond(w, rs, rs.coord.Register(r.Context(), creds.Email, creds.Password), http.StatusCreated, http.StatusBadRequest)
}

func (h *AuthHandler) respond(w http.ResponseWriter, rs *requestSession, res session.Result, okStatus, failStatus int) {
	if !res.Success {
		writeJSON(w, failStatus, AuthResponse{Error: res.Error})
		return
	}
	writeJSON(w, okStatus, AuthResponse{
		Success:  true,
		User:     rs.coord.Snapshot().User,
		Redirect: rs.nav.last(),
	})
}

// Logout handles POST /api/auth/logout. It always succeeds locally.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	rs.coord.Logout(r.Context())
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Redirect: rs.nav.last()})
}

// Refresh handles POST /api/auth/refresh. A failed refresh ends the session.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	epoch := rs.coord.Epoch()
	if rs.coord.RefreshToken(r.Context()) {
		writeJSON(w, http.StatusOK, AuthResponse{Success: true})
		return
	}
	if r.Context().Err() != nil {
		return
	}

	rs.coord.ForceLogout(r.Context(), epoch)
	writeJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Session expired", Redirect: rs.nav.last()})
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	snap := rs.coord.CheckAuth(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{
		State:           snap.State.String(),
		IsAuthenticated: snap.IsAuthenticated,
		IsLoading:       snap.IsLoading,
		User:            snap.User,
		Redirect:        rs.nav.last(),
	})
}
