package handler

import (
	"net/http"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/validation"
)

// ProfileHandler serves the signed-in user's profile
type ProfileHandler struct {
	sessions *Sessions
}

// NewProfileHandler creates a profile handler
func NewProfileHandler(sessions *Sessions) *ProfileHandler {
	return &ProfileHandler{sessions: sessions}
}

// Get handles GET /api/users/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	profile, err := rs.client.Users.Profile(r.Context())
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Update handles PATCH /api/users/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateUserProfile
	if !decode(w, r, &in) {
		return
	}
	if errs := validation.ValidateStruct(validation.NewProfileForm(in)); errs != nil {
		writeValidation(w, errs)
		return
	}

	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	profile, err := rs.client.Users.UpdateProfile(r.Context(), in)
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
