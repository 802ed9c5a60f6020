package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/validation"
)

// DealEventPublisher fans deal mutations out to live dashboards
type DealEventPublisher interface {
	PublishDealEvent(ev domain.DealEvent) error
}

// DealsHandler proxies deal CRUD to the CRM API
type DealsHandler struct {
	sessions  *Sessions
	publisher DealEventPublisher
	now       func() time.Time
}

// NewDealsHandler creates a deals handler. publisher may be nil.
func NewDealsHandler(sessions *Sessions, publisher DealEventPublisher) *DealsHandler {
	return &DealsHandler{sessions: sessions, publisher: publisher, now: time.Now}
}

// List handles GET /api/deals?start=&limit=
func (h *DealsHandler) List(w http.ResponseWriter, r *http.Request) {
	start, ok := queryInt(w, r, "start")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	page, err := rs.client.Deals.List(r.Context(), start, limit)
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/deals/{id}
func (h *DealsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	deal, err := rs.client.Deals.Get(r.Context(), id)
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// Create handles POST /api/deals
func (h *DealsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateDeal
	if !decode(w, r, &in) {
		return
	}
	if errs := validation.ValidateStruct(validation.NewDealForm(in)); errs != nil {
		writeValidation(w, errs)
		return
	}

	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	created, err := rs.client.Deals.Create(r.Context(), in)
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	h.publish(r, rs, domain.DealCreated, created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/deals/{id} with a partial document
func (h *DealsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	var in domain.CreateDeal
	if !decode(w, r, &in) {
		return
	}
	if errs := validation.ValidateStruct(validation.NewDealPatchForm(in)); errs != nil {
		writeValidation(w, errs)
		return
	}

	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	deal, err := rs.client.Deals.Update(r.Context(), id, in)
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	h.publish(r, rs, domain.DealUpdated, id)
	writeJSON(w, http.StatusOK, deal)
}

// Delete handles DELETE /api/deals/{id}
func (h *DealsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	if err := rs.client.Deals.Delete(r.Context(), id); err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	h.publish(r, rs, domain.DealDeleted, id)
	w.WriteHeader(http.StatusNoContent)
}

// Repeat handles POST /api/deals/{id}/repeat
func (h *DealsHandler) Repeat(w http.ResponseWriter, r *http.Request) {
	id, ok := dealID(w, r)
	if !ok {
		return
	}
	rs, err := h.sessions.open(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Session unavailable")
		return
	}

	created, err := rs.client.Deals.Repeat(r.Context(), id)
	if err != nil {
		writeUpstreamError(w, r, rs, err)
		return
	}
	h.publish(r, rs, domain.DealRepeated, created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *DealsHandler) publish(r *http.Request, rs *requestSession, kind domain.DealEventType, id int) {
	if h.publisher == nil {
		return
	}
	ev := domain.DealEvent{
		Type:    kind,
		DealID:  id,
		ActorID: h.sessions.actorID(rs),
		At:      h.now().UTC(),
	}
	if err := h.publisher.PublishDealEvent(ev); err != nil {
		observability.FromContext(r.Context()).Error("failed to publish deal event",
			slog.String("type", string(kind)),
			slog.Int("deal_id", id),
			slog.String("error", err.Error()))
	}
}

func dealID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid deal id")
		return 0, false
	}
	return id, true
}

// queryInt reads an optional non-negative integer; absent means zero
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}
