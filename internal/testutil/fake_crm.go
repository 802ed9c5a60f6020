package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"crm-dashboard/internal/domain"
)

type fakeAccount struct {
	password string
	user     *domain.User
}

// FakeCRM is an in-memory CRM API served over httptest. Access tokens are
// JWTs signed with TestSecret; refresh tokens are opaque and single use.
type FakeCRM struct {
	*httptest.Server

	mu        sync.Mutex
	accounts  map[string]*fakeAccount
	access    map[string]string
	refresh   map[string]string
	deals     map[int]*domain.DealDetails
	dealOrder []int
	calls     map[string]int
	overrides map[string]http.HandlerFunc

	// RefreshDelay holds every refresh response, widening the window in
	// which concurrent requests can pile up behind one refresh.
	RefreshDelay time.Duration
}

// NewFakeCRM starts a fake API; it is closed when the test ends
func NewFakeCRM(t *testing.T) *FakeCRM {
	t.Helper()

	f := &FakeCRM{
		accounts:  make(map[string]*fakeAccount),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		deals:     make(map[int]*domain.DealDetails),
		calls:     make(map[string]int),
		overrides: make(map[string]http.HandlerFunc),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", f.route("POST /auth/login", f.login))
		r.Post("/auth/register", f.route("POST /auth/register", f.register))
		r.Post("/auth/refresh", f.route("POST /auth/refresh", f.refreshTokens))
		r.Post("/auth/logout", f.route("POST /auth/logout", f.logout))
		r.Get("/auth/profile", f.route("GET /auth/profile", f.authed(f.profile)))

		r.Get("/bitrix24/deals", f.route("GET /bitrix24/deals", f.authed(f.listDeals)))
		r.Post("/bitrix24/deals", f.route("POST /bitrix24/deals", f.authed(f.createDeal)))
		r.Get("/bitrix24/deals/{id}", f.route("GET /bitrix24/deals/{id}", f.authed(f.getDeal)))
		r.Put("/bitrix24/deals/{id}", f.route("PUT /bitrix24/deals/{id}", f.authed(f.updateDeal)))
		r.Delete("/bitrix24/deals/{id}", f.route("DELETE /bitrix24/deals/{id}", f.authed(f.deleteDeal)))
		r.Post("/bitrix24/deals/repeat/{id}", f.route("POST /bitrix24/deals/repeat/{id}", f.authed(f.repeatDeal)))

		r.Get("/users/profile", f.route("GET /users/profile", f.authed(f.userProfile)))
		r.Patch("/users/profile", f.route("PATCH /users/profile", f.authed(f.updateUserProfile)))
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the API root clients are configured with
func (f *FakeCRM) BaseURL() string {
	return f.Server.URL + "/api"
}

// AddUser registers an account
func (f *FakeCRM) AddUser(user *domain.User, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[user.Email] = &fakeAccount{password: password, user: user}
}

// IssueTokens signs a token pair for an existing account, as a login would
func (f *FakeCRM) IssueTokens(email string) domain.TokenPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(email)
}

func (f *FakeCRM) issueLocked(email string) domain.TokenPair {
	acc := f.accounts[email]
	pair := domain.TokenPair{
		AccessToken:  SignAccessToken(acc.user),
		RefreshToken: nextID("refresh"),
	}
	f.access[pair.AccessToken] = email
	f.refresh[pair.RefreshToken] = email
	return pair
}

// ExpireAccessTokens invalidates every issued access token
func (f *FakeCRM) ExpireAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = make(map[string]string)
}

// RevokeRefreshTokens invalidates every issued refresh token
func (f *FakeCRM) RevokeRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = make(map[string]string)
}

// Override replaces the handler of a route, e.g. "POST /auth/refresh".
// Calls are still counted.
func (f *FakeCRM) Override(route string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[route] = h
}

// Calls returns how many requests hit route
func (f *FakeCRM) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalCalls counts every request served
func (f *FakeCRM) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// AddDeal stores a deal
func (f *FakeCRM) AddDeal(deal *domain.DealDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deals[deal.ID]; !ok {
		f.dealOrder = append(f.dealOrder, deal.ID)
	}
	f.deals[deal.ID] = deal
}

// Deal returns a stored deal or nil
func (f *FakeCRM) Deal(id int) *domain.DealDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deals[id]
}

func (f *FakeCRM) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[name]++
		override := f.overrides[name]
		f.mu.Unlock()

		if override != nil {
			override(w, r)
			return
		}
		h(w, r)
	}
}

func (f *FakeCRM) authed(h func(w http.ResponseWriter, r *http.Request, user *domain.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		email, ok := f.access[token]
		var user *domain.User
		if ok {
			user = f.accounts[email].user
		}
		f.mu.Unlock()

		if !ok {
			writeFakeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h(w, r, user)
	}
}

func (f *FakeCRM) login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeFakeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	acc, ok := f.accounts[creds.Email]
	if !ok || acc.password != creds.Password {
		f.mu.Unlock()
		writeFakeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	pair := f.issueLocked(creds.Email)
	user := *acc.user
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, domain.AuthResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: &user})
}

func (f *FakeCRM) register(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeFakeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	if _, exists := f.accounts[creds.Email]; exists {
		f.mu.Unlock()
		writeFakeError(w, http.StatusConflict, "User with this email already exists")
		return
	}
	user := NewTestUser(WithEmail(creds.Email))
	f.accounts[creds.Email] = &fakeAccount{password: creds.Password, user: user}
	pair := f.issueLocked(creds.Email)
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusCreated, domain.AuthResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user})
}

func (f *FakeCRM) refreshTokens(w http.ResponseWriter, r *http.Request) {
	if f.RefreshDelay > 0 {
		time.Sleep(f.RefreshDelay)
	}

	var req domain.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	email, ok := f.refresh[req.RefreshToken]
	if !ok {
		f.mu.Unlock()
		writeFakeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(f.refresh, req.RefreshToken)
	pair := f.issueLocked(email)
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, pair)
}

func (f *FakeCRM) logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	f.mu.Lock()
	_, ok := f.access[token]
	delete(f.access, token)
	f.mu.Unlock()

	if !ok {
		writeFakeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeCRM) profile(w http.ResponseWriter, r *http.Request, user *domain.User) {
	writeFakeJSON(w, http.StatusOK, user)
}

func (f *FakeCRM) listDeals(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	page := domain.DealsPage{Items: []domain.Deal{}}
	for i := start; i < len(f.dealOrder) && i < start+limit; i++ {
		d := f.deals[f.dealOrder[i]]
		page.Items = append(page.Items, domain.Deal{
			ID:         d.ID,
			Title:      d.Title,
			DateCreate: d.DateCreate,
			StageID:    d.StageID,
			CategoryID: d.CategoryID,
		})
	}
	if start+limit < len(f.dealOrder) {
		next := start + limit
		page.Next = &next
	}
	writeFakeJSON(w, http.StatusOK, page)
}

func (f *FakeCRM) createDeal(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	var in domain.CreateDeal
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Title == "" {
		writeFakeError(w, http.StatusBadRequest, "title should not be empty")
		return
	}

	deal := NewTestDeal(WithDealTitle(in.Title))
	if in.StageID != "" {
		deal.StageID = in.StageID
	}
	f.AddDeal(deal)
	writeFakeJSON(w, http.StatusCreated, domain.CreatedDeal{ID: deal.ID, Title: deal.Title, StageID: deal.StageID})
}

func (f *FakeCRM) getDeal(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	deal := f.dealParam(r)
	if deal == nil {
		writeFakeError(w, http.StatusNotFound, "Deal not found")
		return
	}
	writeFakeJSON(w, http.StatusOK, deal)
}

func (f *FakeCRM) updateDeal(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	deal := f.dealParam(r)
	if deal == nil {
		writeFakeError(w, http.StatusNotFound, "Deal not found")
		return
	}

	var in domain.CreateDeal
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFakeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	if in.Title != "" {
		deal.Title = in.Title
	}
	if in.StageID != "" {
		deal.StageID = in.StageID
	}
	if in.Comments != "" {
		deal.Comments = in.Comments
	}
	updated := *deal
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, updated)
}

func (f *FakeCRM) deleteDeal(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	deal := f.dealParam(r)
	if deal == nil {
		writeFakeError(w, http.StatusNotFound, "Deal not found")
		return
	}

	f.mu.Lock()
	delete(f.deals, deal.ID)
	for i, id := range f.dealOrder {
		if id == deal.ID {
			f.dealOrder = append(f.dealOrder[:i], f.dealOrder[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeCRM) repeatDeal(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	source := f.dealParam(r)
	if source == nil {
		writeFakeError(w, http.StatusNotFound, "Deal not found")
		return
	}

	deal := NewTestDeal(WithDealTitle(source.Title))
	f.AddDeal(deal)
	writeFakeJSON(w, http.StatusCreated, domain.CreatedDeal{ID: deal.ID, Title: deal.Title, StageID: deal.StageID})
}

func (f *FakeCRM) userProfile(w http.ResponseWriter, r *http.Request, user *domain.User) {
	writeFakeJSON(w, http.StatusOK, domain.UserProfile{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Surname:  user.Surname,
		Role:     string(user.Role),
		IsActive: user.IsActive,
	})
}

func (f *FakeCRM) updateUserProfile(w http.ResponseWriter, r *http.Request, user *domain.User) {
	var in domain.UpdateUserProfile
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFakeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	if in.Name != "" {
		user.Name = in.Name
	}
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, domain.UserProfile{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Phone:    in.Phone,
		Address:  in.Address,
		Role:     string(user.Role),
		IsActive: user.IsActive,
	})
}

func (f *FakeCRM) dealParam(r *http.Request) *domain.DealDetails {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return nil
	}
	return f.Deal(id)
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFakeError(w http.ResponseWriter, status int, message string) {
	writeFakeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
	})
}
