// Package session owns the authentication state of one client context
// (a browser session behind the dashboard server, or one crmctl process).
//
// The Coordinator drives login, register, refresh and logout, keeps the
// refresh call single-flight, and implements apiclient.Recovery so the
// transport can ask it for a fresh token when a request comes back 401.
package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/tokenstore"
)

const refreshKey = "refresh"

// AuthAPI is the slice of the CRM API the coordinator drives
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
	Register(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*domain.User, error)
}

// Coordinator is the session state machine. It is safe for concurrent use.
type Coordinator struct {
	api   AuthAPI
	store tokenstore.Store
	nav   Navigator

	mu          sync.RWMutex
	state       State
	user        *domain.User
	isLoading   bool
	epoch       uint64
	subscribers map[int]func(Snapshot)
	nextSub     int

	attemptsMu sync.Mutex
	attempts   int

	refresh singleflight.Group
}

var _ apiclient.Recovery = (*Coordinator)(nil)

// New creates a coordinator in the Initializing state. nav may be nil.
func New(api AuthAPI, store tokenstore.Store, nav Navigator) *Coordinator {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Coordinator{
		api:         api,
		store:       store,
		nav:         nav,
		state:       Initializing,
		isLoading:   true,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// CheckAuth derives the session from the stored tokens and the server.
// It tries the profile, refreshes if needed, and tries the profile once more.
func (c *Coordinator) CheckAuth(ctx context.Context) Snapshot {
	epoch := c.Epoch()
	user := c.lookupUser(ctx)

	c.mu.Lock()
	if epoch == c.epoch {
		c.user = user
		if user != nil {
			c.state = Authenticated
		} else {
			c.state = Unauthenticated
		}
	}
	c.isLoading = false
	c.mu.Unlock()

	c.notify()
	return c.Snapshot()
}

func (c *Coordinator) lookupUser(ctx context.Context) *domain.User {
	log := c.logger(ctx)

	if c.store.AccessToken() == "" {
		if c.store.RefreshToken() == "" {
			return nil
		}
		if !c.RefreshToken(ctx) {
			return nil
		}
		return c.profile(ctx)
	}

	if user := c.profile(ctx); user != nil {
		return user
	}

	log.Debug("profile lookup failed, refreshing")
	if !c.RefreshToken(ctx) {
		return nil
	}
	return c.profile(ctx)
}

func (c *Coordinator) profile(ctx context.Context) *domain.User {
	user, err := c.api.Profile(ctx)
	if err != nil {
		c.logger(ctx).Debug("profile lookup failed", slog.String("error", err.Error()))
		return nil
	}
	return user
}

// Login authenticates with email and password. On failure the current
// session is left untouched.
func (c *Coordinator) Login(ctx context.Context, email, password string) Result {
	resp, err := c.api.Login(ctx, domain.Credentials{Email: email, Password: password})
	return c.establish(ctx, resp, err, "Login failed")
}

// Register creates an account and signs it in
func (c *Coordinator) Register(ctx context.Context, email, password string) Result {
	resp, err := c.api.Register(ctx, domain.Credentials{Email: email, Password: password})
	return c.establish(ctx, resp, err, "Registration failed")
}

func (c *Coordinator) establish(ctx context.Context, resp *domain.AuthResponse, err error, fallback string) Result {
	if err != nil {
		c.logger(ctx).Info(fallback, slog.String("error", err.Error()))
		return Result{Error: messageOr(err, fallback)}
	}
	if resp == nil || resp.User == nil || !resp.Tokens().Complete() {
		c.logger(ctx).Warn(fallback, slog.String("error", "incomplete auth response"))
		return Result{Error: fallback}
	}

	c.store.SetTokens(resp.Tokens())
	c.ResetRefreshAttempts()
	c.refresh.Forget(refreshKey)

	c.mu.Lock()
	c.epoch++
	c.state = Authenticated
	c.user = resp.User
	c.isLoading = false
	c.mu.Unlock()

	c.logger(ctx).Info("session established", slog.String("user_id", resp.User.ID))
	c.notify()
	c.nav.Navigate(LandingPath)
	return Result{Success: true}
}

// RefreshToken exchanges the stored refresh token for a new pair.
// Concurrent callers share one network call and its result. A caller whose
// ctx ends early gets false; the shared call still runs to completion.
func (c *Coordinator) RefreshToken(ctx context.Context) bool {
	ch := c.refresh.DoChan(refreshKey, func() (interface{}, error) {
		return c.doRefresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) doRefresh(ctx context.Context) bool {
	log := c.logger(ctx)

	token := c.store.RefreshToken()
	if token == "" {
		observability.SessionRefreshTotal.WithLabelValues(observability.RefreshSkipped).Inc()
		return false
	}

	epoch := c.Epoch()
	log.Debug("refreshing access token")

	resp, err := c.api.Refresh(ctx, token)
	if err != nil {
		observability.SessionRefreshTotal.WithLabelValues(observability.RefreshFailure).Inc()
		log.Warn("token refresh failed", slog.String("error", err.Error()))
		return false
	}
	if !resp.Tokens().Complete() {
		observability.SessionRefreshTotal.WithLabelValues(observability.RefreshFailure).Inc()
		log.Warn("token refresh failed", slog.String("error", "incomplete token pair"))
		return false
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		log.Debug("session changed during refresh, discarding tokens")
		return false
	}
	c.store.SetTokens(resp.Tokens())
	if resp.User != nil && c.state == Authenticated {
		c.user = resp.User
	}
	c.mu.Unlock()

	c.ResetRefreshAttempts()
	observability.SessionRefreshTotal.WithLabelValues(observability.RefreshSuccess).Inc()
	log.Info("access token refreshed")
	return true
}

// Logout ends the session. The remote call is best effort; local state is
// always cleared.
func (c *Coordinator) Logout(ctx context.Context) {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()

	c.endSession(ctx)
}

// ForceLogout ends the session that was current at epoch. Requests issued
// before a newer login or logout cannot end the newer session.
func (c *Coordinator) ForceLogout(ctx context.Context, epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger(ctx).Debug("stale forced logout ignored", slog.Uint64("epoch", epoch))
		return
	}
	c.epoch++
	c.mu.Unlock()

	observability.SessionForcedLogoutsTotal.Inc()
	c.logger(ctx).Warn("session ended: authorization could not be recovered")
	c.endSession(ctx)
}

func (c *Coordinator) endSession(ctx context.Context) {
	if err := c.api.Logout(ctx); err != nil {
		c.logger(ctx).Warn("remote logout failed", slog.String("error", err.Error()))
	}

	// Tokens go first so a refresh started after Forget finds nothing to exchange.
	c.store.RemoveTokens()
	c.ResetRefreshAttempts()
	c.refresh.Forget(refreshKey)

	c.mu.Lock()
	c.state = Unauthenticated
	c.user = nil
	c.isLoading = false
	c.mu.Unlock()

	c.notify()
	c.nav.Navigate(LoginPath)
}

// Epoch identifies the current session. Login, register and logout start a new one.
func (c *Coordinator) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// ResetRefreshAttempts zeroes the attempt counter
func (c *Coordinator) ResetRefreshAttempts() {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	c.attempts = 0
}

// AcquireRefreshAttempt takes one attempt, or resets the counter and
// reports false once max is reached.
func (c *Coordinator) AcquireRefreshAttempt(max int) bool {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	if c.attempts >= max {
		c.attempts = 0
		return false
	}
	c.attempts++
	return true
}

// RefreshAttempts returns the current attempt counter
func (c *Coordinator) RefreshAttempts() int {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	return c.attempts
}

// Snapshot returns a copy of the session
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	var user *domain.User
	if c.user != nil {
		u := *c.user
		user = &u
	}
	return Snapshot{
		State:           c.state,
		User:            user,
		IsLoading:       c.isLoading,
		IsAuthenticated: user != nil,
	}
}

// Subscribe registers fn for every state change. The returned func unsubscribes.
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Coordinator) notify() {
	c.mu.RLock()
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Coordinator) logger(ctx context.Context) *slog.Logger {
	return observability.FromContext(ctx).With(slog.String("component", "session"))
}

func messageOr(err error, fallback string) string {
	if msg := apiclient.Message(err); msg != "" {
		return msg
	}
	return fallback
}
