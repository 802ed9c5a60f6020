package apiclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/tokenstore"
)

var errNotRewindable = errors.New("request body cannot be replayed")

// Recovery is the session side of the 401 protocol. The session coordinator
// implements it; the transport only decides when each step runs.
type Recovery interface {
	// RefreshToken exchanges the stored refresh token. Concurrent callers share one call.
	RefreshToken(ctx context.Context) bool
	// ForceLogout ends the session started at epoch. Stale epochs are ignored.
	ForceLogout(ctx context.Context, epoch uint64)
	// Epoch identifies the current session
	Epoch() uint64
	ResetRefreshAttempts()
	// AcquireRefreshAttempt takes one slot of the attempt counter. At max it
	// resets the counter and returns false.
	AcquireRefreshAttempt(max int) bool
}

type exemptKey struct{}

// WithoutRecovery marks calls whose 401 is an answer, not an expired session.
// Login, register and logout use it.
func WithoutRecovery(ctx context.Context) context.Context {
	return context.WithValue(ctx, exemptKey{}, true)
}

func recoveryExempt(ctx context.Context) bool {
	exempt, _ := ctx.Value(exemptKey{}).(bool)
	return exempt
}

// authTransport attaches the bearer token and runs the 401 recovery protocol
type authTransport struct {
	base        http.RoundTripper
	store       tokenstore.Store
	policy      RetryPolicy
	refreshPath string

	mu       sync.RWMutex
	recovery Recovery
}

func (t *authTransport) setRecovery(r Recovery) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recovery = r
}

func (t *authTransport) getRecovery() Recovery {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recovery
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := t.getRecovery()

	var epoch uint64
	if rec != nil {
		epoch = rec.Epoch()
	}

	resp, err := t.base.RoundTrip(t.authorize(req, t.store.AccessToken()))
	if err != nil || rec == nil {
		return resp, err
	}

	if resp.StatusCode < http.StatusBadRequest {
		rec.ResetRefreshAttempts()
		return resp, nil
	}

	if !t.policy.retries(resp.StatusCode) || recoveryExempt(req.Context()) {
		return resp, nil
	}

	return t.recover(req, resp, rec, epoch)
}

// recover runs once per request: the resend goes straight to the base
// transport so its outcome is final.
func (t *authTransport) recover(req *http.Request, resp *http.Response, rec Recovery, epoch uint64) (*http.Response, error) {
	ctx := req.Context()
	log := observability.FromContext(ctx).With(
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !rec.AcquireRefreshAttempt(t.policy.maxAttempts()) {
		log.Warn("refresh attempts exhausted, ending session")
		rec.ForceLogout(ctx, epoch)
		return resp, nil
	}

	if t.isRefresh(req) {
		log.Warn("refresh token rejected")
		rec.ResetRefreshAttempts()
		rec.ForceLogout(ctx, epoch)
		return resp, nil
	}

	if !rec.RefreshToken(ctx) {
		// The shared refresh keeps running; only this caller gave up.
		if err := ctx.Err(); err != nil {
			drain(resp)
			return nil, err
		}
		log.Warn("authorization could not be recovered")
		rec.ResetRefreshAttempts()
		rec.ForceLogout(ctx, epoch)
		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		log.Error("cannot resend request", slog.String("error", err.Error()))
		return resp, nil
	}
	drain(resp)

	if t.policy.Backoff > 0 {
		timer := time.NewTimer(t.policy.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	retried, err := t.base.RoundTrip(t.authorize(retry, t.store.AccessToken()))
	if err != nil {
		return nil, err
	}
	if retried.StatusCode < http.StatusBadRequest {
		rec.ResetRefreshAttempts()
	}
	log.Debug("request resent after refresh", slog.Int("status", retried.StatusCode))
	return retried, nil
}

func (t *authTransport) isRefresh(req *http.Request) bool {
	return strings.TrimSuffix(req.URL.Path, "/") == t.refreshPath
}

// authorize returns a copy of req carrying token. RoundTrippers must not mutate their input.
func (t *authTransport) authorize(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token == "" {
		out.Header.Del("Authorization")
		return out
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}

func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errNotRewindable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
