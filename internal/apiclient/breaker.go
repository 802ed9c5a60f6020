package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var errServerFailure = errors.New("upstream server error")

// BreakerSettings tune the circuit breaker in front of the CRM API.
// Zero values select the defaults.
type BreakerSettings struct {
	// MaxRequests allowed while half-open
	MaxRequests uint32
	// Interval clears the closed-state counts
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// MinRequests before the failure ratio is considered
	MinRequests uint32
	// FailureRatio trips the breaker once MinRequests is reached
	FailureRatio float64
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 5
	}
	if s.Interval == 0 {
		s.Interval = 30 * time.Second
	}
	if s.Timeout == 0 {
		s.Timeout = 10 * time.Second
	}
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	return s
}

// Breaker is a round-tripper that trips on network errors and 5xx. 4xx
// answers, 401 included, are healthy responses from its point of view.
type Breaker struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps base; nil selects http.DefaultTransport
func NewBreaker(name string, base http.RoundTripper, settings BreakerSettings) *Breaker {
	if base == nil {
		base = http.DefaultTransport
	}
	s := settings.withDefaults()
	return &Breaker{
		base: base,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
			},
		}),
	}
}

// RoundTrip sends req through the circuit breaker
func (t *Breaker) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case errors.Is(err, errServerFailure):
		return out.(*http.Response), nil
	case err != nil:
		return nil, err
	}
	return out.(*http.Response), nil
}

// State reports the breaker state for readiness checks
func (t *Breaker) State() gobreaker.State {
	return t.cb.State()
}

// Available reports whether calls are let through
func (t *Breaker) Available() bool {
	return t.cb.State() != gobreaker.StateOpen
}
