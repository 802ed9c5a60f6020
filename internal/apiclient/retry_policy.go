package apiclient

import "time"

// RetryPolicy decides which failed responses enter token recovery.
type RetryPolicy struct {
	// MaxAttempts bounds the recoveries in flight before the session is forced out
	MaxAttempts int
	// ShouldRetry reports whether a status code triggers recovery
	ShouldRetry func(status int) bool
	// Backoff is waited before resending a recovered request
	Backoff time.Duration
}

// DefaultRetryPolicy recovers from 401 responses, three at a time, with no backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		ShouldRetry: IsUnauthorized,
	}
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultRetryPolicy().MaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retries(status int) bool {
	if p.ShouldRetry == nil {
		return IsUnauthorized(status)
	}
	return p.ShouldRetry(status)
}
