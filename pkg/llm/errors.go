package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// APIError is the base error type for provider failures.
type APIError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %s: %v", e.Provider, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimitError is returned when the provider rate-limits the request.
type RateLimitError struct{ APIError }

// ServerError is returned on 5xx responses from the provider.
type ServerError struct{ APIError }

// AuthError is returned on authentication/authorization failures.
type AuthError struct{ APIError }

// BadRequestError is returned on 4xx responses the caller cannot fix by
// retrying, such as an over-long prompt.
type BadRequestError struct{ APIError }

// The typed wrappers unwrap to their embedded APIError so callers can match
// either the specific kind or the base with errors.As.
func (e *RateLimitError) Unwrap() error  { return &e.APIError }
func (e *ServerError) Unwrap() error     { return &e.APIError }
func (e *AuthError) Unwrap() error       { return &e.APIError }
func (e *BadRequestError) Unwrap() error { return &e.APIError }

// ClassifyStatus wraps a provider HTTP failure in the typed error for its
// status code. Providers call this from their SDK-specific error mapping.
func ClassifyStatus(provider string, status int, msg string, err error) error {
	base := APIError{Provider: provider, Status: status, Message: msg, Err: err}
	switch {
	case status == 429:
		return &RateLimitError{base}
	case status == 401 || status == 403:
		return &AuthError{base}
	case status >= 500:
		return &ServerError{base}
	case status >= 400:
		return &BadRequestError{base}
	}
	return &base
}

// Retryable reports whether the error is transient and the request may be
// retried.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// WithRetry retries fn up to maxAttempts using exponential backoff with
// jitter. It respects context cancellation and gives up immediately on
// non-retryable errors.
func WithRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	var lastErr error
	for i := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if i == maxAttempts-1 {
			break
		}
		// Exponential backoff: base 1s, max 20s, up to 50% jitter.
		wait := time.Duration(1<<uint(i)) * time.Second
		if wait > 20*time.Second {
			wait = 20 * time.Second
		}
		wait += time.Duration(rand.Float64() * 0.5 * float64(wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}
