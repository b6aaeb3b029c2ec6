package llm

import (
	"errors"
	"fmt"
)

// AuthError means the provider rejected credentials. Non-retryable and fatal
// to the run.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("llm auth error (status %d): %v", e.Status, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the provider throttled the request. Retryable.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("llm rate limited: %v", e.Err) }

// Unwrap returns the underlying provider error.
func (e *RateLimitError) Unwrap() error { return e.Err }

// TimeoutError means the request exceeded its deadline. Retryable.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("llm timeout: %v", e.Err) }

// Unwrap returns the underlying provider error.
func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError means the provider could not be reached. Retryable.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("llm connection error: %v", e.Err) }

// Unwrap returns the underlying provider error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// ServiceError covers other provider failures. Retryable only when the
// underlying classification says so (529 overloaded yes, 400 bad request no).
type ServiceError struct {
	Status    int
	Retryable bool
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm service error (status %d): %v", e.Status, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *ServiceError) Unwrap() error { return e.Err }

// IsRetryable reports whether a classified provider error may consume a
// retry attempt. Schema validation failures are never retryable at this
// layer.
func IsRetryable(err error) bool {
	var rate *RateLimitError
	var timeout *TimeoutError
	var conn *ConnectionError
	if errors.As(err, &rate) || errors.As(err, &timeout) || errors.As(err, &conn) {
		return true
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		return svc.Retryable
	}
	return false
}
