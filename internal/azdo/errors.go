package azdo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError covers 401 and 403 responses. Terminal: no retry can help a bad
// or expired PAT.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("azure devops rejected the credentials (status %d): check AZURE_DEVOPS_PAT", e.Status)
}

// NotFoundError covers 404 responses for a project, work item, or route.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("azure devops resource not found: %s", e.Resource)
}

// RateLimitError covers 429 responses. Retryable; RetryAfter carries the
// server hint when one was sent.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("azure devops rate limited the request (retry after %s)", e.RetryAfter)
	}
	return "azure devops rate limited the request"
}

// TransientError covers 5xx responses, network failures, per-attempt
// timeouts, and response payloads that fail invariant checks. Retryable.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("transient azure devops failure (status %d): %v", e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("transient azure devops failure (status %d)", e.Status)
	default:
		return fmt.Sprintf("transient azure devops failure: %v", e.Err)
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

// RequestError covers the remaining 4xx responses, such as a WIQL syntax
// rejection. Terminal: the same request will fail the same way again.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("azure devops rejected the request (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("azure devops rejected the request (status %d)", e.Status)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// ErrorKind names the error class for summaries and logs.
func ErrorKind(err error) string {
	var ae *AuthError
	var nf *NotFoundError
	var rl *RateLimitError
	var tr *TransientError
	var re *RequestError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &tr):
		return "transient"
	case errors.As(err, &re):
		return "request"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
